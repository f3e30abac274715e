// Package handler exposes the dispatch service over HTTP: ride intake,
// token issuance, the WebSocket endpoints, health and metrics.
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/metrics"
	"ride-dispatch/internal/general/redisgeo"
	"ride-dispatch/internal/general/websocket"
	"ride-dispatch/internal/ports"
)

type Handler struct {
	logger *logger.Logger
	svc    ports.RideService
	hub    *websocket.Hub
	jwtMgr *jwt.Manager
	pool   *pgxpool.Pool
	geo    *redisgeo.Index
}

func NewHandler(
	log *logger.Logger,
	svc ports.RideService,
	hub *websocket.Hub,
	jwtMgr *jwt.Manager,
	pool *pgxpool.Pool,
	geoIndex *redisgeo.Index,
) *Handler {
	return &Handler{
		logger: log,
		svc:    svc,
		hub:    hub,
		jwtMgr: jwtMgr,
		pool:   pool,
		geo:    geoIndex,
	}
}

// Routes registers all endpoints on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	passengerOnly := jwt.AuthMiddlewareFunc(h.jwtMgr, user.RolePassenger)

	mux.HandleFunc("POST /rides", h.instrument("/rides", passengerOnly(h.CreateRide)))
	mux.HandleFunc("POST /tokens", h.instrument("/tokens", h.IssueToken))

	// WebSocket endpoints authenticate on the first frame, not the header
	mux.HandleFunc("GET /ws/driver/{driver_id}", h.hub.ConnectDriver)
	mux.HandleFunc("GET /ws/passenger/{passenger_id}", h.hub.ConnectPassenger)

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Healthz pings the stores the service cannot run without.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	deps := map[string]string{"postgres": "ok", "redis": "ok"}
	healthy := true

	if err := h.pool.Ping(ctx); err != nil {
		deps["postgres"] = err.Error()
		healthy = false
	}
	if err := h.geo.Ping(ctx); err != nil {
		deps["redis"] = err.Error()
		healthy = false
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	h.jsonResponse(w, status, map[string]any{"healthy": healthy, "deps": deps})
}

// instrument tags the request with an id for log correlation and counts it.
func (h *Handler) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := h.logger.WithRequestID(r.Context(), randID())
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r.WithContext(ctx))

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error(context.Background(), "response_encode_failed", "Failed to encode response", err, nil)
	}
}

func (h *Handler) httpError(w http.ResponseWriter, status int, msg string) {
	h.jsonResponse(w, status, map[string]string{"error": msg})
}

func randID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}
