package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/ports"

	"github.com/gorilla/websocket"
)

// ConnectPassenger handles WebSocket connections from passengers with
// first-frame JWT auth.
func (h *Hub) ConnectPassenger(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()
	defer h.writeLocks.Delete(conn)

	conn.SetReadLimit(1 << 20) // 1 MiB
	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
		h.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		return
	}

	mt, firstFrame, err := conn.ReadMessage()
	if err != nil {
		h.logger.Error(r.Context(), "ws_auth_read_failed", "Client did not authenticate in time", err, nil)
		return
	}
	if mt != websocket.TextMessage {
		h.sendAuthError(conn, "auth message must be in text format")
		return
	}

	res, err := jwt.ValidateWSAuth(firstFrame, h.jwtMgr, user.RolePassenger)
	if err != nil {
		h.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		h.sendAuthError(conn, "authentication failed: invalid token")
		return
	}

	if pid := r.PathValue("passenger_id"); pid != "" && pid != res.Claims.Subject {
		h.logger.Error(r.Context(), "ws_auth_failed", "Passenger ID mismatch", nil, map[string]any{
			"path_passenger_id": pid,
			"token_subject":     res.Claims.Subject,
		})
		h.sendAuthError(conn, "passenger ID mismatch")
		return
	}
	passengerID := res.Claims.Subject

	if err := h.sendAuthSuccess(conn, "passenger_id", passengerID); err != nil {
		h.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	h.logger.Info(r.Context(), "ws_connected", "Passenger WebSocket connected",
		map[string]any{"passenger_id": passengerID})

	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go h.pingLoop(conn, stopPing)

	h.registerPassenger(passengerID, conn)
	defer h.unregisterPassenger(passengerID, conn)

	// flush ride events the passenger missed while offline
	if err := h.svc.SyncPassenger(r.Context(), passengerID); err != nil {
		h.logger.Error(r.Context(), "passenger_sync_failed", "Failed to flush pending ride events", err,
			map[string]any{"passenger_id": passengerID})
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error(r.Context(), "ws_unexpected_close", "Passenger connection closed unexpectedly", err,
					map[string]any{"passenger_id": passengerID})
			} else {
				h.logger.Info(r.Context(), "ws_connection_closed", "Passenger connection closed",
					map[string]any{"passenger_id": passengerID})
				h.wsWriteClose(conn, websocket.CloseNormalClosure, "bye")
			}
			break
		}

		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.sendError(conn, "bad json")
			continue
		}

		switch msg.Type {
		case contracts.MsgRequestRide:
			h.handlePassengerRideRequest(conn, r, passengerID, msg.Data)

		default:
			h.sendError(conn, "unknown message type")
		}
	}
}

// handlePassengerRideRequest validates the intake and creates a ride, which
// also launches dispatch for it.
func (h *Hub) handlePassengerRideRequest(conn *websocket.Conn, r *http.Request, passengerID string, data json.RawMessage) {
	var in contracts.RideRequestPayload
	if err := json.Unmarshal(data, &in); err != nil {
		h.sendError(conn, "bad ride request payload")
		return
	}

	ctx := r.Context()

	pickup, err := geo.New(in.Origin.Latitude, in.Origin.Longitude)
	if err != nil {
		h.sendError(conn, "invalid origin coordinates")
		return
	}
	dropoff, err := geo.New(in.Destination.Latitude, in.Destination.Longitude)
	if err != nil {
		h.sendError(conn, "invalid destination coordinates")
		return
	}

	rd, err := h.svc.RequestRide(ctx, passengerID, ports.RideRequest{
		Pickup:      pickup,
		Dropoff:     dropoff,
		DistanceKM:  in.DistanceKM,
		DurationMin: in.DurationMin,
		FareAmount:  in.FareAmount,
	})
	if err != nil {
		h.logger.Error(ctx, "ride_request_failed", "Failed to create ride from WebSocket", err,
			map[string]any{"passenger_id": passengerID})
		h.sendError(conn, "failed to request ride")
		return
	}

	_ = h.writeJSON(conn, contracts.WSMessage{
		Type: "rideRequested",
		Data: contracts.PassengerRideEvent{
			RideID:    rd.ID,
			Status:    rd.Status.String(),
			Fare:      &contracts.FareInfo{Amount: rd.Fare.Amount, Currency: rd.Fare.Currency},
			Timestamp: time.Now().UTC(),
		},
	})
}
