// Package dispatchservice wires the dispatch service: stores, broker, hub,
// ride service, coordinator, sweep, and the HTTP server.
package dispatchservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"ride-dispatch/internal/dispatch"
	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/postgres"
	"ride-dispatch/internal/general/rabbitmq"
	"ride-dispatch/internal/general/redisgeo"
	"ride-dispatch/internal/general/websocket"
	"ride-dispatch/internal/software/ride/handler"
	"ride-dispatch/internal/software/ride/service"
)

// Run wires the dispatch service and blocks until ctx is cancelled.
func Run(ctx context.Context, maxConcurrent int) error {
	// static request ID for startup logs
	logger := logger.New("dispatch-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	pool, err := postgres.NewPool(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	geoIndex, err := redisgeo.New(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
		return err
	}
	defer geoIndex.Close()

	rmq, err := rabbitmq.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()
	pub := rabbitmq.NewMQPublisher(rmq)

	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, 2*time.Hour)

	uow := postgres.NewUnitOfWork(pool)
	rideRepo := postgres.NewRideRepo()
	driverRepo := postgres.NewDriverRepo()

	// hub first, then the service, then close the cycle
	hub := websocket.NewHub(logger, jwtManager)

	registry := dispatch.NewRegistry()
	coordinator := dispatch.NewCoordinator(logger, uow, rideRepo, geoIndex, hub, registry, pub, dispatch.Policy{
		InitialRadiusKM:   cfg.Dispatch.InitialRadiusKM,
		RadiusIncrementKM: cfg.Dispatch.RadiusIncrementKM,
		MaxRadiusKM:       cfg.Dispatch.MaxRadiusKM,
		OfferWait:         cfg.Dispatch.OfferWait.Std(),
		OverallDeadline:   cfg.Dispatch.OverallDeadline.Std(),
	})

	svc := service.NewRideService(logger, uow, rideRepo, driverRepo, geoIndex, hub,
		registry, coordinator, pub, cfg.Dispatch.MaxRadiusKM)
	hub.AttachService(svc)

	// reconciliation sweep rescues rides whose coordinator died
	sweep := dispatch.NewSweep(logger, uow, rideRepo, coordinator, cfg.Dispatch.SweepInterval.Std())
	go sweep.Run(ctx)

	mux := http.NewServeMux()
	httpHandler := handler.NewHandler(logger, svc, hub, jwtManager, pool, geoIndex)
	httpHandler.Routes(mux)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           withConcurrencyLimit(maxConcurrent, mux),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	logger.Info(ctx, "service_started",
		fmt.Sprintf("Dispatch Service started on port %d", cfg.HTTP.Port),
		map[string]any{"port": cfg.HTTP.Port, "max_concurrent": maxConcurrent},
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info(ctx, "shutdown_started", "Graceful shutdown started", nil)
		if err := srv.Shutdown(shCtx); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "http_server_error", "HTTP server terminated with error", err,
				map[string]any{"port": cfg.HTTP.Port})
			return err
		}
	}

	return nil
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It controls how many HTTP requests can be in-progress at the same time.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
