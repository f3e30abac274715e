package dispatch

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/metrics"
	"ride-dispatch/internal/ports"
)

const sweepBatchSize = 50

// Sweep is the reconciliation loop that rescues orphaned rides: requested
// rides nobody is dispatching, typically after a crash or a missed requeue.
// The atomic claim makes a concurrently launched coordinator harmless.
type Sweep struct {
	logger     *logger.Logger
	uow        ports.UnitOfWork
	rides      ports.RideRepository
	dispatcher ports.Dispatcher
	interval   time.Duration
}

// NewSweep wires the reconciliation sweep.
func NewSweep(logger *logger.Logger, uow ports.UnitOfWork, rides ports.RideRepository, dispatcher ports.Dispatcher, interval time.Duration) *Sweep {
	return &Sweep{
		logger:     logger,
		uow:        uow,
		rides:      rides,
		dispatcher: dispatcher,
		interval:   interval,
	}
}

// Run blocks until ctx is cancelled, scanning on a fixed interval.
func (s *Sweep) Run(ctx context.Context) {
	s.logger.Info(ctx, "sweep_started", "Reconciliation sweep started",
		map[string]any{"interval": s.interval.String()})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "sweep_stopped", "Reconciliation sweep stopped", nil)
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick claims whatever is claimable and launches a coordinator per claim.
// Coordinators start only after the claiming transaction commits.
func (s *Sweep) tick(ctx context.Context) {
	var claimed []*ride.Ride

	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		rides, err := s.rides.ListDispatchable(ctx, sweepBatchSize)
		if err != nil {
			return err
		}

		for _, rd := range rides {
			ok, err := s.rides.ClaimDispatch(ctx, rd.ID)
			if err != nil {
				return err
			}
			if ok {
				claimed = append(claimed, rd)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error(ctx, "sweep_scan_failed", "Reconciliation scan failed", err, nil)
		return
	}

	for _, rd := range claimed {
		metrics.SweepClaimsTotal.Inc()
		s.logger.Info(s.logger.WithRideID(ctx, rd.ID), "sweep_claimed",
			"Orphaned ride claimed for dispatch", nil)
		go s.dispatcher.Dispatch(ctx, rd.ID)
	}
}
