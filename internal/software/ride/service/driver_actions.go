package service

import (
	"context"
	"fmt"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/metrics"
)

// AcceptRide attaches the driver to a requested ride. The conditional update
// makes exactly one of any number of concurrent accepts win; losers get
// ride.ErrStaleStatus untouched so callers can tell the race from a failure.
func (s *rideService) AcceptRide(ctx context.Context, driverID, rideID string) (*ride.Ride, error) {
	ctx = s.logger.WithRideID(ctx, rideID)

	var rd *ride.Ride
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.rides.Assign(ctx, rideID, driverID); err != nil {
			return err
		}
		var err error
		rd, err = s.rides.GetByID(ctx, rideID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.DispatchMatchesTotal.Inc()

	// the offer loop for this ride is obsolete now
	s.registry.Stop(rideID)

	s.notifier.LinkRide(driverID, rd.PassengerID)

	s.logger.Info(ctx, "ride_accepted", "Driver accepted ride", map[string]any{"driver_id": driverID})

	s.notifyPassengerStatus(ctx, rd, s.driverBriefFor(ctx, driverID))
	s.publishRideStatus(ctx, rd)

	return rd, nil
}

// CancelRide is the driver-side cancel: the ride goes back to requested,
// loses its driver, and re-enters dispatch.
func (s *rideService) CancelRide(ctx context.Context, driverID, rideID string) error {
	ctx = s.logger.WithRideID(ctx, rideID)

	var rd *ride.Ride
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.rides.Requeue(ctx, rideID, driverID); err != nil {
			return err
		}
		var err error
		rd, err = s.rides.GetByID(ctx, rideID)
		return err
	})
	if err != nil {
		return err
	}

	s.notifier.UnlinkRide(driverID)

	s.logger.Info(ctx, "ride_requeued", "Driver cancelled, ride back in dispatch",
		map[string]any{"driver_id": driverID})

	// the passenger sees a cancel even though the row says requested again
	event, payload := cancelEvent(rd)
	s.notifier.NotifyPassenger(ctx, rd.PassengerID, event, payload)
	s.publishRideStatus(ctx, rd)

	s.redispatch(ctx, rideID)
	return nil
}

// MarkArrived moves accepted -> arrived.
func (s *rideService) MarkArrived(ctx context.Context, driverID, rideID string) error {
	_, err := s.transition(ctx, driverID, rideID, ride.StatusAccepted, ride.StatusArrived)
	return err
}

// StartRide moves arrived -> onRide.
func (s *rideService) StartRide(ctx context.Context, driverID, rideID string) error {
	_, err := s.transition(ctx, driverID, rideID, ride.StatusArrived, ride.StatusOnRide)
	return err
}

// EndRide moves onRide -> completed and retires the driver's live position so
// a finished driver is not offered new rides until they report in again.
func (s *rideService) EndRide(ctx context.Context, driverID, rideID string) (*ride.Ride, error) {
	rd, err := s.transition(ctx, driverID, rideID, ride.StatusOnRide, ride.StatusCompleted)
	if err != nil {
		return nil, err
	}

	if err := s.geo.Remove(ctx, driverID); err != nil {
		s.logger.Error(ctx, "geo_remove_failed", "Failed to drop driver position after trip", err,
			map[string]any{"driver_id": driverID})
	}
	s.notifier.UnlinkRide(driverID)

	return rd, nil
}

// transition applies one conditional status move and handles the shared
// aftermath: passenger push, delivery record, broker event.
func (s *rideService) transition(ctx context.Context, driverID, rideID string, from, to ride.Status) (*ride.Ride, error) {
	ctx = s.logger.WithRideID(ctx, rideID)

	var rd *ride.Ride
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.rides.Transition(ctx, rideID, driverID, from, to); err != nil {
			return err
		}
		var err error
		rd, err = s.rides.GetByID(ctx, rideID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "ride_transition", fmt.Sprintf("Ride moved %s -> %s", from, to),
		map[string]any{"driver_id": driverID})

	s.notifyPassengerStatus(ctx, rd, nil)
	s.publishRideStatus(ctx, rd)

	return rd, nil
}

// redispatch claims the ride again and relaunches the offer loop. Failing to
// claim is fine; the reconciliation sweep will pick the ride up.
func (s *rideService) redispatch(ctx context.Context, rideID string) {
	var claimed bool
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		claimed, err = s.rides.ClaimDispatch(ctx, rideID)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "redispatch_claim_failed", "Failed to reclaim ride for dispatch", err, nil)
		return
	}
	if claimed {
		go s.dispatcher.Dispatch(context.WithoutCancel(ctx), rideID)
	}
}
