package service

import (
	"context"
	"fmt"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"
)

// RequestRide persists a new requested ride, claims it for dispatch in the
// same transaction, and launches the offer loop once the transaction commits.
func (s *rideService) RequestRide(ctx context.Context, passengerID string, req ports.RideRequest) (*ride.Ride, error) {
	rd, err := ride.New(passengerID, req.Pickup, req.Dropoff, req.DistanceKM, req.DurationMin,
		ride.Fare{Amount: req.FareAmount})
	if err != nil {
		return nil, err
	}

	err = s.uow.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.rides.Create(ctx, rd); err != nil {
			return fmt.Errorf("create ride: %w", err)
		}

		claimed, err := s.rides.ClaimDispatch(ctx, rd.ID)
		if err != nil {
			return fmt.Errorf("claim dispatch: %w", err)
		}
		if !claimed {
			// freshly inserted rows are always claimable; losing here means
			// the insert itself went wrong
			return ride.ErrStaleStatus
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logger.WithRideID(ctx, rd.ID)
	s.logger.Info(ctx, "ride_requested", "Ride created and claimed for dispatch", map[string]any{
		"passenger_id": passengerID,
		"distance_km":  rd.DistanceKM,
		"fare":         rd.Fare.Amount,
	})

	s.publishRideStatus(ctx, rd)

	// the offer loop must outlive this request
	go s.dispatcher.Dispatch(context.WithoutCancel(ctx), rd.ID)

	return rd, nil
}
