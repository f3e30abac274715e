package service

import (
	"context"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
)

// SyncPassenger flushes every ride event the passenger missed while offline.
// Each flushed event is marked delivered so the next reconnect stays quiet.
func (s *rideService) SyncPassenger(ctx context.Context, passengerID string) error {
	var pending []*ride.Ride
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		pending, err = s.rides.ListUnnotified(ctx, passengerID)
		return err
	})
	if err != nil {
		return err
	}

	for _, rd := range pending {
		rideCtx := s.logger.WithRideID(ctx, rd.ID)

		var brief *contracts.DriverBrief
		if rd.Status == ride.StatusAccepted && rd.DriverID != nil {
			brief = s.driverBriefFor(rideCtx, *rd.DriverID)
		}
		if rd.Status.Active() && rd.DriverID != nil {
			s.notifier.LinkRide(*rd.DriverID, passengerID)
		}

		s.notifyPassengerStatus(rideCtx, rd, brief)
	}

	if len(pending) > 0 {
		s.logger.Info(ctx, "passenger_synced", "Flushed pending ride events",
			map[string]any{"passenger_id": passengerID, "events": len(pending)})
	}
	return nil
}

// SyncDriver restores the driver's in-flight ride after a reconnect, or, for
// an idle driver, re-offers pending rides within the dispatch radius of their
// last known position.
func (s *rideService) SyncDriver(ctx context.Context, driverID string) error {
	var active *ride.Ride
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		active, err = s.rides.GetActiveForDriver(ctx, driverID)
		return err
	})
	if err != nil {
		return err
	}

	if active != nil {
		s.notifier.LinkRide(driverID, active.PassengerID)
		s.notifier.NotifyDriver(ctx, driverID, contracts.EventRestoreRide, rideOffer(active))
		s.logger.Info(s.logger.WithRideID(ctx, active.ID), "driver_ride_restored",
			"Restored in-flight ride on reconnect", map[string]any{"driver_id": driverID})
		return nil
	}

	// idle driver: only useful if we still know where they are
	pos, known, err := s.geo.Position(ctx, driverID)
	if err != nil || !known {
		return err
	}

	var pending []*ride.Ride
	err = s.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		pending, err = s.rides.ListDispatchable(ctx, reofferBatchSize)
		return err
	})
	if err != nil {
		return err
	}

	offered := 0
	for _, rd := range pending {
		if pos.DistanceKM(rd.Pickup) > s.maxOfferRadiusKM {
			continue
		}
		if s.notifier.NotifyDriver(ctx, driverID, contracts.EventNewRide, rideOffer(rd)) {
			offered++
		}
	}

	if offered > 0 {
		s.logger.Info(ctx, "driver_reoffered", "Re-offered pending rides on reconnect",
			map[string]any{"driver_id": driverID, "offers": offered})
	}
	return nil
}

// how many pending rides a reconnect may be offered at once
const reofferBatchSize = 20
