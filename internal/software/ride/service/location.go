package service

import (
	"context"
	"encoding/json"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/general/contracts"
)

// UpdateDriverLocation records the driver's position in the geo index and, if
// the driver is mid-ride, streams it to the linked passenger and the location
// fanout.
func (s *rideService) UpdateDriverLocation(ctx context.Context, driverID string, pt geo.Point) error {
	if !pt.Valid() {
		return geo.ErrInvalidCoordinates
	}

	if err := s.geo.Update(ctx, driverID, pt); err != nil {
		return err
	}

	now := time.Now().UTC()
	loc := contracts.GeoPoint{Lat: pt.Lat, Lng: pt.Lng}

	if passengerID, ok := s.notifier.SharedPassenger(driverID); ok {
		s.notifier.NotifyPassenger(ctx, passengerID, contracts.EventDriverLocationUpdate,
			contracts.PassengerLocationEvent{
				DriverID:  driverID,
				Location:  loc,
				Timestamp: now,
			})
	}

	s.publishLocation(ctx, driverID, loc, now)
	return nil
}

func (s *rideService) publishLocation(ctx context.Context, driverID string, loc contracts.GeoPoint, at time.Time) {
	if s.pub == nil {
		return
	}

	body, err := json.Marshal(contracts.LocationUpdateMessage{
		DriverID:  driverID,
		Location:  loc,
		Timestamp: at,
		Envelope: contracts.Envelope{
			Producer: producerName,
			SentAt:   at,
		},
	})
	if err != nil {
		s.logger.Error(ctx, "location_encode_failed", "Failed to encode location message", err, nil)
		return
	}

	if err := s.pub.Publish(contracts.ExchangeLocationFanout, "", body); err != nil {
		s.logger.Error(ctx, "location_publish_failed", "Failed to publish driver location", err,
			map[string]any{"driver_id": driverID})
	}
}
