package service

import (
	"context"
	"encoding/json"
	"time"

	"ride-dispatch/internal/domain/driver"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
)

// passengerEventFor maps a ride status to the WebSocket event the passenger
// receives for it. Requested rides carry no event; the passenger already knows.
func passengerEventFor(st ride.Status) (string, bool) {
	switch st {
	case ride.StatusAccepted:
		return contracts.EventRideAccepted, true
	case ride.StatusArrived:
		return contracts.EventDriverArrived, true
	case ride.StatusOnRide:
		return contracts.EventRideStarted, true
	case ride.StatusCompleted:
		return contracts.EventRideCompleted, true
	case ride.StatusNotApproved:
		return contracts.EventRideNotApproved, true
	case ride.StatusCancelled:
		return contracts.EventRideCanceled, true
	default:
		return "", false
	}
}

// notifyPassengerStatus pushes the ride's current status to its passenger and,
// when the push lands, records the delivery so reconnect flushes skip it.
func (s *rideService) notifyPassengerStatus(ctx context.Context, rd *ride.Ride, brief *contracts.DriverBrief) {
	event, ok := passengerEventFor(rd.Status)
	if !ok {
		return
	}

	payload := contracts.PassengerRideEvent{
		RideID:     rd.ID,
		Status:     rd.Status.String(),
		DriverInfo: brief,
		Fare:       &contracts.FareInfo{Amount: rd.Fare.Amount, Currency: rd.Fare.Currency},
		Timestamp:  time.Now().UTC(),
	}

	if !s.notifier.NotifyPassenger(ctx, rd.PassengerID, event, payload) {
		return
	}

	if err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		return s.rides.MarkNotified(ctx, rd.ID)
	}); err != nil {
		s.logger.Error(ctx, "mark_notified_failed", "Failed to record event delivery", err,
			map[string]any{"ride_id": rd.ID})
	}
}

// driverBriefFor enriches the acceptance event with the driver's profile.
// Lookup failures degrade to the bare driver id.
func (s *rideService) driverBriefFor(ctx context.Context, driverID string) *contracts.DriverBrief {
	brief := &contracts.DriverBrief{DriverID: driverID}

	var prof *driver.Profile
	err := s.uow.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		prof, err = s.drivers.GetProfile(ctx, driverID)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "driver_profile_failed", "Failed to load driver profile", err,
			map[string]any{"driver_id": driverID})
		return brief
	}
	if prof == nil {
		return brief
	}

	brief.Name = prof.Name
	brief.PhoneNumber = prof.PhoneNumber
	brief.Rating = prof.Rating
	brief.Vehicle = &contracts.VehicleInfo{
		Make:  prof.Vehicle.Make,
		Model: prof.Vehicle.Model,
		Color: prof.Vehicle.Color,
		Plate: prof.Vehicle.Plate,
	}
	return brief
}

// publishRideStatus emits the transition to the ride topic exchange. Broker
// trouble is logged and swallowed; the broker feed is an integration tap, not
// part of the transition.
func (s *rideService) publishRideStatus(ctx context.Context, rd *ride.Ride) {
	if s.pub == nil {
		return
	}

	msg := contracts.RideStatusMessage{
		RideID:      rd.ID,
		PassengerID: rd.PassengerID,
		Status:      rd.Status.String(),
		Timestamp:   time.Now().UTC(),
		Envelope: contracts.Envelope{
			Producer: producerName,
			SentAt:   time.Now().UTC(),
		},
	}
	if rd.DriverID != nil {
		msg.DriverID = *rd.DriverID
	}

	body, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(ctx, "ride_status_encode_failed", "Failed to encode ride status message", err, nil)
		return
	}

	routingKey := contracts.RouteRideStatusPrefix + rd.Status.String()
	if err := s.pub.Publish(contracts.ExchangeRideTopic, routingKey, body); err != nil {
		s.logger.Error(ctx, "ride_status_publish_failed", "Failed to publish ride status", err,
			map[string]any{"routing_key": routingKey})
	}
}

// cancelEvent is the passenger-facing view of a driver cancel. The row is
// already back to requested, but the passenger is told the previous assignment
// fell through.
func cancelEvent(rd *ride.Ride) (string, contracts.PassengerRideEvent) {
	return contracts.EventRideCanceled, contracts.PassengerRideEvent{
		RideID:    rd.ID,
		Status:    ride.StatusCancelled.String(),
		Timestamp: time.Now().UTC(),
	}
}

func rideOffer(rd *ride.Ride) contracts.RideOffer {
	return contracts.RideOffer{
		RideID:      rd.ID,
		Pickup:      contracts.GeoPoint{Lat: rd.Pickup.Lat, Lng: rd.Pickup.Lng},
		Dropoff:     contracts.GeoPoint{Lat: rd.Dropoff.Lat, Lng: rd.Dropoff.Lng},
		Fare:        contracts.FareInfo{Amount: rd.Fare.Amount, Currency: rd.Fare.Currency},
		DistanceKM:  rd.DistanceKM,
		DurationMin: rd.DurationMin,
		Status:      rd.Status.String(),
		RequestedAt: rd.CreatedAt,
	}
}
