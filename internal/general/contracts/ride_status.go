package contracts

import "time"

// RideStatusMessage is published to the ride topic exchange on every
// ride status transition, routing key "ride.status.{status}".
type RideStatusMessage struct {
	RideID      string    `json:"ride_id"`
	PassengerID string    `json:"passenger_id"`
	DriverID    string    `json:"driver_id,omitempty"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Envelope
}
