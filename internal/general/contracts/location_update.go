package contracts

import "time"

// LocationUpdateMessage is published to the location fanout exchange on every
// accepted driver location update.
type LocationUpdateMessage struct {
	DriverID  string    `json:"driver_id"`
	RideID    string    `json:"ride_id,omitempty"`
	Location  GeoPoint  `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}
