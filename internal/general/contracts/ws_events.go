package contracts

import "time"

// WSMessage is the envelope every WebSocket frame uses, both directions:
// {"type": "...", "data": {...}}.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// RideOffer is the payload of newRide and restoreRide events to drivers.
type RideOffer struct {
	RideID      string    `json:"ride_id"`
	Pickup      GeoPoint  `json:"pickup"`
	Dropoff     GeoPoint  `json:"dropoff"`
	Fare        FareInfo  `json:"fare"`
	DistanceKM  float64   `json:"distance_km"`
	DurationMin float64   `json:"duration_min"`
	Status      string    `json:"status,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// PassengerRideEvent is the payload of ride lifecycle events to passengers.
type PassengerRideEvent struct {
	RideID     string       `json:"ride_id"`
	Status     string       `json:"status"`
	DriverInfo *DriverBrief `json:"driver_info,omitempty"`
	Fare       *FareInfo    `json:"fare,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// PassengerLocationEvent is the payload of driverLocationUpdate to passengers.
type PassengerLocationEvent struct {
	RideID    string    `json:"ride_id,omitempty"`
	DriverID  string    `json:"driver_id"`
	Location  GeoPoint  `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// DriverActionAck confirms a driver action or reports why it was rejected.
type DriverActionAck struct {
	RideID  string `json:"ride_id"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// --- inbound payloads ---

// DriverLocationPayload is the data of an update_location message.
type DriverLocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DriverRideActionPayload is the data of accept/cancel/arrived/start/end messages.
type DriverRideActionPayload struct {
	RideID string `json:"ride_id"`
}

// RideRequestPayload is the data of a request_ride message and the body of
// POST /rides.
type RideRequestPayload struct {
	Origin      GeoPointInput `json:"origin"`
	Destination GeoPointInput `json:"destination"`
	DistanceKM  float64       `json:"distance"`
	DurationMin float64       `json:"duration"`
	FareAmount  float64       `json:"fareAmount,omitempty"`
}

// GeoPointInput mirrors the client-side coordinate naming.
type GeoPointInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
