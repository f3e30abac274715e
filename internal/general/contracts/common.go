package contracts

import "time"

// Envelope adds cross-cutting headers all messages may carry.
type Envelope struct {
	CorrelationID string    `json:"correlation_id,omitempty"` // correlation for tracing across services
	Producer      string    `json:"producer,omitempty"`       // producer service name, e.g. "dispatch-service"
	SentAt        time.Time `json:"sent_at,omitempty"`        // ISO-8601 send time (UTC)
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type VehicleInfo struct {
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Color string `json:"color,omitempty"`
	Plate string `json:"plate,omitempty"`
}

// DriverBrief is what passengers learn about the driver on acceptance.
type DriverBrief struct {
	DriverID    string       `json:"driver_id"`
	Name        string       `json:"name,omitempty"`
	PhoneNumber string       `json:"phone_number,omitempty"`
	Rating      float64      `json:"rating,omitempty"`
	Vehicle     *VehicleInfo `json:"vehicle,omitempty"`
}

type FareInfo struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}
