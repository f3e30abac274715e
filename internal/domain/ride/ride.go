package ride

import (
	"errors"
	"time"

	"ride-dispatch/internal/domain/geo"
)

// Fare is the amount the passenger is quoted for the trip.
type Fare struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

const (
	defaultFareAmount   = 6000
	defaultFareCurrency = "IQD"
)

// DefaultFare returns the flat fallback fare used when the request carries none.
func DefaultFare() Fare {
	return Fare{Amount: defaultFareAmount, Currency: defaultFareCurrency}
}

// Ride is the durable dispatch aggregate. Status moves only through
// conditional store updates, so the entity itself stays plain data.
type Ride struct {
	ID          string
	PassengerID string
	DriverID    *string

	Pickup  geo.Point
	Dropoff geo.Point

	Fare        Fare
	DistanceKM  float64
	DurationMin float64

	Status Status

	// Dispatching marks that a coordinator currently owns this ride.
	Dispatching bool
	// Notified marks that the passenger has seen the latest status.
	Notified bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

var ErrInvalidRide = errors.New("invalid ride request")

// New builds a requested ride from validated passenger input.
func New(passengerID string, pickup, dropoff geo.Point, distanceKM, durationMin float64, fare Fare) (*Ride, error) {
	if passengerID == "" {
		return nil, ErrInvalidRide
	}
	if !pickup.Valid() || !dropoff.Valid() {
		return nil, geo.ErrInvalidCoordinates
	}
	if distanceKM < 0 || durationMin < 0 {
		return nil, ErrInvalidRide
	}
	if fare.Amount <= 0 {
		fare = DefaultFare()
	}
	if fare.Currency == "" {
		fare.Currency = defaultFareCurrency
	}

	return &Ride{
		PassengerID: passengerID,
		Pickup:      pickup,
		Dropoff:     dropoff,
		Fare:        fare,
		DistanceKM:  distanceKM,
		DurationMin: durationMin,
		Status:      StatusRequested,
	}, nil
}

// OwnedBy reports whether the ride is currently assigned to the given driver.
func (r *Ride) OwnedBy(driverID string) bool {
	return r.DriverID != nil && *r.DriverID == driverID
}
