package ports

import (
	"context"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
)

// RideRequest is validated passenger intake for a new ride.
type RideRequest struct {
	Pickup      geo.Point
	Dropoff     geo.Point
	DistanceKM  float64
	DurationMin float64
	FareAmount  float64
}

// RideService orchestrates the ride lifecycle end to end.
type RideService interface {
	// RequestRide creates a requested ride and launches dispatch for it.
	RequestRide(ctx context.Context, passengerID string, req RideRequest) (*ride.Ride, error)

	// Driver actions. Each is a conditional transition; a stale precondition
	// surfaces as ride.ErrStaleStatus with no side effects.
	AcceptRide(ctx context.Context, driverID, rideID string) (*ride.Ride, error)
	CancelRide(ctx context.Context, driverID, rideID string) error
	MarkArrived(ctx context.Context, driverID, rideID string) error
	StartRide(ctx context.Context, driverID, rideID string) error
	EndRide(ctx context.Context, driverID, rideID string) (*ride.Ride, error)

	UpdateDriverLocation(ctx context.Context, driverID string, pt geo.Point) error

	// SyncPassenger flushes un-notified ride events after a reconnect.
	SyncPassenger(ctx context.Context, passengerID string) error
	// SyncDriver restores an active ride, or re-offers nearby pending rides.
	SyncDriver(ctx context.Context, driverID string) error
}

// Notifier is the best-effort, at-most-once push channel to connected actors.
// Send reports delivery; false means the actor is offline or the write failed,
// and nothing is retried.
type Notifier interface {
	NotifyDriver(ctx context.Context, driverID, event string, data any) bool
	NotifyPassenger(ctx context.Context, passengerID, event string, data any) bool
	IsDriverOnline(driverID string) bool

	// Ride sharing links route live driver locations to the ride's passenger.
	LinkRide(driverID, passengerID string)
	UnlinkRide(driverID string)
	SharedPassenger(driverID string) (string, bool)
}

// Dispatcher launches the offer loop for a claimed ride.
type Dispatcher interface {
	Dispatch(ctx context.Context, rideID string)
}
