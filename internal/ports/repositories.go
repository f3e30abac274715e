package ports

import (
	"context"

	"ride-dispatch/internal/domain/driver"
	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/domain/ride"
)

// UnitOfWork runs fn inside a single database transaction. Nested calls
// join the transaction already carried by ctx.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RideRepository persists rides. Every state-changing method is a conditional
// update: it matches the expected current row state and returns
// ride.ErrStaleStatus when zero rows matched. That rows-affected check is the
// only concurrency control in the system.
type RideRepository interface {
	Create(ctx context.Context, rd *ride.Ride) error
	GetByID(ctx context.Context, id string) (*ride.Ride, error)

	// GetActiveForDriver returns the driver's ride in an active status
	// (accepted/arrived/onRide), or nil when there is none.
	GetActiveForDriver(ctx context.Context, driverID string) (*ride.Ride, error)

	// ListUnnotified returns the passenger's rides whose latest status they
	// have not seen yet. Used to flush events on reconnect.
	ListUnnotified(ctx context.Context, passengerID string) ([]*ride.Ride, error)
	MarkNotified(ctx context.Context, rideID string) error

	// Assign moves requested -> accepted and attaches the driver. Exactly one
	// of N concurrent calls succeeds; the rest get ride.ErrStaleStatus.
	Assign(ctx context.Context, rideID, driverID string) error

	// Transition moves from -> to for a ride owned by driverID.
	Transition(ctx context.Context, rideID, driverID string, from, to ride.Status) error

	// Requeue is the driver-cancel path: accepted|onRide -> requested,
	// detaching the driver so the ride can be dispatched again.
	Requeue(ctx context.Context, rideID, driverID string) error

	// MarkNotApproved moves requested -> notApprove when dispatch gives up.
	MarkNotApproved(ctx context.Context, rideID string) error

	// ClaimDispatch atomically flips dispatching false -> true on a requested
	// ride. It reports whether this caller won the claim.
	ClaimDispatch(ctx context.Context, rideID string) (bool, error)
	ClearDispatch(ctx context.Context, rideID string) error

	// ListDispatchable returns requested rides no coordinator owns.
	ListDispatchable(ctx context.Context, limit int) ([]*ride.Ride, error)
}

// DriverRepository reads driver profiles maintained by the identity side.
type DriverRepository interface {
	// GetProfile returns nil without error when the driver is unknown.
	GetProfile(ctx context.Context, driverID string) (*driver.Profile, error)
}

// DriverLocation is a geo index hit, nearest first.
type DriverLocation struct {
	DriverID   string
	Point      geo.Point
	DistanceKM float64
}

// GeoIndex tracks last-known driver positions. Entries are ephemeral and
// overwrite on every update.
type GeoIndex interface {
	Update(ctx context.Context, driverID string, pt geo.Point) error
	Nearby(ctx context.Context, origin geo.Point, radiusKM float64, limit int) ([]DriverLocation, error)
	Position(ctx context.Context, driverID string) (geo.Point, bool, error)
	Remove(ctx context.Context, driverID string) error
}
