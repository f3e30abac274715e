package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// RideRepo persists rides using pgx and plain SQL. All state changes are
// conditional updates: the WHERE clause encodes the expected current state and
// a zero rows-affected result maps to ride.ErrStaleStatus.
type RideRepo struct{}

// NewRideRepo constructs a new RideRepo.
func NewRideRepo() ports.RideRepository {
	return &RideRepo{}
}

const rideColumns = `
	id, passenger_id, driver_id,
	pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	fare_amount, fare_currency, distance_km, duration_min,
	status, dispatching, notified, created_at, updated_at`

func scanRide(row pgx.Row) (*ride.Ride, error) {
	var out ride.Ride
	var status string

	err := row.Scan(
		&out.ID, &out.PassengerID, &out.DriverID,
		&out.Pickup.Lat, &out.Pickup.Lng, &out.Dropoff.Lat, &out.Dropoff.Lng,
		&out.Fare.Amount, &out.Fare.Currency, &out.DistanceKM, &out.DurationMin,
		&status, &out.Dispatching, &out.Notified, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	out.Status = ride.Status(status)

	return &out, nil
}

// Create inserts a new ride row and writes an initial ride_requested event.
func (repo *RideRepo) Create(ctx context.Context, rd *ride.Ride) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO rides (
			passenger_id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
			fare_amount, fare_currency, distance_km, duration_min, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`,
		rd.PassengerID,
		rd.Pickup.Lat, rd.Pickup.Lng,
		rd.Dropoff.Lat, rd.Dropoff.Lng,
		rd.Fare.Amount, rd.Fare.Currency,
		rd.DistanceKM, rd.DurationMin,
		rd.Status.String(),
	).Scan(&rd.ID, &rd.CreatedAt, &rd.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}

	return insertRideEvent(ctx, tx, rd.ID, "ride_requested", map[string]any{
		"passenger_id": rd.PassengerID,
		"fare_amount":  rd.Fare.Amount,
	})
}

// GetByID fetches a ride by primary key (uuid), or nil when it does not exist.
func (repo *RideRepo) GetByID(ctx context.Context, id string) (*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rd, err := scanRide(tx.QueryRow(ctx, `SELECT`+rideColumns+` FROM rides WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rd, err
}

// GetActiveForDriver fetches the driver's current ride, or nil when idle.
func (repo *RideRepo) GetActiveForDriver(ctx context.Context, driverID string) (*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rd, err := scanRide(tx.QueryRow(ctx, `
		SELECT`+rideColumns+`
		FROM rides
		WHERE driver_id = $1
		  AND status IN ('accepted', 'arrived', 'onRide')
		ORDER BY updated_at DESC
		LIMIT 1
	`, driverID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rd, err
}

// ListUnnotified returns rides whose latest status the passenger has not seen.
// Freshly requested rides are excluded, there is nothing to report yet.
func (repo *RideRepo) ListUnnotified(ctx context.Context, passengerID string) ([]*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT`+rideColumns+`
		FROM rides
		WHERE passenger_id = $1
		  AND notified = FALSE
		  AND status <> 'requested'
		ORDER BY updated_at ASC
	`, passengerID)
	if err != nil {
		return nil, fmt.Errorf("query unnotified rides: %w", err)
	}
	defer rows.Close()

	var rides []*ride.Ride
	for rows.Next() {
		rd, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		rides = append(rides, rd)
	}

	return rides, rows.Err()
}

// MarkNotified records that the passenger has seen the current status.
func (repo *RideRepo) MarkNotified(ctx context.Context, rideID string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE rides SET notified = TRUE, updated_at = now() WHERE id = $1
	`, rideID)
	return err
}

// Assign moves requested -> accepted and attaches the driver. The WHERE clause
// guarantees a single winner under concurrent accepts.
func (repo *RideRepo) Assign(ctx context.Context, rideID, driverID string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET driver_id = $2,
		    status = 'accepted',
		    notified = FALSE,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'requested'
		  AND driver_id IS NULL
	`, rideID, driverID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ride.ErrStaleStatus
	}

	return insertRideEvent(ctx, tx, rideID, "driver_assigned", map[string]any{
		"driver_id": driverID,
	})
}

// Transition moves from -> to for a ride owned by driverID.
func (repo *RideRepo) Transition(ctx context.Context, rideID, driverID string, from, to ride.Status) error {
	if !to.Valid() || !from.CanTransitionTo(to) {
		return ride.ErrInvalidStatus
	}

	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET status = $4,
		    notified = FALSE,
		    updated_at = now()
		WHERE id = $1
		  AND driver_id = $2
		  AND status = $3
	`, rideID, driverID, from.String(), to.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ride.ErrStaleStatus
	}

	return insertRideEvent(ctx, tx, rideID, "status_changed", map[string]any{
		"old_status": from.String(),
		"new_status": to.String(),
		"driver_id":  driverID,
	})
}

// Requeue is the driver-cancel path: the ride goes back to requested with no
// driver so dispatch can run again. Allowed from accepted and onRide only.
func (repo *RideRepo) Requeue(ctx context.Context, rideID, driverID string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET status = 'requested',
		    driver_id = NULL,
		    dispatching = FALSE,
		    notified = FALSE,
		    updated_at = now()
		WHERE id = $1
		  AND driver_id = $2
		  AND status IN ('accepted', 'onRide')
	`, rideID, driverID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ride.ErrStaleStatus
	}

	return insertRideEvent(ctx, tx, rideID, "ride_requeued", map[string]any{
		"cancelled_by": driverID,
	})
}

// MarkNotApproved moves requested -> notApprove when dispatch exhausts its
// deadline, releasing the dispatch claim in the same statement.
func (repo *RideRepo) MarkNotApproved(ctx context.Context, rideID string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET status = 'notApprove',
		    dispatching = FALSE,
		    notified = FALSE,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'requested'
	`, rideID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ride.ErrStaleStatus
	}

	return insertRideEvent(ctx, tx, rideID, "ride_not_approved", nil)
}

// ClaimDispatch atomically flips dispatching false -> true on a requested ride.
func (repo *RideRepo) ClaimDispatch(ctx context.Context, rideID string) (bool, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET dispatching = TRUE, updated_at = now()
		WHERE id = $1
		  AND status = 'requested'
		  AND dispatching = FALSE
	`, rideID)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

// ClearDispatch releases the dispatch claim. Safe to call on any exit path.
func (repo *RideRepo) ClearDispatch(ctx context.Context, rideID string) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE rides
		SET dispatching = FALSE, updated_at = now()
		WHERE id = $1
		  AND dispatching = TRUE
	`, rideID)
	return err
}

// ListDispatchable returns requested rides no coordinator currently owns.
func (repo *RideRepo) ListDispatchable(ctx context.Context, limit int) ([]*ride.Ride, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT`+rideColumns+`
		FROM rides
		WHERE status = 'requested'
		  AND dispatching = FALSE
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatchable rides: %w", err)
	}
	defer rows.Close()

	var rides []*ride.Ride
	for rows.Next() {
		rd, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		rides = append(rides, rd)
	}

	return rides, rows.Err()
}

// insertRideEvent writes a row into ride_events with encoded event_data.
func insertRideEvent(ctx context.Context, tx pgx.Tx, rideID, eventType string, eventData any) error {
	body, err := json.Marshal(eventData)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ride_events (ride_id, event_type, event_data)
		VALUES ($1, $2, $3::jsonb)
	`, rideID, eventType, string(body))
	return err
}
