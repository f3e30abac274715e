package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ride-dispatch/internal/domain/driver"
	"ride-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
)

// DriverRepo reads driver profiles. The rows are maintained by the identity
// side; this service never writes them.
type DriverRepo struct{}

// NewDriverRepo constructs a new DriverRepo.
func NewDriverRepo() ports.DriverRepository {
	return &DriverRepo{}
}

// GetProfile returns the driver profile, or nil when the driver is unknown.
func (repo *DriverRepo) GetProfile(ctx context.Context, driverID string) (*driver.Profile, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out driver.Profile
	var vehicleJSON []byte

	err = tx.QueryRow(ctx, `
		SELECT id, name, phone_number, rating, vehicle
		FROM drivers
		WHERE id = $1
	`, driverID).Scan(&out.ID, &out.Name, &out.PhoneNumber, &out.Rating, &vehicleJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query driver profile: %w", err)
	}

	if len(vehicleJSON) > 0 {
		if err := json.Unmarshal(vehicleJSON, &out.Vehicle); err != nil {
			return nil, fmt.Errorf("decode vehicle: %w", err)
		}
	}

	return &out, nil
}
