package redisgeo

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"ride-dispatch/internal/domain/geo"
	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"

	"github.com/redis/go-redis/v9"
)

// Index is the driver geospatial index backed by a single Redis GEO key.
// Entries are last-write-wins and carry no TTL; a driver's position lives
// until overwritten or removed at ride end.
type Index struct {
	client *redis.Client
	key    string
	logger *logger.Logger
}

var _ ports.GeoIndex = (*Index)(nil)

// New connects to Redis and verifies connectivity.
func New(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Index, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(cfg.Redis.Port)),
		Password: cfg.Redis.Password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info(ctx, "redis_connected", "Connected to Redis", map[string]any{
		"geo_key": cfg.Redis.GeoKey,
	})

	return &Index{client: client, key: cfg.Redis.GeoKey, logger: logger}, nil
}

// Update upserts the driver's position.
func (ix *Index) Update(ctx context.Context, driverID string, pt geo.Point) error {
	if !pt.Valid() {
		return geo.ErrInvalidCoordinates
	}

	return ix.client.GeoAdd(ctx, ix.key, &redis.GeoLocation{
		Name:      driverID,
		Latitude:  pt.Lat,
		Longitude: pt.Lng,
	}).Err()
}

// Nearby returns drivers within radiusKM of origin, nearest first.
func (ix *Index) Nearby(ctx context.Context, origin geo.Point, radiusKM float64, limit int) ([]ports.DriverLocation, error) {
	res, err := ix.client.GeoSearchLocation(ctx, ix.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Latitude:   origin.Lat,
			Longitude:  origin.Lng,
			Radius:     radiusKM,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}

	out := make([]ports.DriverLocation, 0, len(res))
	for _, loc := range res {
		out = append(out, ports.DriverLocation{
			DriverID:   loc.Name,
			Point:      geo.Point{Lat: loc.Latitude, Lng: loc.Longitude},
			DistanceKM: loc.Dist,
		})
	}

	return out, nil
}

// Position returns the driver's last known point, if any.
func (ix *Index) Position(ctx context.Context, driverID string) (geo.Point, bool, error) {
	res, err := ix.client.GeoPos(ctx, ix.key, driverID).Result()
	if err != nil {
		return geo.Point{}, false, fmt.Errorf("geo pos: %w", err)
	}
	if len(res) == 0 || res[0] == nil {
		return geo.Point{}, false, nil
	}

	return geo.Point{Lat: res[0].Latitude, Lng: res[0].Longitude}, true, nil
}

// Remove drops the driver from the index. GEO keys are sorted sets underneath,
// so this is a plain ZREM.
func (ix *Index) Remove(ctx context.Context, driverID string) error {
	return ix.client.ZRem(ctx, ix.key, driverID).Err()
}

// Ping reports index health for readiness checks.
func (ix *Index) Ping(ctx context.Context) error {
	return ix.client.Ping(ctx).Err()
}

// Close releases the underlying Redis client.
func (ix *Index) Close() error {
	return ix.client.Close()
}
