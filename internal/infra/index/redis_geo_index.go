package index

import (
	"context"
	"fmt"

	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
	"github.com/DioGolang/GoTracker/pkg/geo"
	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisIndexKey = "drivers:available"

	// Redis GEO stores web-mercator geohashes and rejects latitudes past this.
	redisMaxLatitude = 85.05112878
	// Redis measures with a slightly larger earth radius; widen the server-side
	// radius and apply the exact limit locally.
	redisRadiusSlack = 1.001
	rebuildBatchSize = 500
)

// RedisGeoIndex keeps the available drivers in a Redis GEO sorted set so
// several processes can share one index.
type RedisGeoIndex struct {
	client *redis.Client
	key    string
	logger logger.Logger
}

var _ outbound.AvailabilityIndex = (*RedisGeoIndex)(nil)

func NewRedisGeoIndex(client *redis.Client, key string, log logger.Logger) *RedisGeoIndex {
	if key == "" {
		key = DefaultRedisIndexKey
	}
	return &RedisGeoIndex{client: client, key: key, logger: log}
}

func (r *RedisGeoIndex) Upsert(ctx context.Context, driverID string, lat, lng float64) error {
	if lat > redisMaxLatitude || lat < -redisMaxLatitude {
		return fmt.Errorf("%w: latitude %f outside redis geo range", outbound.ErrUnindexable, lat)
	}

	r.logger.Debug(ctx, "Redis GeoAdd",
		logger.String("driver_id", driverID),
		logger.Float64("lat", lat),
		logger.Float64("lng", lng),
	)
	err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Name:      driverID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
	if err != nil {
		r.logger.Error(ctx, "Redis GeoAdd failed", logger.WithError(err))
		return fmt.Errorf("redis geo add: %w", err)
	}
	return nil
}

func (r *RedisGeoIndex) Remove(ctx context.Context, driverID string) error {
	if err := r.client.ZRem(ctx, r.key, driverID).Err(); err != nil {
		return fmt.Errorf("redis zrem: %w", err)
	}
	return nil
}

func (r *RedisGeoIndex) Nearest(ctx context.Context, lat, lng float64, k int, maxRadiusKm float64) ([]outbound.Neighbor, error) {
	if k <= 0 || maxRadiusKm <= 0 {
		return []outbound.Neighbor{}, nil
	}

	r.logger.Debug(ctx, "Redis GeoRadius query",
		logger.Float64("lat", lat),
		logger.Float64("lng", lng),
		logger.Float64("radius", maxRadiusKm),
	)
	locations, err := r.client.GeoRadius(ctx, r.key, lng, lat, &redis.GeoRadiusQuery{
		Radius:    maxRadiusKm*redisRadiusSlack + 0.01,
		Unit:      "km",
		WithCoord: true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		r.logger.Error(ctx, "Redis command failed", logger.WithError(err))
		return nil, fmt.Errorf("redis geo radius error: %w", err)
	}

	out := make([]outbound.Neighbor, 0, len(locations))
	for _, loc := range locations {
		d := geo.HaversineKm(lat, lng, loc.Latitude, loc.Longitude)
		if d <= maxRadiusKm {
			out = append(out, outbound.Neighbor{DriverID: loc.Name, DistanceKm: d})
		}
	}
	return rank(out, k), nil
}

// Replace writes the entries under a scratch key and renames it over the
// live one, so readers never observe a half-built index.
func (r *RedisGeoIndex) Replace(ctx context.Context, entries []outbound.IndexEntry) error {
	tmp := r.key + ":rebuild"
	if err := r.client.Del(ctx, tmp).Err(); err != nil {
		return fmt.Errorf("redis clear scratch key: %w", err)
	}

	batch := make([]*redis.GeoLocation, 0, rebuildBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.client.GeoAdd(ctx, tmp, batch...).Err(); err != nil {
			return fmt.Errorf("redis geo add batch: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for _, e := range entries {
		if e.Latitude > redisMaxLatitude || e.Latitude < -redisMaxLatitude {
			r.logger.Warn(ctx, "Skipping driver outside redis geo range",
				logger.String("driver_id", e.DriverID),
				logger.Float64("lat", e.Latitude),
			)
			continue
		}
		batch = append(batch, &redis.GeoLocation{Name: e.DriverID, Longitude: e.Longitude, Latitude: e.Latitude})
		if len(batch) == rebuildBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	n, err := r.client.Exists(ctx, tmp).Result()
	if err != nil {
		return fmt.Errorf("redis exists: %w", err)
	}
	if n == 0 {
		return r.client.Del(ctx, r.key).Err()
	}
	if err := r.client.Rename(ctx, tmp, r.key).Err(); err != nil {
		return fmt.Errorf("redis rename: %w", err)
	}
	return nil
}

// Entries reads positions back from their geohash, so coordinates are
// accurate to well under a meter but not bit-exact.
func (r *RedisGeoIndex) Entries(ctx context.Context) ([]outbound.IndexEntry, error) {
	ids, err := r.client.ZRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	if len(ids) == 0 {
		return []outbound.IndexEntry{}, nil
	}

	positions, err := r.client.GeoPos(ctx, r.key, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geopos: %w", err)
	}

	out := make([]outbound.IndexEntry, 0, len(ids))
	for i, pos := range positions {
		if pos == nil {
			continue
		}
		out = append(out, outbound.IndexEntry{DriverID: ids[i], Latitude: pos.Latitude, Longitude: pos.Longitude})
	}
	sortEntries(out)
	return out, nil
}

func (r *RedisGeoIndex) Size(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, r.key).Result()
	return int(n), err
}
