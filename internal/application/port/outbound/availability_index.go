package outbound

import (
	"context"
	"errors"
)

// ErrUnindexable is returned by an index that cannot hold a position
// (ex: Redis GEO beyond ±85.05° latitude).
var ErrUnindexable = errors.New("position cannot be indexed")

type IndexEntry struct {
	DriverID  string
	Latitude  float64
	Longitude float64
}

type Neighbor struct {
	DriverID   string
	DistanceKm float64
}

// AvailabilityIndex is a rebuildable spatial projection of the available
// drivers held by the DriverStateStore.
type AvailabilityIndex interface {
	Upsert(ctx context.Context, driverID string, lat, lng float64) error
	Remove(ctx context.Context, driverID string) error
	// Nearest returns at most k drivers within maxRadiusKm, nearest first,
	// ties broken by DriverID ascending.
	Nearest(ctx context.Context, lat, lng float64, k int, maxRadiusKm float64) ([]Neighbor, error)
	// Replace swaps the whole content for entries.
	Replace(ctx context.Context, entries []IndexEntry) error
	// Entries returns a snapshot sorted by DriverID.
	Entries(ctx context.Context) ([]IndexEntry, error)
}
