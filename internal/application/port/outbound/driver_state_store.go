package outbound

import (
	"context"
	"time"

	"github.com/DioGolang/GoTracker/internal/domain/entity"
)

// DriverStateStore is the single source of truth for driver state.
//
// Upsert is atomic per driver: it loads the stored state, merges the new one
// with entity.DriverState.Supersede and commits, all under a per-driver lock.
// It returns entity.ErrStaleReport when the new state is older than the
// stored one. previous is nil for a driver seen for the first time.
type DriverStateStore interface {
	Upsert(ctx context.Context, state entity.DriverState) (previous *entity.DriverState, committed entity.DriverState, err error)
	Get(ctx context.Context, driverID string) (entity.DriverState, error)
	// GetMany omits unknown ids from the result.
	GetMany(ctx context.Context, driverIDs []string) (map[string]entity.DriverState, error)
	// ChangedSince calls fn, oldest commit first, for every driver whose last
	// commit happened at or after since, with the commit time taken from the
	// store's own clock. The zero time lists every driver. Returning an error
	// from fn stops the listing.
	ChangedSince(ctx context.Context, since time.Time, fn func(state entity.DriverState, committedAt time.Time) error) error
}
