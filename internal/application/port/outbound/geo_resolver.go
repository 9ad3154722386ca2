package outbound

import (
	"context"

	"github.com/DioGolang/GoTracker/internal/domain/entity"
)

// GeoQuery carries either device coordinates or a network address.
// Coordinates win when both are set.
type GeoQuery struct {
	SourceIP    string
	Coordinates *entity.Coordinates
}

type GeoResolver interface {
	// Resolve fails with entity.ErrResolutionInvalid for malformed input and
	// entity.ErrResolutionUnavailable when the data source cannot answer.
	Resolve(ctx context.Context, q GeoQuery) (entity.GeoRecord, error)
}
