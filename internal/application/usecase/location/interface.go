package location

import (
	"context"

	"github.com/DioGolang/GoTracker/internal/domain/entity"
)

type IngestUseCase interface {
	Execute(ctx context.Context, input IngestInput) (IngestOutput, error)
}

type NearestUseCase interface {
	Execute(ctx context.Context, input NearestInput) (NearestOutput, error)
}

type GetDriverUseCase interface {
	Execute(ctx context.Context, input GetDriverInput) (DriverOutput, error)
}

// IndexApplier projects a committed driver state onto the availability index.
type IndexApplier interface {
	Apply(ctx context.Context, state entity.DriverState) error
}

// IndexRebuilder reconstructs the availability index from the state store.
type IndexRebuilder interface {
	Rebuild(ctx context.Context) (int, error)
}
