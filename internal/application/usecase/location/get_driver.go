package location

import (
	"context"
	"fmt"
	"strings"

	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
	"github.com/DioGolang/GoTracker/internal/domain/entity"
)

type GetDriverUseCaseImpl struct {
	Store outbound.DriverStateStore
}

func NewGetDriverUseCase(store outbound.DriverStateStore) *GetDriverUseCaseImpl {
	return &GetDriverUseCaseImpl{Store: store}
}

func (uc *GetDriverUseCaseImpl) Execute(ctx context.Context, input GetDriverInput) (DriverOutput, error) {
	if strings.TrimSpace(input.DriverID) == "" {
		return DriverOutput{}, fmt.Errorf("%w: %w", entity.ErrValidation, entity.ErrDriverIDRequired)
	}
	state, err := uc.Store.Get(ctx, input.DriverID)
	if err != nil {
		return DriverOutput{}, err
	}
	return toDriverOutput(state), nil
}
