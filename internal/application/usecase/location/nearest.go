package location

import (
	"context"
	"fmt"
	"sort"

	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/DioGolang/GoTracker/pkg/geo"
)

type NearestConfig struct {
	DefaultK        int
	MaxK            int
	DefaultRadiusKm float64
	MaxRadiusKm     float64
}

var DefaultNearestConfig = NearestConfig{
	DefaultK:        5,
	MaxK:            100,
	DefaultRadiusKm: 10,
	MaxRadiusKm:     200,
}

type NearestUseCaseImpl struct {
	Index  outbound.AvailabilityIndex
	Store  outbound.DriverStateStore
	Config NearestConfig
}

func NewNearestUseCase(index outbound.AvailabilityIndex, store outbound.DriverStateStore, cfg NearestConfig) *NearestUseCaseImpl {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = DefaultNearestConfig.DefaultK
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = DefaultNearestConfig.MaxK
	}
	if cfg.DefaultRadiusKm <= 0 {
		cfg.DefaultRadiusKm = DefaultNearestConfig.DefaultRadiusKm
	}
	if cfg.MaxRadiusKm <= 0 {
		cfg.MaxRadiusKm = DefaultNearestConfig.MaxRadiusKm
	}
	return &NearestUseCaseImpl{Index: index, Store: store, Config: cfg}
}

// Execute answers nearestAvailable. Candidates come from the index and are
// re-validated against the store, so a driver that went off duty after the
// last maintenance cycle is never returned.
func (uc *NearestUseCaseImpl) Execute(ctx context.Context, input NearestInput) (NearestOutput, error) {
	if err := entity.ValidateCoordinates(input.Latitude, input.Longitude); err != nil {
		return NearestOutput{}, err
	}
	k, radius := uc.bounds(input)

	neighbors, err := uc.Index.Nearest(ctx, input.Latitude, input.Longitude, 2*k, radius)
	if err != nil {
		return NearestOutput{}, fmt.Errorf("query availability index: %w", err)
	}
	if len(neighbors) == 0 {
		return NearestOutput{Drivers: []NearestDriver{}}, nil
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.DriverID
	}
	states, err := uc.Store.GetMany(ctx, ids)
	if err != nil {
		return NearestOutput{}, fmt.Errorf("hydrate drivers: %w", err)
	}

	drivers := make([]NearestDriver, 0, len(neighbors))
	for _, id := range ids {
		s, ok := states[id]
		if !ok || !s.Indexable() {
			continue
		}
		d := geo.HaversineKm(input.Latitude, input.Longitude, s.Location.Latitude(), s.Location.Longitude())
		if d > radius {
			continue
		}
		drivers = append(drivers, NearestDriver{
			DriverID:      s.DriverID,
			VehicleID:     s.VehicleID,
			Latitude:      s.Location.Latitude(),
			Longitude:     s.Location.Longitude(),
			DistanceKm:    d,
			LastUpdatedAt: s.LastUpdatedAt,
		})
	}
	sort.Slice(drivers, func(i, j int) bool {
		if drivers[i].DistanceKm != drivers[j].DistanceKm {
			return drivers[i].DistanceKm < drivers[j].DistanceKm
		}
		return drivers[i].DriverID < drivers[j].DriverID
	})
	if len(drivers) > k {
		drivers = drivers[:k]
	}
	return NearestOutput{Drivers: drivers}, nil
}

func (uc *NearestUseCaseImpl) bounds(input NearestInput) (int, float64) {
	k := input.K
	if k <= 0 {
		k = uc.Config.DefaultK
	}
	if k > uc.Config.MaxK {
		k = uc.Config.MaxK
	}
	radius := input.MaxRadiusKm
	if radius <= 0 {
		radius = uc.Config.DefaultRadiusKm
	}
	if radius > uc.Config.MaxRadiusKm {
		radius = uc.Config.MaxRadiusKm
	}
	return k, radius
}
