package location

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNearest_BoundsAndOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		_, err := h.ingest.Execute(ctx, report(fmt.Sprintf("D%03d", i), i%3 != 0, 40+rnd.Float64()*0.5, -74+rnd.Float64()*0.5, 1))
		require.NoError(t, err)
	}

	for _, tc := range []struct {
		k      int
		radius float64
	}{{1, 1}, {5, 5}, {20, 10}, {100, 100}} {
		t.Run(fmt.Sprintf("Should honour k=%d radius=%.0f", tc.k, tc.radius), func(t *testing.T) {
			out, err := h.nearest.Execute(ctx, NearestInput{Latitude: 40.25, Longitude: -73.75, K: tc.k, MaxRadiusKm: tc.radius})

			require.NoError(t, err)
			assert.LessOrEqual(t, len(out.Drivers), tc.k)
			for i, d := range out.Drivers {
				assert.LessOrEqual(t, d.DistanceKm, tc.radius)
				state, err := h.store.Get(ctx, d.DriverID)
				require.NoError(t, err)
				assert.True(t, state.Available)
				if i > 0 {
					assert.LessOrEqual(t, out.Drivers[i-1].DistanceKm, d.DistanceKm)
				}
			}
		})
	}
}

func TestNearest_SkipsCandidatesNoLongerAvailable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.ingest.Execute(ctx, report("D1", false, 0, 0, 1))
	require.NoError(t, err)
	// index lagging behind the store
	require.NoError(t, h.index.Upsert(ctx, "D1", 0, 0))
	require.NoError(t, h.index.Upsert(ctx, "ghost", 0, 0))

	out, err := h.nearest.Execute(ctx, NearestInput{Latitude: 0, Longitude: 0, K: 5, MaxRadiusKm: 5})

	require.NoError(t, err)
	assert.Empty(t, out.Drivers)
}

func TestNearest_HydratesVehicle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	in := report("D1", true, 0, 0, 1)
	in.VehicleID = ptr("V-42")
	_, err := h.ingest.Execute(ctx, in)
	require.NoError(t, err)

	out, err := h.nearest.Execute(ctx, NearestInput{Latitude: 0, Longitude: 0})

	require.NoError(t, err)
	require.Len(t, out.Drivers, 1)
	assert.Equal(t, "V-42", out.Drivers[0].VehicleID)
	assert.Equal(t, at(1), out.Drivers[0].LastUpdatedAt)
}

func TestNearest_CapsK(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.nearest.Config.MaxK = 2
	for i := 0; i < 5; i++ {
		_, err := h.ingest.Execute(ctx, report(fmt.Sprintf("D%d", i), true, 0, float64(i)*0.001, 1))
		require.NoError(t, err)
	}

	out, err := h.nearest.Execute(ctx, NearestInput{Latitude: 0, Longitude: 0, K: 50, MaxRadiusKm: 5})

	require.NoError(t, err)
	require.Len(t, out.Drivers, 2)
	assert.Equal(t, "D0", out.Drivers[0].DriverID)
	assert.Equal(t, "D1", out.Drivers[1].DriverID)
}

func TestNearest_RejectsInvalidOrigin(t *testing.T) {
	h := newHarness(t)

	_, err := h.nearest.Execute(context.Background(), NearestInput{Latitude: 100, Longitude: 0, K: 1})

	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestGetDriver(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.ingest.Execute(ctx, report("D1", true, 40.7128, -74.0060, 1))
	require.NoError(t, err)
	uc := NewGetDriverUseCase(h.store)

	t.Run("Should return the current state", func(t *testing.T) {
		out, err := uc.Execute(ctx, GetDriverInput{DriverID: "D1"})

		require.NoError(t, err)
		assert.True(t, out.Available)
		require.NotNil(t, out.Location)
		assert.Equal(t, "gps", out.Location.Source)
		assert.Equal(t, uint64(1), out.Version)
	})

	t.Run("Should return not found for unknown drivers", func(t *testing.T) {
		_, err := uc.Execute(ctx, GetDriverInput{DriverID: "nobody"})

		assert.ErrorIs(t, err, entity.ErrDriverNotFound)
	})

	t.Run("Should reject a blank id", func(t *testing.T) {
		_, err := uc.Execute(ctx, GetDriverInput{})

		assert.ErrorIs(t, err, entity.ErrValidation)
	})
}
