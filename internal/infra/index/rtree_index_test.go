package index

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
	"github.com/DioGolang/GoTracker/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRTreeIndex_NearestScenario(t *testing.T) {
	ctx := context.Background()
	idx := NewRTreeIndex()
	require.NoError(t, idx.Upsert(ctx, "D1", 40.7128, -74.0060))
	require.NoError(t, idx.Upsert(ctx, "D2", 40.7306, -73.9352))

	got, err := idx.Nearest(ctx, 40.7128, -74.0060, 1, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "D1", got[0].DriverID)
	assert.InDelta(t, 0, got[0].DistanceKm, 1e-9)

	require.NoError(t, idx.Remove(ctx, "D1"))

	got, err = idx.Nearest(ctx, 40.7128, -74.0060, 1, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "D2", got[0].DriverID)
	assert.InDelta(t, 6.29, got[0].DistanceKm, 0.01)
}

func TestRTreeIndex_TiesBrokenByDriverID(t *testing.T) {
	ctx := context.Background()
	idx := NewRTreeIndex()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, idx.Upsert(ctx, id, 10, 10))
	}

	got, err := idx.Nearest(ctx, 10, 10, 3, 1)

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].DriverID, got[1].DriverID, got[2].DriverID})
}

func TestRTreeIndex_RadiusExcludesFarDrivers(t *testing.T) {
	ctx := context.Background()
	idx := NewRTreeIndex()
	require.NoError(t, idx.Upsert(ctx, "near", 0, 0.05))
	require.NoError(t, idx.Upsert(ctx, "far", 0, 1))

	got, err := idx.Nearest(ctx, 0, 0, 10, 10)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "near", got[0].DriverID)
}

func TestRTreeIndex_AcrossAntimeridian(t *testing.T) {
	ctx := context.Background()
	idx := NewRTreeIndex()
	require.NoError(t, idx.Upsert(ctx, "west", 0, 179.9))
	require.NoError(t, idx.Upsert(ctx, "east", 0, -179.9))

	got, err := idx.Nearest(ctx, 0, 179.95, 5, 20)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, got[0].DistanceKm, 5.56, 0.05)
}

func TestRTreeIndex_UpsertMovesDriver(t *testing.T) {
	ctx := context.Background()
	idx := NewRTreeIndex()
	require.NoError(t, idx.Upsert(ctx, "D1", 0, 0))
	require.NoError(t, idx.Upsert(ctx, "D1", 45, 45))

	got, err := idx.Nearest(ctx, 0, 0, 5, 100)
	require.NoError(t, err)
	assert.Empty(t, got)

	entries, err := idx.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []outbound.IndexEntry{{DriverID: "D1", Latitude: 45, Longitude: 45}}, entries)
}

func TestRTreeIndex_NearestMatchesBruteForce(t *testing.T) {
	ctx := context.Background()
	idx := NewRTreeIndex()
	rnd := rand.New(rand.NewSource(42))
	type point struct{ lat, lng float64 }
	points := map[string]point{}
	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("D%04d", i)
		p := point{lat: 40 + rnd.Float64(), lng: -74 + rnd.Float64()}
		points[id] = p
		require.NoError(t, idx.Upsert(ctx, id, p.lat, p.lng))
	}

	for _, tc := range []struct {
		k      int
		radius float64
	}{{1, 5}, {10, 5}, {50, 20}, {5000, 200}} {
		got, err := idx.Nearest(ctx, 40.5, -73.5, tc.k, tc.radius)
		require.NoError(t, err)

		var want []outbound.Neighbor
		for id, p := range points {
			if d := geo.HaversineKm(40.5, -73.5, p.lat, p.lng); d <= tc.radius {
				want = append(want, outbound.Neighbor{DriverID: id, DistanceKm: d})
			}
		}
		want = rank(want, tc.k)

		require.Equal(t, len(want), len(got))
		for i := range want {
			assert.Equal(t, want[i].DriverID, got[i].DriverID)
		}
		assert.LessOrEqual(t, len(got), tc.k)
		for i := 1; i < len(got); i++ {
			assert.LessOrEqual(t, got[i-1].DistanceKm, got[i].DistanceKm)
		}
	}
}

func TestRTreeIndex_ReplaceMatchesIncremental(t *testing.T) {
	ctx := context.Background()
	incremental := NewRTreeIndex()
	var entries []outbound.IndexEntry
	for i := 0; i < 300; i++ {
		e := outbound.IndexEntry{DriverID: fmt.Sprintf("D%03d", i), Latitude: float64(i%90) - 45, Longitude: float64(i) - 150}
		entries = append(entries, e)
		require.NoError(t, incremental.Upsert(ctx, e.DriverID, e.Latitude, e.Longitude))
	}
	rebuilt := NewRTreeIndex()
	require.NoError(t, rebuilt.Upsert(ctx, "leftover", 1, 1))

	require.NoError(t, rebuilt.Replace(ctx, entries))

	a, err := incremental.Entries(ctx)
	require.NoError(t, err)
	b, err := rebuilt.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	n, err := rebuilt.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 300, n)

	near, err := rebuilt.Nearest(ctx, 0, 0, 3, 5000)
	require.NoError(t, err)
	assert.Len(t, near, 3)
}

func TestRTreeIndex_DegenerateQueries(t *testing.T) {
	ctx := context.Background()
	idx := NewRTreeIndex()
	require.NoError(t, idx.Upsert(ctx, "D1", 0, 0))

	got, err := idx.Nearest(ctx, 0, 0, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = idx.Nearest(ctx, 0, 0, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, idx.Remove(ctx, "unknown"))
}
