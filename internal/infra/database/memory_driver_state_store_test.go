package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func location(t *testing.T, lat, lon float64) *entity.GeoRecord {
	t.Helper()
	g, err := entity.NewGeoRecord(lat, lon, entity.GeoSourceGPS)
	require.NoError(t, err)
	return &g
}

func TestMemoryDriverStateStore_UpsertReturnsPrevious(t *testing.T) {
	store := NewMemoryDriverStateStore()
	ctx := context.Background()

	prev, first, err := store.Upsert(ctx, entity.DriverState{DriverID: "D1", Available: true, Location: location(t, 1, 1), LastUpdatedAt: time.Unix(100, 0)})
	require.NoError(t, err)
	assert.Nil(t, prev)

	prev, second, err := store.Upsert(ctx, entity.DriverState{DriverID: "D1", Available: false, LastUpdatedAt: time.Unix(101, 0)})
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, first, *prev)
	assert.Equal(t, uint64(2), second.Version)
	assert.Equal(t, first.Location, second.Location)
}

func TestMemoryDriverStateStore_StaleReportNeverChangesState(t *testing.T) {
	store := NewMemoryDriverStateStore()
	ctx := context.Background()
	_, committed, err := store.Upsert(ctx, entity.DriverState{DriverID: "D1", Available: true, LastUpdatedAt: time.Unix(200, 0)})
	require.NoError(t, err)

	_, _, err = store.Upsert(ctx, entity.DriverState{DriverID: "D1", Available: false, LastUpdatedAt: time.Unix(199, 0)})

	assert.ErrorIs(t, err, entity.ErrStaleReport)
	got, err := store.Get(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, committed, got)
}

func TestMemoryDriverStateStore_OrderIndependentConvergence(t *testing.T) {
	ctx := context.Background()
	r1 := entity.DriverState{DriverID: "D1", Available: true, VehicleID: "V1", Location: location(t, 1, 1), LastUpdatedAt: time.Unix(100, 0)}
	r2 := entity.DriverState{DriverID: "D1", Available: false, VehicleID: "V2", Location: location(t, 2, 2), LastUpdatedAt: time.Unix(101, 0)}

	inOrder := NewMemoryDriverStateStore()
	_, _, err := inOrder.Upsert(ctx, r1)
	require.NoError(t, err)
	_, _, err = inOrder.Upsert(ctx, r2)
	require.NoError(t, err)

	reversed := NewMemoryDriverStateStore()
	_, _, err = reversed.Upsert(ctx, r2)
	require.NoError(t, err)
	_, _, err = reversed.Upsert(ctx, r1)
	require.ErrorIs(t, err, entity.ErrStaleReport)

	a, err := inOrder.Get(ctx, "D1")
	require.NoError(t, err)
	b, err := reversed.Get(ctx, "D1")
	require.NoError(t, err)

	assert.Equal(t, a.Available, b.Available)
	assert.Equal(t, a.VehicleID, b.VehicleID)
	assert.Equal(t, a.Location, b.Location)
	assert.Equal(t, a.LastUpdatedAt, b.LastUpdatedAt)
}

func TestMemoryDriverStateStore_ConcurrentUpsertsKeepNewest(t *testing.T) {
	store := NewMemoryDriverStateStore()
	ctx := context.Background()
	const drivers, reports = 8, 50

	var wg sync.WaitGroup
	for d := 0; d < drivers; d++ {
		for r := 0; r < reports; r++ {
			wg.Add(1)
			go func(d, r int) {
				defer wg.Done()
				_, _, _ = store.Upsert(ctx, entity.DriverState{
					DriverID:      fmt.Sprintf("D%d", d),
					Available:     r%2 == 0,
					LastUpdatedAt: time.Unix(int64(1000+r), 0),
				})
			}(d, r)
		}
	}
	wg.Wait()

	for d := 0; d < drivers; d++ {
		st, err := store.Get(ctx, fmt.Sprintf("D%d", d))
		require.NoError(t, err)
		assert.Equal(t, time.Unix(1000+reports-1, 0), st.LastUpdatedAt)
		assert.Equal(t, (reports-1)%2 == 0, st.Available)
	}
}

func TestMemoryDriverStateStore_GetManyAndListAll(t *testing.T) {
	store := NewMemoryDriverStateStore()
	ctx := context.Background()
	for _, id := range []string{"D1", "D2", "D3"} {
		_, _, err := store.Upsert(ctx, entity.DriverState{DriverID: id, LastUpdatedAt: time.Unix(1, 0)})
		require.NoError(t, err)
	}

	got, err := store.GetMany(ctx, []string{"D1", "D3", "ghost"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "D3")

	seen := map[string]bool{}
	require.NoError(t, store.ChangedSince(ctx, time.Time{}, func(st entity.DriverState, _ time.Time) error {
		seen[st.DriverID] = true
		return nil
	}))
	assert.Len(t, seen, 3)

	_, err = store.Get(ctx, "ghost")
	assert.ErrorIs(t, err, entity.ErrDriverNotFound)
}

func TestMemoryDriverStateStore_RejectsInvalidState(t *testing.T) {
	_, _, err := NewMemoryDriverStateStore().Upsert(context.Background(), entity.DriverState{DriverID: " "})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestMemoryDriverStateStore_ChangedSince(t *testing.T) {
	// Arrange
	store := NewMemoryDriverStateStore()
	clock := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	_, _, err := store.Upsert(ctx, entity.DriverState{DriverID: "D2", Available: true, LastUpdatedAt: time.Unix(100, 0)})
	require.NoError(t, err)
	clock = clock.Add(time.Second)
	_, _, err = store.Upsert(ctx, entity.DriverState{DriverID: "D1", Available: true, LastUpdatedAt: time.Unix(100, 0)})
	require.NoError(t, err)
	clock = clock.Add(time.Second)
	_, _, err = store.Upsert(ctx, entity.DriverState{DriverID: "D2", Available: false, LastUpdatedAt: time.Unix(101, 0)})
	require.NoError(t, err)

	tests := []struct {
		name  string
		since time.Time
		want  []string
	}{
		{name: "Should list every driver from the zero time", since: time.Time{}, want: []string{"D1", "D2"}},
		{name: "Should include commits made exactly at since", since: clock.Add(-time.Second), want: []string{"D1", "D2"}},
		{name: "Should skip drivers committed before since", since: clock, want: []string{"D2"}},
		{name: "Should return nothing after the last commit", since: clock.Add(time.Nanosecond), want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			var got []string
			err := store.ChangedSince(ctx, tt.since, func(s entity.DriverState, _ time.Time) error {
				got = append(got, s.DriverID)
				return nil
			})

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
