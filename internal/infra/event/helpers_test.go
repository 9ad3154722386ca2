package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/DioGolang/GoTracker/pkg/events"
	"github.com/stretchr/testify/require"
)

func locationEvent(t *testing.T, driverID string) entity.DriverEvent {
	t.Helper()
	rec, err := entity.NewGeoRecord(40.7128, -74.0060, entity.GeoSourceGPS)
	require.NoError(t, err)
	return entity.NewLocationChanged(entity.DriverState{
		DriverID:      driverID,
		Available:     true,
		Location:      &rec,
		LastUpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Version:       1,
	})
}

var errSinkDown = errors.New("sink down")

// fakeSink fails the first `failures` sends.
type fakeSink struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []events.Event
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) Send(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errSinkDown
	}
	s.sent = append(s.sent, e)
	return nil
}

func (s *fakeSink) snapshot() (calls int, sent []events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]events.Event(nil), s.sent...)
}
