package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/DioGolang/GoTracker/internal/infra/database"
	"github.com/DioGolang/GoTracker/internal/infra/index"
	"github.com/DioGolang/GoTracker/pkg/events"
	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

// stubResolver echoes coordinates as a GPS record and answers IP lookups
// with whatever ipResult returns.
type stubResolver struct {
	mu       sync.Mutex
	ipCalls  []string
	ipResult func(ip string) (entity.GeoRecord, error)
}

func (r *stubResolver) Resolve(_ context.Context, q outbound.GeoQuery) (entity.GeoRecord, error) {
	if q.Coordinates != nil {
		return entity.NewGeoRecord(q.Coordinates.Latitude, q.Coordinates.Longitude, entity.GeoSourceGPS)
	}
	r.mu.Lock()
	r.ipCalls = append(r.ipCalls, q.SourceIP)
	r.mu.Unlock()
	if r.ipResult == nil {
		return entity.GeoRecord{}, entity.ErrResolutionUnavailable
	}
	return r.ipResult(q.SourceIP)
}

type recordingPublisher struct {
	mu       sync.Mutex
	events   []events.Event
	admitErr error
}

func (p *recordingPublisher) Admit(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.admitErr
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.GetName()
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

type harness struct {
	store      *database.MemoryDriverStateStore
	index      *index.RTreeIndex
	resolver   *stubResolver
	publisher  *recordingPublisher
	maintainer *IndexMaintainer
	ingest     *IngestUseCaseImpl
	nearest    *NearestUseCaseImpl
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     database.NewMemoryDriverStateStore(),
		index:     index.NewRTreeIndex(),
		resolver:  &stubResolver{},
		publisher: &recordingPublisher{},
	}
	h.maintainer = NewIndexMaintainer(h.index, h.store, logger.NewNop(), metrics.NewNop(), MaintainerConfig{})
	h.ingest = NewIngestUseCase(h.store, h.resolver, h.maintainer, h.publisher, metrics.NewNop(), logger.NewNop(), IngestConfig{})
	h.ingest.Now = func() time.Time { return at(3600) }
	h.nearest = NewNearestUseCase(h.index, h.store, NearestConfig{})
	return h
}

func report(driverID string, available bool, lat, lng float64, sec int) IngestInput {
	return IngestInput{
		DriverID:   driverID,
		Available:  ptr(available),
		Latitude:   ptr(lat),
		Longitude:  ptr(lng),
		ReportedAt: at(sec),
	}
}

var errStoreDown = errors.New("store down")

type brokenStore struct{}

func (brokenStore) Upsert(context.Context, entity.DriverState) (*entity.DriverState, entity.DriverState, error) {
	return nil, entity.DriverState{}, errStoreDown
}

func (brokenStore) Get(context.Context, string) (entity.DriverState, error) {
	return entity.DriverState{}, errStoreDown
}

func (brokenStore) GetMany(context.Context, []string) (map[string]entity.DriverState, error) {
	return nil, errStoreDown
}

func (brokenStore) ChangedSince(context.Context, time.Time, func(entity.DriverState, time.Time) error) error {
	return errStoreDown
}
