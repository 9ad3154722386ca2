package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
	"github.com/DioGolang/GoTracker/internal/domain/entity"
	"github.com/DioGolang/GoTracker/pkg/logger"
	"github.com/DioGolang/GoTracker/pkg/metrics"
)

type MaintainerConfig struct {
	ReconcileInterval time.Duration
	// RebuildInterval of zero disables periodic rebuilds; the start-up
	// rebuild always runs.
	RebuildInterval time.Duration
	// StaleAfter of zero keeps silent drivers indexed forever.
	StaleAfter time.Duration
	// FollowLag is how far behind its watermark Follow re-reads, covering
	// commits that became visible after later ones.
	FollowLag time.Duration
}

const DefaultFollowLag = 5 * time.Second

type appliedVersion struct {
	mu      sync.Mutex
	version uint64
}

// IndexMaintainer keeps the availability index in line with the state store.
// States are applied in per-driver Version order; failed operations are
// remembered and retried by Reconcile, and Rebuild replaces the whole index
// from a store scan. Follow picks up commits made by other processes
// sharing the store.
type IndexMaintainer struct {
	index   outbound.AvailabilityIndex
	store   outbound.DriverStateStore
	log     logger.Logger
	metrics metrics.Metrics
	cfg     MaintainerConfig
	now     func() time.Time

	applied sync.Map // driverID -> *appliedVersion

	mu         sync.Mutex
	dirty      map[string]struct{}
	rebuilding bool
	touched    map[string]struct{}

	// rebuildMu serializes Rebuild and Follow and guards watermark.
	rebuildMu sync.Mutex
	watermark time.Time
}

var (
	_ IndexApplier   = (*IndexMaintainer)(nil)
	_ IndexRebuilder = (*IndexMaintainer)(nil)
)

func NewIndexMaintainer(index outbound.AvailabilityIndex, store outbound.DriverStateStore, log logger.Logger, m metrics.Metrics, cfg MaintainerConfig) *IndexMaintainer {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 2 * time.Second
	}
	if cfg.FollowLag <= 0 {
		cfg.FollowLag = DefaultFollowLag
	}
	return &IndexMaintainer{
		index:   index,
		store:   store,
		log:     log.With(logger.String("component", "index-maintainer")),
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		dirty:   make(map[string]struct{}),
	}
}

func (m *IndexMaintainer) slot(driverID string) *appliedVersion {
	if v, ok := m.applied.Load(driverID); ok {
		return v.(*appliedVersion)
	}
	v, _ := m.applied.LoadOrStore(driverID, &appliedVersion{})
	return v.(*appliedVersion)
}

// Apply projects a freshly committed state. A state older than the last one
// applied for the same driver is ignored.
func (m *IndexMaintainer) Apply(ctx context.Context, state entity.DriverState) error {
	return m.apply(ctx, state, false)
}

// apply with latest=true accepts a state with the same version as the one
// already applied; Reconcile uses it to repair entries overwritten by a rebuild.
func (m *IndexMaintainer) apply(ctx context.Context, state entity.DriverState, latest bool) error {
	slot := m.slot(state.DriverID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if state.Version < slot.version || (state.Version == slot.version && !latest) {
		return nil
	}

	m.touch(state.DriverID)
	if err := m.project(ctx, state); err != nil {
		m.markDirty(state.DriverID)
		return fmt.Errorf("%w: driver %s: %w", entity.ErrIndexMaintenance, state.DriverID, err)
	}
	slot.version = state.Version
	m.clearDirty(state.DriverID)
	return nil
}

func (m *IndexMaintainer) project(ctx context.Context, s entity.DriverState) error {
	if !s.Indexable() || m.expired(s) {
		err := m.index.Remove(ctx, s.DriverID)
		m.metrics.RecordIndexOperation("remove", err == nil)
		return err
	}
	err := m.index.Upsert(ctx, s.DriverID, s.Location.Latitude(), s.Location.Longitude())
	if errors.Is(err, outbound.ErrUnindexable) {
		m.log.Warn(ctx, "driver position cannot be indexed, removing",
			logger.String("driver_id", s.DriverID),
			logger.Float64("lat", s.Location.Latitude()),
		)
		err = m.index.Remove(ctx, s.DriverID)
		m.metrics.RecordIndexOperation("remove", err == nil)
		return err
	}
	m.metrics.RecordIndexOperation("upsert", err == nil)
	return err
}

func (m *IndexMaintainer) expired(s entity.DriverState) bool {
	return m.cfg.StaleAfter > 0 && m.now().Sub(s.LastUpdatedAt) > m.cfg.StaleAfter
}

func (m *IndexMaintainer) touch(driverID string) {
	m.mu.Lock()
	if m.rebuilding {
		m.touched[driverID] = struct{}{}
	}
	m.mu.Unlock()
}

func (m *IndexMaintainer) markDirty(driverID string) {
	m.mu.Lock()
	m.dirty[driverID] = struct{}{}
	m.mu.Unlock()
}

func (m *IndexMaintainer) clearDirty(driverID string) {
	m.mu.Lock()
	delete(m.dirty, driverID)
	m.mu.Unlock()
}

// Pending returns the number of drivers waiting for a retry.
func (m *IndexMaintainer) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dirty)
}

// Reconcile retries every dirty driver against its current stored state.
func (m *IndexMaintainer) Reconcile(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.dirty))
	for id := range m.dirty {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, id := range ids {
		state, err := m.store.Get(ctx, id)
		if errors.Is(err, entity.ErrDriverNotFound) {
			if err := m.index.Remove(ctx, id); err != nil {
				errs = append(errs, err)
				continue
			}
			m.clearDirty(id)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: load %s: %w", entity.ErrIndexMaintenance, id, err))
			continue
		}
		if err := m.apply(ctx, state, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Rebuild replaces the index content with the indexable drivers found by a
// full store scan and returns how many were indexed. Drivers applied while
// the scan runs are reconciled right after the swap.
func (m *IndexMaintainer) Rebuild(ctx context.Context) (int, error) {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	m.mu.Lock()
	m.rebuilding = true
	m.touched = make(map[string]struct{})
	m.mu.Unlock()

	start := time.Now()
	var (
		entries   []outbound.IndexEntry
		watermark time.Time
	)
	err := m.store.ChangedSince(ctx, time.Time{}, func(s entity.DriverState, committedAt time.Time) error {
		if committedAt.After(watermark) {
			watermark = committedAt
		}
		if s.Indexable() && !m.expired(s) {
			entries = append(entries, outbound.IndexEntry{
				DriverID:  s.DriverID,
				Latitude:  s.Location.Latitude(),
				Longitude: s.Location.Longitude(),
			})
		}
		return nil
	})
	if err == nil {
		err = m.index.Replace(ctx, entries)
	}
	m.metrics.RecordIndexOperation("rebuild", err == nil)

	m.mu.Lock()
	m.rebuilding = false
	if err == nil {
		// the swap fixed every failed entry except those touched meanwhile
		m.dirty = m.touched
	} else {
		for id := range m.touched {
			m.dirty[id] = struct{}{}
		}
	}
	m.touched = nil
	m.mu.Unlock()

	if err != nil {
		return 0, fmt.Errorf("%w: rebuild: %w", entity.ErrIndexMaintenance, err)
	}
	if watermark.After(m.watermark) {
		m.watermark = watermark
	}
	m.reportSize(ctx, len(entries))
	m.log.Info(ctx, "availability index rebuilt",
		logger.Int("entries", len(entries)),
		logger.Duration("took", time.Since(start)),
	)
	return len(entries), m.Reconcile(ctx)
}

// Follow applies every driver committed since the previous Follow or
// Rebuild, whichever process committed it, and returns how many states it
// read. Re-reading FollowLag before the watermark is harmless: states
// already applied are skipped by version.
func (m *IndexMaintainer) Follow(ctx context.Context) (int, error) {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	var since time.Time
	if !m.watermark.IsZero() {
		since = m.watermark.Add(-m.cfg.FollowLag)
	}

	var (
		read int
		errs []error
	)
	err := m.store.ChangedSince(ctx, since, func(s entity.DriverState, committedAt time.Time) error {
		read++
		if committedAt.After(m.watermark) {
			m.watermark = committedAt
		}
		// a failed apply leaves the driver dirty for Reconcile
		if err := m.apply(ctx, s, false); err != nil {
			errs = append(errs, err)
		}
		return nil
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: follow store: %w", entity.ErrIndexMaintenance, err))
	}
	return read, errors.Join(errs...)
}

// EvictStale removes drivers that have been silent for longer than StaleAfter.
// The store keeps them; a new report re-admits them.
func (m *IndexMaintainer) EvictStale(ctx context.Context) (int, error) {
	if m.cfg.StaleAfter <= 0 {
		return 0, nil
	}
	entries, err := m.index.Entries(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: list entries: %w", entity.ErrIndexMaintenance, err)
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.DriverID
	}
	states, err := m.store.GetMany(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("%w: hydrate entries: %w", entity.ErrIndexMaintenance, err)
	}

	evicted := 0
	for _, id := range ids {
		s, ok := states[id]
		if ok && !m.expired(s) {
			continue
		}
		if m.evict(ctx, id, s.Version) {
			evicted++
		}
	}
	if evicted > 0 {
		m.log.Info(ctx, "evicted silent drivers from the index", logger.Int("count", evicted))
	}
	return evicted, nil
}

func (m *IndexMaintainer) evict(ctx context.Context, driverID string, version uint64) bool {
	slot := m.slot(driverID)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.version > version {
		return false
	}
	err := m.index.Remove(ctx, driverID)
	m.metrics.RecordIndexOperation("evict", err == nil)
	if err != nil {
		m.markDirty(driverID)
		return false
	}
	return true
}

// Run rebuilds the index once and then keeps it healthy until ctx is done.
func (m *IndexMaintainer) Run(ctx context.Context) error {
	if _, err := m.Rebuild(ctx); err != nil {
		m.log.Error(ctx, "initial index rebuild failed", logger.WithError(err))
	}

	reconcile := time.NewTicker(m.cfg.ReconcileInterval)
	defer reconcile.Stop()

	var rebuildC <-chan time.Time
	if m.cfg.RebuildInterval > 0 {
		rebuild := time.NewTicker(m.cfg.RebuildInterval)
		defer rebuild.Stop()
		rebuildC = rebuild.C
	}

	var evictC <-chan time.Time
	if m.cfg.StaleAfter > 0 {
		evict := time.NewTicker(max(m.cfg.StaleAfter/4, m.cfg.ReconcileInterval))
		defer evict.Stop()
		evictC = evict.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reconcile.C:
			if _, err := m.Follow(ctx); err != nil {
				m.log.Warn(ctx, "following store changes failed", logger.WithError(err))
			}
			if err := m.Reconcile(ctx); err != nil {
				m.log.Warn(ctx, "index reconcile incomplete",
					logger.Int("pending", m.Pending()), logger.WithError(err))
			}
			m.reportSize(ctx, -1)
		case <-rebuildC:
			if _, err := m.Rebuild(ctx); err != nil {
				m.log.Error(ctx, "periodic index rebuild failed", logger.WithError(err))
			}
		case <-evictC:
			if _, err := m.EvictStale(ctx); err != nil {
				m.log.Warn(ctx, "stale driver eviction failed", logger.WithError(err))
			}
		}
	}
}

type sizer interface {
	Size(ctx context.Context) (int, error)
}

// reportSize publishes the index size, asking the index when it can tell and
// falling back to known otherwise (negative means unknown).
func (m *IndexMaintainer) reportSize(ctx context.Context, known int) {
	if s, ok := m.index.(sizer); ok {
		if n, err := s.Size(ctx); err == nil {
			known = n
		}
	}
	if known >= 0 {
		m.metrics.SetIndexSize(known)
	}
}
