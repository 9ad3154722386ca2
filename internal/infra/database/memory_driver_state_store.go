package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
	"github.com/DioGolang/GoTracker/internal/domain/entity"
)

// driverSlot serializes upserts for one driver.
type driverSlot struct {
	mu          sync.Mutex
	state       *entity.DriverState
	committedAt time.Time
}

// MemoryDriverStateStore keeps driver states in process memory, partitioned
// by driver id so different drivers never contend on the same lock.
type MemoryDriverStateStore struct {
	slots sync.Map // driverID -> *driverSlot
	now   func() time.Time
}

var _ outbound.DriverStateStore = (*MemoryDriverStateStore)(nil)

func NewMemoryDriverStateStore() *MemoryDriverStateStore {
	return &MemoryDriverStateStore{now: time.Now}
}

func (s *MemoryDriverStateStore) slot(driverID string) *driverSlot {
	if v, ok := s.slots.Load(driverID); ok {
		return v.(*driverSlot)
	}
	v, _ := s.slots.LoadOrStore(driverID, &driverSlot{})
	return v.(*driverSlot)
}

func (s *MemoryDriverStateStore) Upsert(ctx context.Context, state entity.DriverState) (*entity.DriverState, entity.DriverState, error) {
	if err := state.Validate(); err != nil {
		return nil, entity.DriverState{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, entity.DriverState{}, err
	}

	slot := s.slot(state.DriverID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	prev := slot.state
	next, err := state.Supersede(prev)
	if err != nil {
		return nil, entity.DriverState{}, err
	}
	slot.state = &next
	slot.committedAt = s.now()

	if prev == nil {
		return nil, next, nil
	}
	previous := *prev
	return &previous, next, nil
}

func (s *MemoryDriverStateStore) Get(_ context.Context, driverID string) (entity.DriverState, error) {
	v, ok := s.slots.Load(driverID)
	if !ok {
		return entity.DriverState{}, fmt.Errorf("%w: %s", entity.ErrDriverNotFound, driverID)
	}
	slot := v.(*driverSlot)
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.state == nil {
		return entity.DriverState{}, fmt.Errorf("%w: %s", entity.ErrDriverNotFound, driverID)
	}
	return *slot.state, nil
}

func (s *MemoryDriverStateStore) GetMany(ctx context.Context, driverIDs []string) (map[string]entity.DriverState, error) {
	out := make(map[string]entity.DriverState, len(driverIDs))
	for _, id := range driverIDs {
		st, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		out[id] = st
	}
	return out, nil
}

func (s *MemoryDriverStateStore) ChangedSince(ctx context.Context, since time.Time, fn func(entity.DriverState, time.Time) error) error {
	type change struct {
		state entity.DriverState
		at    time.Time
	}
	var changes []change
	s.slots.Range(func(_, v any) bool {
		slot := v.(*driverSlot)
		slot.mu.Lock()
		if slot.state != nil && !slot.committedAt.Before(since) {
			changes = append(changes, change{state: *slot.state, at: slot.committedAt})
		}
		slot.mu.Unlock()
		return true
	})
	sort.Slice(changes, func(i, j int) bool {
		if !changes[i].at.Equal(changes[j].at) {
			return changes[i].at.Before(changes[j].at)
		}
		return changes[i].state.DriverID < changes[j].state.DriverID
	})

	for _, c := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c.state, c.at); err != nil {
			return err
		}
	}
	return nil
}
