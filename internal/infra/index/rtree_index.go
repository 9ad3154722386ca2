package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/DioGolang/GoTracker/internal/application/port/outbound"
	"github.com/DioGolang/GoTracker/pkg/geo"
	"github.com/dhconnelly/rtreego"
)

const (
	rtreeMinChildren = 25
	rtreeMaxChildren = 50
	pointTolerance   = 1e-9
)

// rtreeEntry is immutable: a moved driver gets a new entry so the tree can
// still find the old one by its bounds when deleting.
type rtreeEntry struct {
	driverID string
	lat, lng float64
}

func (e *rtreeEntry) Bounds() rtreego.Rect {
	return rtreego.Point{e.lng, e.lat}.ToRect(pointTolerance)
}

// RTreeIndex is an in-memory availability index over (lng, lat) space.
// Bounding-box hits are refined with the haversine distance.
type RTreeIndex struct {
	mu      sync.RWMutex
	tree    *rtreego.Rtree
	entries map[string]*rtreeEntry
}

var _ outbound.AvailabilityIndex = (*RTreeIndex)(nil)

func NewRTreeIndex() *RTreeIndex {
	return &RTreeIndex{
		tree:    rtreego.NewTree(2, rtreeMinChildren, rtreeMaxChildren),
		entries: make(map[string]*rtreeEntry),
	}
}

func (r *RTreeIndex) Upsert(_ context.Context, driverID string, lat, lng float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[driverID]; ok {
		if old.lat == lat && old.lng == lng {
			return nil
		}
		r.tree.Delete(old)
	}
	e := &rtreeEntry{driverID: driverID, lat: lat, lng: lng}
	r.tree.Insert(e)
	r.entries[driverID] = e
	return nil
}

func (r *RTreeIndex) Remove(_ context.Context, driverID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[driverID]; ok {
		r.tree.Delete(old)
		delete(r.entries, driverID)
	}
	return nil
}

func (r *RTreeIndex) Nearest(_ context.Context, lat, lng float64, k int, maxRadiusKm float64) ([]outbound.Neighbor, error) {
	if k <= 0 || maxRadiusKm <= 0 {
		return []outbound.Neighbor{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]outbound.Neighbor, 0, k)
	for _, b := range geo.BoundingBoxes(lat, lng, maxRadiusKm) {
		rect, err := rtreego.NewRectFromPoints(
			rtreego.Point{b.MinLon - pointTolerance, b.MinLat - pointTolerance},
			rtreego.Point{b.MaxLon + pointTolerance, b.MaxLat + pointTolerance},
		)
		if err != nil {
			return nil, fmt.Errorf("build search rect: %w", err)
		}
		for _, obj := range r.tree.SearchIntersect(rect) {
			e := obj.(*rtreeEntry)
			if _, dup := seen[e.driverID]; dup {
				continue
			}
			seen[e.driverID] = struct{}{}

			d := geo.HaversineKm(lat, lng, e.lat, e.lng)
			if d <= maxRadiusKm {
				out = append(out, outbound.Neighbor{DriverID: e.driverID, DistanceKm: d})
			}
		}
	}
	return rank(out, k), nil
}

// Replace bulk-loads a fresh tree and swaps it in.
func (r *RTreeIndex) Replace(_ context.Context, entries []outbound.IndexEntry) error {
	byID := make(map[string]*rtreeEntry, len(entries))
	for _, in := range entries {
		byID[in.DriverID] = &rtreeEntry{driverID: in.DriverID, lat: in.Latitude, lng: in.Longitude}
	}
	objs := make([]rtreego.Spatial, 0, len(byID))
	for _, e := range byID {
		objs = append(objs, e)
	}
	tree := rtreego.NewTree(2, rtreeMinChildren, rtreeMaxChildren, objs...)

	r.mu.Lock()
	r.tree = tree
	r.entries = byID
	r.mu.Unlock()
	return nil
}

func (r *RTreeIndex) Entries(_ context.Context) ([]outbound.IndexEntry, error) {
	r.mu.RLock()
	out := make([]outbound.IndexEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, outbound.IndexEntry{DriverID: e.driverID, Latitude: e.lat, Longitude: e.lng})
	}
	r.mu.RUnlock()

	sortEntries(out)
	return out, nil
}

func (r *RTreeIndex) Size(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries), nil
}
