package entity

import (
	"fmt"
	"strings"
	"time"
)

// DriverState is the authoritative current record of one driver.
type DriverState struct {
	DriverID      string
	Available     bool
	VehicleID     string
	Location      *GeoRecord
	LocationStale bool
	LastUpdatedAt time.Time
	// Version is assigned by the store on every commit, starting at 1.
	Version uint64

	clearVehicle bool
}

// WithVehicleCleared marks s so Supersede drops the previous vehicle
// assignment instead of keeping it.
func (s DriverState) WithVehicleCleared() DriverState {
	s.VehicleID = ""
	s.clearVehicle = true
	return s
}

func (s DriverState) Validate() error {
	if strings.TrimSpace(s.DriverID) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrDriverIDRequired)
	}
	if s.LastUpdatedAt.IsZero() {
		return fmt.Errorf("%w: %w", ErrValidation, ErrTimestampRequired)
	}
	return nil
}

// Indexable reports whether the driver belongs in the availability index.
func (s DriverState) Indexable() bool {
	return s.Available && s.Location != nil
}

// Supersede merges s on top of the stored state prev and returns the state
// to commit. prev may be nil for a driver reporting for the first time.
//
// A report strictly older than prev is rejected with ErrStaleReport; equal
// timestamps are applied so a redelivered report converges to the same
// state. A nil Location keeps the previous one and an empty VehicleID keeps
// the previous assignment unless the state was built WithVehicleCleared.
func (s DriverState) Supersede(prev *DriverState) (DriverState, error) {
	next := s
	next.clearVehicle = false
	if prev == nil {
		next.Version = 1
		return next, nil
	}
	if s.LastUpdatedAt.Before(prev.LastUpdatedAt) {
		return DriverState{}, fmt.Errorf("%w: driver %s at %s is older than %s",
			ErrStaleReport, s.DriverID,
			s.LastUpdatedAt.Format(time.RFC3339Nano),
			prev.LastUpdatedAt.Format(time.RFC3339Nano))
	}

	if next.Location == nil {
		next.Location = prev.Location
		next.LocationStale = s.LocationStale || prev.LocationStale
	}
	if next.VehicleID == "" && !s.clearVehicle {
		next.VehicleID = prev.VehicleID
	}
	next.Version = prev.Version + 1
	return next, nil
}

// LocationChanged reports whether s moved relative to prev.
func (s DriverState) LocationChanged(prev *DriverState) bool {
	if s.Location == nil {
		return false
	}
	if prev == nil || prev.Location == nil {
		return true
	}
	return !s.Location.SamePosition(*prev.Location)
}

func (s DriverState) AvailabilityChanged(prev *DriverState) bool {
	return prev == nil || prev.Available != s.Available
}
