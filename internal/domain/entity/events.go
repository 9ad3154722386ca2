package entity

import (
	"time"

	"github.com/DioGolang/GoTracker/pkg/geo"
	"github.com/google/uuid"
)

const (
	EventLocationChanged     = "driver.location.changed"
	EventAvailabilityChanged = "driver.availability.changed"

	eventGeohashPrecision     = 7
	partitionGeohashPrecision = 5
)

type LocationChanged struct {
	EventID   string    `json:"event_id"`
	DriverID  string    `json:"driver_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Geohash   string    `json:"geohash"`
	At        time.Time `json:"at"`
}

type AvailabilityChanged struct {
	EventID   string    `json:"event_id"`
	DriverID  string    `json:"driver_id"`
	Available bool      `json:"available"`
	At        time.Time `json:"at"`
}

// DriverEvent wraps one of the payloads above as a pkg/events.Event.
type DriverEvent struct {
	id           string
	name         string
	at           time.Time
	partitionKey string
	payload      any
}

func NewLocationChanged(s DriverState) DriverEvent {
	id := uuid.NewString()
	lat, lon := s.Location.Latitude(), s.Location.Longitude()
	return DriverEvent{
		id:           id,
		name:         EventLocationChanged,
		at:           s.LastUpdatedAt,
		partitionKey: geo.Geohash(lat, lon, partitionGeohashPrecision),
		payload: LocationChanged{
			EventID:   id,
			DriverID:  s.DriverID,
			Latitude:  lat,
			Longitude: lon,
			Geohash:   geo.Geohash(lat, lon, eventGeohashPrecision),
			At:        s.LastUpdatedAt,
		},
	}
}

func NewAvailabilityChanged(s DriverState) DriverEvent {
	id := uuid.NewString()
	key := s.DriverID
	if s.Location != nil {
		key = geo.Geohash(s.Location.Latitude(), s.Location.Longitude(), partitionGeohashPrecision)
	}
	return DriverEvent{
		id:           id,
		name:         EventAvailabilityChanged,
		at:           s.LastUpdatedAt,
		partitionKey: key,
		payload: AvailabilityChanged{
			EventID:   id,
			DriverID:  s.DriverID,
			Available: s.Available,
			At:        s.LastUpdatedAt,
		},
	}
}

func (e DriverEvent) GetID() string           { return e.id }
func (e DriverEvent) GetName() string         { return e.name }
func (e DriverEvent) GetDateTime() time.Time  { return e.at }
func (e DriverEvent) GetPayload() interface{} { return e.payload }
func (e DriverEvent) GetPartitionKey() string { return e.partitionKey }

// EventsFor lists the notifications produced by committing next over prev.
func EventsFor(prev *DriverState, next DriverState) []DriverEvent {
	var out []DriverEvent
	if next.LocationChanged(prev) {
		out = append(out, NewLocationChanged(next))
	}
	if next.AvailabilityChanged(prev) {
		out = append(out, NewAvailabilityChanged(next))
	}
	return out
}
