package location

import (
	"time"

	"github.com/DioGolang/GoTracker/internal/domain/entity"
)

const (
	StatusAccepted  = "accepted"
	StatusDiscarded = "discarded"
)

// Input

type IngestInput struct {
	DriverID       string    `json:"driver_id"`
	Available      *bool     `json:"available"`
	VehicleID      *string   `json:"vehicle_id,omitempty"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	AccuracyMeters *float64  `json:"accuracy_m,omitempty"`
	SourceIP       string    `json:"source_ip,omitempty"`
	ReportedAt     time.Time `json:"reported_at"`
}

func (in IngestInput) Report() entity.LocationReport {
	return entity.LocationReport{
		DriverID:       in.DriverID,
		Available:      in.Available,
		VehicleID:      in.VehicleID,
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		AccuracyMeters: in.AccuracyMeters,
		SourceIP:       in.SourceIP,
		ReportedAt:     in.ReportedAt,
	}
}

type NearestInput struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	K           int     `json:"k"`
	MaxRadiusKm float64 `json:"max_radius_km"`
}

type GetDriverInput struct {
	DriverID string `json:"driver_id"`
}

// Output

type IngestOutput struct {
	DriverID      string    `json:"driver_id"`
	Status        string    `json:"status"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	LocationStale bool      `json:"location_stale"`
}

type NearestDriver struct {
	DriverID      string    `json:"driver_id"`
	VehicleID     string    `json:"vehicle_id,omitempty"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	DistanceKm    float64   `json:"distance_km"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

type NearestOutput struct {
	Drivers []NearestDriver `json:"drivers"`
}

type LocationOutput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country,omitempty"`
	City      string  `json:"city,omitempty"`
	Source    string  `json:"source"`
}

type DriverOutput struct {
	DriverID      string          `json:"driver_id"`
	Available     bool            `json:"available"`
	VehicleID     string          `json:"vehicle_id,omitempty"`
	Location      *LocationOutput `json:"location,omitempty"`
	LocationStale bool            `json:"location_stale"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
	Version       uint64          `json:"version"`
}

func toDriverOutput(s entity.DriverState) DriverOutput {
	out := DriverOutput{
		DriverID:      s.DriverID,
		Available:     s.Available,
		VehicleID:     s.VehicleID,
		LocationStale: s.LocationStale,
		LastUpdatedAt: s.LastUpdatedAt,
		Version:       s.Version,
	}
	if s.Location != nil {
		out.Location = &LocationOutput{
			Latitude:  s.Location.Latitude(),
			Longitude: s.Location.Longitude(),
			Country:   s.Location.Country(),
			City:      s.Location.City(),
			Source:    string(s.Location.Source()),
		}
	}
	return out
}
