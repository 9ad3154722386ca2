package entity

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const DefaultLowConfidenceAccuracyMeters = 2000.0

// LocationReport is a raw position report as sent by a driver device.
// Optional fields are pointers so "absent" and "zero" stay distinct.
type LocationReport struct {
	DriverID       string
	Available      *bool
	// VehicleID nil keeps the current assignment, "" clears it.
	VehicleID      *string
	Latitude       *float64
	Longitude      *float64
	AccuracyMeters *float64
	SourceIP       string
	ReportedAt     time.Time
}

func (r LocationReport) Validate(now time.Time, skew time.Duration) error {
	if strings.TrimSpace(r.DriverID) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrDriverIDRequired)
	}
	if r.Available == nil {
		return fmt.Errorf("%w: %w", ErrValidation, ErrAvailableRequired)
	}
	if r.ReportedAt.IsZero() {
		return fmt.Errorf("%w: %w", ErrValidation, ErrTimestampRequired)
	}
	if r.ReportedAt.After(now.Add(skew)) {
		return fmt.Errorf("%w: %w (%s > %s + %s)", ErrValidation, ErrTimestampInFuture,
			r.ReportedAt.Format(time.RFC3339), now.Format(time.RFC3339), skew)
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		return fmt.Errorf("%w: %w", ErrValidation, ErrIncompleteCoords)
	}
	if c, ok := r.Coordinates(); ok {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	if r.AccuracyMeters != nil && (*r.AccuracyMeters < 0 || math.IsNaN(*r.AccuracyMeters)) {
		return fmt.Errorf("%w: %w", ErrValidation, ErrNegativeAccuracy)
	}
	return nil
}

func (r LocationReport) Coordinates() (Coordinates, bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return Coordinates{}, false
	}
	return Coordinates{Latitude: *r.Latitude, Longitude: *r.Longitude}, true
}

// LowConfidence reports whether the device coordinates carry an accuracy
// radius wider than threshold meters. Reports without accuracy are trusted.
func (r LocationReport) LowConfidence(thresholdMeters float64) bool {
	return r.AccuracyMeters != nil && thresholdMeters > 0 && *r.AccuracyMeters > thresholdMeters
}
