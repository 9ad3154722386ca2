package entity

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

type GeoSource string

const (
	GeoSourceGPS GeoSource = "gps"
	GeoSourceIP  GeoSource = "ip"
)

func (s GeoSource) Valid() bool {
	return s == GeoSourceGPS || s == GeoSourceIP
}

// Coordinates is a raw latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

func (c Coordinates) Validate() error {
	return ValidateCoordinates(c.Latitude, c.Longitude)
}

func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrLatitudeOutOfRange)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrLongitudeOutOfRange)
	}
	return nil
}

// GeoRecord is a resolved position. It is immutable once built.
type GeoRecord struct {
	id        string
	sourceIP  string
	country   string
	city      string
	latitude  float64
	longitude float64
	source    GeoSource
}

type GeoRecordOption func(*GeoRecord)

func WithID(id string) GeoRecordOption {
	return func(g *GeoRecord) { g.id = id }
}

func WithSourceIP(ip string) GeoRecordOption {
	return func(g *GeoRecord) { g.sourceIP = ip }
}

func WithPlace(country, city string) GeoRecordOption {
	return func(g *GeoRecord) {
		g.country = country
		g.city = city
	}
}

func NewGeoRecord(lat, lon float64, source GeoSource, opts ...GeoRecordOption) (GeoRecord, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return GeoRecord{}, err
	}
	if !source.Valid() {
		return GeoRecord{}, fmt.Errorf("%w: %w %q", ErrValidation, ErrInvalidGeoSource, source)
	}

	g := GeoRecord{latitude: lat, longitude: lon, source: source}
	for _, opt := range opts {
		opt(&g)
	}
	if g.id == "" {
		g.id = uuid.NewString()
	}
	return g, nil
}

func (g GeoRecord) ID() string               { return g.id }
func (g GeoRecord) SourceIP() string         { return g.sourceIP }
func (g GeoRecord) Country() string          { return g.country }
func (g GeoRecord) City() string             { return g.city }
func (g GeoRecord) Latitude() float64        { return g.latitude }
func (g GeoRecord) Longitude() float64       { return g.longitude }
func (g GeoRecord) Source() GeoSource        { return g.source }
func (g GeoRecord) Coordinates() Coordinates { return Coordinates{Latitude: g.latitude, Longitude: g.longitude} }

// SamePosition compares coordinates only; ids and place names are ignored.
func (g GeoRecord) SamePosition(other GeoRecord) bool {
	return g.latitude == other.latitude && g.longitude == other.longitude
}
