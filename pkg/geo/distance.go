// Package geo holds the spherical math shared by the availability indexes
// and the event payloads.
package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

const EarthRadiusKm = 6371.0

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Geohash encodes a point with the given number of characters.
func Geohash(lat, lon float64, precision uint) string {
	return geohash.EncodeWithPrecision(lat, lon, precision)
}

type Box struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

func (b Box) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// BoundingBoxes returns the lat/lon rectangles covering every point within
// radiusKm of the center. A circle crossing the antimeridian yields two
// boxes; one touching a pole spans all longitudes.
func BoundingBoxes(lat, lon, radiusKm float64) []Box {
	angular := radiusKm / EarthRadiusKm
	if angular >= math.Pi {
		return []Box{{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}}
	}

	minLat := lat - toDeg(angular)
	maxLat := lat + toDeg(angular)
	if minLat <= -90 || maxLat >= 90 {
		return []Box{{
			MinLat: math.Max(minLat, -90),
			MinLon: -180,
			MaxLat: math.Min(maxLat, 90),
			MaxLon: 180,
		}}
	}

	dLon := toDeg(math.Asin(math.Sin(angular) / math.Cos(toRad(lat))))
	minLon := lon - dLon
	maxLon := lon + dLon

	switch {
	case minLon < -180:
		return []Box{
			{MinLat: minLat, MinLon: minLon + 360, MaxLat: maxLat, MaxLon: 180},
			{MinLat: minLat, MinLon: -180, MaxLat: maxLat, MaxLon: maxLon},
		}
	case maxLon > 180:
		return []Box{
			{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: 180},
			{MinLat: minLat, MinLon: -180, MaxLat: maxLat, MaxLon: maxLon - 360},
		}
	}
	return []Box{{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}}
}
