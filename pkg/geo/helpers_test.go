package geo

import "math"

// destination walks distKm from a point along bearingDeg.
func destination(lat, lon, bearingDeg, distKm float64) (float64, float64) {
	d := distKm / EarthRadiusKm
	b := toRad(bearingDeg)
	φ1, λ1 := toRad(lat), toRad(lon)

	φ2 := math.Asin(math.Sin(φ1)*math.Cos(d) + math.Cos(φ1)*math.Sin(d)*math.Cos(b))
	λ2 := λ1 + math.Atan2(math.Sin(b)*math.Sin(d)*math.Cos(φ1), math.Cos(d)-math.Sin(φ1)*math.Sin(φ2))

	outLon := math.Mod(toDeg(λ2)+540, 360) - 180
	return toDeg(φ2), outLon
}
