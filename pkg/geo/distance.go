// Package geo holds the small amount of coordinate math shared by the lookup
// clients: metre/degree conversions, great-circle distance and bounding boxes.
package geo

import "math"

const (
	earthRadiusM    = 6371000.0
	metersPerDegLat = 111320.0
)

// MetersPerDegree returns the length in meters of one degree of latitude and
// one degree of longitude at the given latitude.
func MetersPerDegree(lat float64) (mLat, mLon float64) {
	return metersPerDegLat, metersPerDegLat * math.Cos(toRad(lat))
}

// DegForMeters approximates the latitude and longitude offsets in degrees for
// a distance in meters at the given latitude.
func DegForMeters(lat, meters float64) (dLat, dLon float64) {
	dLat = meters / metersPerDegLat
	dLon = dLat * math.Cos(toRad(lat))
	return dLat, dLon
}

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

// RingCentroid returns the arithmetic mean of the ring vertices as (lon, lat).
// ok is false for an empty ring.
func RingCentroid(ring [][2]float64) (lon, lat float64, ok bool) {
	if len(ring) == 0 {
		return 0, 0, false
	}
	var sumLon, sumLat float64
	for _, pt := range ring {
		sumLon += pt[0]
		sumLat += pt[1]
	}
	n := float64(len(ring))
	return sumLon / n, sumLat / n, true
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
