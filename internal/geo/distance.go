// Package geo provides great-circle distance math for radius queries over
// point-tagged entities.
package geo

import "math"

// earthRadiusMeters is the IUGG mean earth radius.
const earthRadiusMeters = 6371008.8

// exactTolerance is the per-axis degree tolerance used when a radius of zero
// asks for points identical to the center.
const exactTolerance = 1e-9

// Haversine returns the great-circle distance in meters between two
// lat/lng pairs. Radii in this system span tens of kilometers, so planar
// distance is never acceptable.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// WithinRadius reports whether (lat, lng) lies within radiusMeters of the
// center. A radius of zero matches only points identical to the center within
// floating-point tolerance.
func WithinRadius(centerLat, centerLng, lat, lng, radiusMeters float64) bool {
	if radiusMeters == 0 {
		return math.Abs(centerLat-lat) <= exactTolerance &&
			math.Abs(centerLng-lng) <= exactTolerance
	}
	return Haversine(centerLat, centerLng, lat, lng) <= radiusMeters
}
