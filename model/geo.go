package model

import (
	"math"
	"math/rand"
)

// earthRadiusMeters is used for the great-circle distance and disc-sampling
// calculations the predictor and orchestrator need.
const earthRadiusMeters = 6371000.0

// Location is a GPS coordinate, latitude in [-90,90] and longitude in
// (-180,180].
type Location struct {
	Lat float64
	Lon float64
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceMeters returns the great-circle distance in metres between a and
// b, using the haversine formula.
func DistanceMeters(a, b Location) float64 {
	lat1, lat2 := toRad(a.Lat), toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// RandomPointInDisc draws a location within a disc of the given radius
// (metres) centred on center: bearing uniform in [0,360), distance uniform
// in [0,radius], projected by great-circle vector. Points therefore
// cluster toward the center rather than being uniform over the disc's
// area.
func RandomPointInDisc(rng *rand.Rand, center Location, radius float64) Location {
	bearing := toRad(rng.Float64() * 360)
	dist := rng.Float64() * radius
	return project(center, bearing, dist)
}

// project moves from origin by distance metres along bearing radians,
// using the standard spherical direct geodesic formula.
func project(origin Location, bearing, distance float64) Location {
	if distance == 0 {
		return origin
	}
	angular := distance / earthRadiusMeters
	lat1 := toRad(origin.Lat)
	lon1 := toRad(origin.Lon)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) +
		math.Cos(lat1)*math.Sin(angular)*math.Cos(bearing))
	lon2 := lon1 + math.Atan2(
		math.Sin(bearing)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2))

	lon2deg := toDeg(lon2)
	// Normalize into (-180,180].
	for lon2deg > 180 {
		lon2deg -= 360
	}
	for lon2deg <= -180 {
		lon2deg += 360
	}
	return Location{Lat: toDeg(lat2), Lon: lon2deg}
}
