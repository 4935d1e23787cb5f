package models

import "math"

const earthRadiusMeters = 6371000.0

// VisitGeofenceRadiusMeters is the tolerance applied to arrival/departure
// location checks. Failing the check is a soft warning, not a block:
// field connectivity and GPS drift are common.
const VisitGeofenceRadiusMeters = 100.0

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type GeofenceResult struct {
	DistanceMeters float64 `json:"distance_meters"`
	RadiusMeters   float64 `json:"radius_meters"`
	Valid          bool    `json:"valid"`
}

// WithinRadius reports the haversine great-circle distance between two points
// and whether it falls within the given radius. Pure; no I/O.
func WithinRadius(a, b Coordinate, radiusMeters float64) GeofenceResult {
	distance := haversineMeters(a, b)
	return GeofenceResult{
		DistanceMeters: distance,
		RadiusMeters:   radiusMeters,
		Valid:          distance <= radiusMeters,
	}
}

func haversineMeters(a, b Coordinate) float64 {
	lat1 := degToRad(a.Latitude)
	lat2 := degToRad(b.Latitude)
	dLat := degToRad(b.Latitude - a.Latitude)
	dLon := degToRad(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
