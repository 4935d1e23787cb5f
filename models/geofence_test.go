package models

import (
	"testing"
)

func TestWithinRadius_SamePointIsValid(t *testing.T) {
	point := Coordinate{Latitude: -26.2041, Longitude: 28.0473}

	result := WithinRadius(point, point, VisitGeofenceRadiusMeters)

	if !result.Valid {
		t.Fatalf("expected same point to be inside the geofence, distance=%f", result.DistanceMeters)
	}
	if result.DistanceMeters != 0 {
		t.Fatalf("expected zero distance, got %f", result.DistanceMeters)
	}
}

func TestWithinRadius_FarPointIsInvalid(t *testing.T) {
	// Johannesburg CBD vs a point roughly 2km north.
	agent := Coordinate{Latitude: -26.2041, Longitude: 28.0473}
	customer := Coordinate{Latitude: -26.1861, Longitude: 28.0473}

	result := WithinRadius(agent, customer, VisitGeofenceRadiusMeters)

	if result.Valid {
		t.Fatalf("expected point %.0fm away to be outside a %.0fm geofence", result.DistanceMeters, VisitGeofenceRadiusMeters)
	}
	if result.DistanceMeters < 1500 || result.DistanceMeters > 2500 {
		t.Fatalf("expected roughly 2km distance, got %f", result.DistanceMeters)
	}
}

func TestWithinRadius_NearBoundaryIsValid(t *testing.T) {
	// ~50m offset in latitude (1 degree latitude is ~111km).
	agent := Coordinate{Latitude: -26.2041, Longitude: 28.0473}
	customer := Coordinate{Latitude: -26.20455, Longitude: 28.0473}

	result := WithinRadius(agent, customer, VisitGeofenceRadiusMeters)

	if !result.Valid {
		t.Fatalf("expected ~50m offset to be inside a 100m geofence, distance=%f", result.DistanceMeters)
	}
}
