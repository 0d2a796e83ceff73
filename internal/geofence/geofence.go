// Package geofence has the distance math for the circular target region.
package geofence

import (
	"math"

	"github.com/marcus/arcsync/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used by Haversine.
const EarthRadiusMeters = 6371000.0

// Default target region.
const (
	DefaultLatitude     = 22.2562714
	DefaultLongitude    = 73.1833289
	DefaultRadiusMeters = 50.0
)

// DefaultTarget returns the built-in target region.
func DefaultTarget() Target {
	return Target{Latitude: DefaultLatitude, Longitude: DefaultLongitude, RadiusMeters: DefaultRadiusMeters}
}

// Haversine returns the great-circle distance in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	Δφ := (lat2 - lat1) * math.Pi / 180
	Δλ := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// Distance is the monitor's distance policy. Coordinates are first
// rounded to one decimal place; if both rounded axes are within 0.5 of
// each other the distance is reported as 0. Otherwise it is the haversine
// distance of the unrounded points.
//
// The pre-filter is coarse: any two points within roughly 50 km count as
// coincident, so in practice every nearby sample matches.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if math.Abs(round1(lat1)-round1(lat2)) <= 0.5 && math.Abs(round1(lon1)-round1(lon2)) <= 0.5 {
		return 0
	}
	return Haversine(lat1, lon1, lat2, lon2)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Target is a circular region.
type Target models.GeofenceTarget

// Contains reports whether s lies within the target radius, along with
// the distance used. Exact targets skip the rounding pre-filter.
func (t Target) Contains(s models.LocationSample) (bool, float64) {
	var d float64
	if t.Exact {
		d = Haversine(s.Latitude, s.Longitude, t.Latitude, t.Longitude)
	} else {
		d = Distance(s.Latitude, s.Longitude, t.Latitude, t.Longitude)
	}
	return d <= t.RadiusMeters, d
}
