// Package geofence computes great-circle distances and radius checks on a
// spherical Earth.
package geofence

import "math"

// EarthRadiusMeters is the mean Earth radius.
const EarthRadiusMeters = 6371000.0

// DefaultRadiusMeters is the check-out radius around the check-in point.
const DefaultRadiusMeters = 500.0

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Distance returns the haversine distance in meters. The intermediate term
// is clamped to [0, 1] so float overshoot near antipodes cannot yield NaN.
func Distance(a, b Point) float64 {
	if a == b {
		return 0
	}
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// WithinRadius reports Distance(a, b) <= radius.
func WithinRadius(a, b Point, radius float64) bool {
	return Distance(a, b) <= radius
}

// Fence is a configured radius check.
type Fence struct {
	RadiusMeters float64
}

func NewFence(radius float64) Fence {
	if radius <= 0 {
		radius = DefaultRadiusMeters
	}
	return Fence{RadiusMeters: radius}
}

// Check returns the distance between origin and p and whether p is inside.
func (f Fence) Check(origin, p Point) (meters float64, within bool) {
	meters = Distance(origin, p)
	return meters, meters <= f.RadiusMeters
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
