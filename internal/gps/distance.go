// Package gps computes travel metrics from the GPS fixes on worker visits.
package gps

import (
	"math"
	"sort"

	"github.com/sells-group/flw-audit/internal/model"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6_371_000.0

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PointOf returns the coordinate of a visit's GPS fix and whether the fix is
// usable for distance computation.
func PointOf(v model.CompletedVisit) (Point, bool) {
	if !v.Location.Usable() {
		return Point{}, false
	}
	return Point{Lat: v.Location.Latitude, Lon: v.Location.Longitude}, true
}

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// median returns the middle value of xs, averaging the two middle values for
// even lengths. xs is sorted in place.
func median(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	sort.Float64s(xs)
	mid := len(xs) / 2
	if len(xs)%2 == 1 {
		return xs[mid], true
	}
	return (xs[mid-1] + xs[mid]) / 2, true
}
