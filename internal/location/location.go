// Package location defines the position fixes shared by the scheduler, the
// update manager and the data sources, plus the distance math used to decide
// whether the device has moved.
package location

import (
	"math"
	"time"
)

const earthRadiusMeters = 6371000.0

// Fix is a single position estimate. HorizontalAccuracy is a radius in meters;
// smaller is better.
type Fix struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
	Altitude           float64   `json:"altitude"`
	Speed              float64   `json:"speed"`
	Floor              *int      `json:"floor,omitempty"`
	Timestamp          time.Time `json:"timestamp"`
}

// Last returns the most recent fix of a chronologically ordered batch.
func Last(fixes []Fix) (Fix, bool) {
	if len(fixes) == 0 {
		return Fix{}, false
	}
	return fixes[len(fixes)-1], true
}

// Clone copies a batch so callers can keep it past the next delivery.
func Clone(fixes []Fix) []Fix {
	if len(fixes) == 0 {
		return nil
	}
	dup := make([]Fix, len(fixes))
	copy(dup, fixes)
	return dup
}

// DistanceMeters returns the great-circle distance between two fixes.
func DistanceMeters(a, b Fix) float64 {
	dLat := degreesToRadians(b.Latitude - a.Latitude)
	dLng := degreesToRadians(b.Longitude - a.Longitude)

	rLat1 := degreesToRadians(a.Latitude)
	rLat2 := degreesToRadians(b.Latitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
