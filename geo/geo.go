// Package geo converts decimal-degree coordinates to the fixed-point form stored
// on the ledger and validates their range.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// Scale is the fixed-point multiplier: 7 decimal places, about 1cm at the equator.
const Scale = 10_000_000

// Inclusive bounds of the fixed-point representation (±90° and ±180°).
const (
	MinLatitude  int64 = -90 * Scale
	MaxLatitude  int64 = 90 * Scale
	MinLongitude int64 = -180 * Scale
	MaxLongitude int64 = 180 * Scale
)

var (
	// ErrInvalidLatitude is returned for latitudes outside ±90° or not finite.
	ErrInvalidLatitude = errors.New("invalid latitude value")
	// ErrInvalidLongitude is returned for longitudes outside ±180° or not finite.
	ErrInvalidLongitude = errors.New("invalid longitude value")
)

// Encode converts degrees to fixed point, truncating toward zero.
// Inputs outside the int64 range saturate and NaN encodes as 0.
func Encode(degrees float64) int64 {
	v := degrees * Scale
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt64:
		return math.MaxInt64
	case v <= math.MinInt64:
		return math.MinInt64
	}
	return int64(v)
}

// Decode converts a fixed-point value back to degrees.
func Decode(fixed int64) float64 {
	return float64(fixed) / Scale
}

// Validate checks latitude first, then longitude.
func Validate(lat, lng int64) error {
	if lat < MinLatitude || lat > MaxLatitude {
		return ErrInvalidLatitude
	}
	if lng < MinLongitude || lng > MaxLongitude {
		return ErrInvalidLongitude
	}
	return nil
}

// Point is a validated fixed-point location.
type Point struct {
	Lat int64 `json:"lat"`
	Lng int64 `json:"lng"`
}

// FromDegrees encodes and validates a location. Non-finite components are
// rejected with the matching coordinate error rather than being saturated.
// A saturating cast would map NaN to 0, silently placing the task at (0, 0).
func FromDegrees(lat, lng float64) (Point, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) {
		return Point{}, ErrInvalidLatitude
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) {
		return Point{}, ErrInvalidLongitude
	}
	p := Point{Lat: Encode(lat), Lng: Encode(lng)}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Validate reports whether both components are in range.
func (p Point) Validate() error { return Validate(p.Lat, p.Lng) }

// Degrees returns the decoded latitude and longitude.
func (p Point) Degrees() (lat, lng float64) {
	return Decode(p.Lat), Decode(p.Lng)
}

func (p Point) String() string {
	lat, lng := p.Degrees()
	return fmt.Sprintf("%.7f,%.7f", lat, lng)
}
