package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// Truncation loses strictly less than one unit; the slack absorbs float rounding.
const roundTripTolerance = 1e-7 + 1e-12

func TestEncodeTruncatesTowardZero(t *testing.T) {
	require := require.New(t)

	require.Equal(int64(377749000), Encode(37.7749))
	require.Equal(int64(-1224194000), Encode(-122.4194))
	require.Equal(int64(12), Encode(0.00000129))
	require.Equal(int64(-12), Encode(-0.00000129))
	require.Equal(int64(0), Encode(0))
}

func TestEncodeSaturates(t *testing.T) {
	require := require.New(t)

	require.Equal(int64(0), Encode(math.NaN()))
	require.Equal(int64(math.MaxInt64), Encode(math.Inf(1)))
	require.Equal(int64(math.MinInt64), Encode(math.Inf(-1)))
	require.Equal(int64(math.MaxInt64), Encode(1e300))
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	for lat := -90.0; lat <= 90.0; lat += 0.3712345 {
		got := Decode(Encode(lat))
		if math.Abs(got-lat) > roundTripTolerance {
			t.Fatalf("lat %v round-tripped to %v", lat, got)
		}
	}
	for lng := -180.0; lng <= 180.0; lng += 0.7654321 {
		got := Decode(Encode(lng))
		if math.Abs(got-lng) > roundTripTolerance {
			t.Fatalf("lng %v round-tripped to %v", lng, got)
		}
	}
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name     string
		lat, lng int64
		want     error
	}{
		{"origin", 0, 0, nil},
		{"max lat", 900_000_000, 0, nil},
		{"min lat", -900_000_000, 0, nil},
		{"lat over", 900_000_001, 0, ErrInvalidLatitude},
		{"lat under", -900_000_001, 0, ErrInvalidLatitude},
		{"max lng", 0, 1_800_000_000, nil},
		{"min lng", 0, -1_800_000_000, nil},
		{"lng over", 0, 1_800_000_001, ErrInvalidLongitude},
		{"lng under", 0, -1_800_000_001, ErrInvalidLongitude},
		{"both bad reports latitude", 900_000_001, 1_800_000_001, ErrInvalidLatitude},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, Validate(tt.lat, tt.lng), tt.want)
			if tt.want == nil {
				require.NoError(t, Validate(tt.lat, tt.lng))
			}
		})
	}
}

func TestFromDegrees(t *testing.T) {
	require := require.New(t)

	p, err := FromDegrees(37.7749, -122.4194)
	require.NoError(err)
	lat, lng := p.Degrees()
	require.InDelta(37.7749, lat, roundTripTolerance)
	require.InDelta(-122.4194, lng, roundTripTolerance)
	require.Equal("37.7749000,-122.4194000", p.String())

	_, err = FromDegrees(90.000001, 0)
	require.ErrorIs(err, ErrInvalidLatitude)
	_, err = FromDegrees(0, -180.000001)
	require.ErrorIs(err, ErrInvalidLongitude)
	_, err = FromDegrees(math.NaN(), 0)
	require.ErrorIs(err, ErrInvalidLatitude)
	_, err = FromDegrees(0, math.Inf(1))
	require.ErrorIs(err, ErrInvalidLongitude)

	p, err = FromDegrees(90, 180)
	require.NoError(err)
	require.Equal(Point{Lat: MaxLatitude, Lng: MaxLongitude}, p)
}
