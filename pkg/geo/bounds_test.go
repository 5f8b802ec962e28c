package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestBufferBounds_Equator(t *testing.T) {
	b := BufferBounds(0, 0, 111319.49)

	assert.InDelta(t, -1, b.West, 1e-4)
	assert.InDelta(t, 1, b.East, 1e-4)
	assert.InDelta(t, -1, b.South, 1e-4)
	assert.InDelta(t, 1, b.North, 1e-4)
}

func TestBufferBounds_WidensWithLatitude(t *testing.T) {
	equator := BufferBounds(-88.263, 0, 2000)
	north := BufferBounds(-88.263, 37.453, 2000)

	assert.InDelta(t, equator.North-equator.South, north.North-north.South, 1e-9)
	assert.Greater(t, north.East-north.West, equator.East-equator.West)
}

func TestBufferBounds_Clamped(t *testing.T) {
	pole := BufferBounds(10, 90, 5000)
	assert.Equal(t, -180.0, pole.West)
	assert.Equal(t, 180.0, pole.East)
	assert.Equal(t, 90.0, pole.North)

	dateline := BufferBounds(179.99, 0, 5000)
	assert.Equal(t, 180.0, dateline.East)
	assert.Less(t, dateline.West, 179.99)
}

func TestBufferBounds_CircleOverPoleSpansAllLongitudes(t *testing.T) {
	tests := []struct {
		name          string
		lon, lat, rad float64
	}{
		{"north pole", 10, 90, 5000},
		{"near north pole", -45, 89.99, 5000},
		{"near south pole", 120, -89.98, 5000},
		{"huge radius", 0, 60, 20000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := BufferBounds(tt.lon, tt.lat, tt.rad)
			assert.Equal(t, -180.0, b.West)
			assert.Equal(t, 180.0, b.East)
			assert.GreaterOrEqual(t, b.South, -90.0)
			assert.LessOrEqual(t, b.North, 90.0)
		})
	}
}

func TestBounds_Ring(t *testing.T) {
	ring := Bounds{West: 1, South: 2, East: 3, North: 4}.Ring()

	assert.Len(t, ring, 5)
	assert.Equal(t, ring[0], ring[4])
}

func TestBufferBounds_ContainsCenter(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lon := rapid.Float64Range(-180, 180).Draw(t, "lon")
		lat := rapid.Float64Range(-90, 90).Draw(t, "lat")
		radius := rapid.Float64Range(1, 100000).Draw(t, "radius")

		b := BufferBounds(lon, lat, radius)
		if lon < b.West || lon > b.East || lat < b.South || lat > b.North {
			t.Fatalf("bounds %+v do not contain (%v, %v)", b, lon, lat)
		}
		if b.West > b.East || b.South > b.North {
			t.Fatalf("inverted bounds %+v", b)
		}
		if math.IsNaN(b.West + b.East + b.South + b.North) {
			t.Fatalf("NaN in bounds %+v", b)
		}
	})
}
