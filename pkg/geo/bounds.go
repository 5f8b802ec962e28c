package geo

import (
	"math"
)

const EarthRadius = 6378137.0 // WGS84, meters

// Bounds is a lon/lat rectangle in degrees.
type Bounds struct {
	West, South, East, North float64
}

// BufferBounds returns the bounding rectangle of a circle of radius meters around
// (lon, lat) on a spherical earth. A circle reaching a pole spans every longitude. A
// circle crossing the antimeridian is truncated at ±180.
func BufferBounds(lon, lat, radius float64) Bounds {
	dLat := radius / EarthRadius * 180 / math.Pi
	south, north := lat-dLat, lat+dLat

	cosLat := math.Cos(lat * math.Pi / 180)
	dLon := 180.0
	if cosLat > 1e-12 {
		dLon = radius / (EarthRadius * cosLat) * 180 / math.Pi
	}

	if dLon >= 180 || south <= -90 || north >= 90 {
		return Bounds{
			West:  -180,
			South: math.Max(-90, south),
			East:  180,
			North: math.Min(90, north),
		}
	}
	return Bounds{
		West:  math.Max(-180, lon-dLon),
		South: south,
		East:  math.Min(180, lon+dLon),
		North: north,
	}
}

// Ring returns the closed GeoJSON exterior ring of b.
func (b Bounds) Ring() [][]float64 {
	return [][]float64{
		{b.West, b.South},
		{b.East, b.South},
		{b.East, b.North},
		{b.West, b.North},
		{b.West, b.South},
	}
}
