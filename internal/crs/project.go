package crs

import (
	"math"

	"github.com/rezw4n/geotiles/internal/core/model"
)

const earthRadius = 6378137.0

// Projection converts between a source CRS and WGS84 lon/lat degrees.
// This is deliberately not a transformation engine: only the projections
// the overlay renderer needs are covered.
type Projection interface {
	ToWGS84(x, y float64) (lon, lat float64)
	FromWGS84(lon, lat float64) (x, y float64)
	EPSG() int
}

// ProjectionFor returns the projection for an EPSG code, or nil when the
// code is not supported.
func ProjectionFor(epsg int) Projection {
	switch epsg {
	case 4326, 4269:
		return WGS84Identity{code: epsg}
	case 3857, 3395:
		return WebMercator{code: epsg}
	default:
		return nil
	}
}

// WGS84Identity is a no-op projection for data already in degrees.
type WGS84Identity struct{ code int }

func (p WGS84Identity) ToWGS84(x, y float64) (float64, float64)       { return x, y }
func (p WGS84Identity) FromWGS84(lon, lat float64) (float64, float64) { return lon, lat }
func (p WGS84Identity) EPSG() int                                     { return p.code }

// WebMercator covers the spherical mercator family.
type WebMercator struct{ code int }

func (p WebMercator) ToWGS84(x, y float64) (float64, float64) {
	lon := x / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

func (p WebMercator) FromWGS84(lon, lat float64) (float64, float64) {
	x := lon * math.Pi / 180 * earthRadius
	y := math.Log(math.Tan(math.Pi/4+lat*math.Pi/360)) * earthRadius
	return x, y
}

func (p WebMercator) EPSG() int { return p.code }

// BoundsToWGS84 converts a native-CRS bounding box to lon/lat degrees.
// Unprojectable boxes pass through unchanged; the overlay then declares
// whatever coordinates its georeferencing carries.
func BoundsToWGS84(epsg int, b model.BBox) model.BBox {
	p := ProjectionFor(epsg)
	if p == nil {
		return b
	}
	w, s := p.ToWGS84(b.West, b.South)
	e, n := p.ToWGS84(b.East, b.North)
	return model.BBox{West: w, South: s, East: e, North: n}
}
