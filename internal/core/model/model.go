// Package model defines core domain types shared across the service.
package model

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// BBox is a geographic bounding box in lon/lat degrees.
type BBox struct {
	West, South float64
	East, North float64
}

// String representation matching the wms/wfs bbox format.
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.West, b.South, b.East, b.North)
}

// Intersects reports whether two boxes share any area.
func (b BBox) Intersects(o BBox) bool {
	return b.West <= o.East && o.West <= b.East &&
		b.South <= o.North && o.South <= b.North
}

// RasterSource is the immutable byte buffer of one uploaded raster file.
// It is superseded, never mutated, when a new file arrives.
type RasterSource struct {
	Name string
	Data []byte

	fingerprint uint64
}

func NewRasterSource(name string, data []byte) *RasterSource {
	return &RasterSource{
		Name:        name,
		Data:        data,
		fingerprint: xxhash.Sum64(data),
	}
}

// Fingerprint is a stable content hash used for cache keys and catalog entries.
func (s *RasterSource) Fingerprint() uint64 {
	return s.fingerprint
}

func (s *RasterSource) Size() int {
	return len(s.Data)
}

// ExportOptions is the small options record handed to export generators.
type ExportOptions struct {
	OutputName string
	MinZoom    int
	MaxZoom    int
}

func (o ExportOptions) Validate() error {
	if o.OutputName == "" {
		return fmt.Errorf("output name must not be empty")
	}
	if o.MinZoom < 0 || o.MaxZoom > 22 {
		return fmt.Errorf("zoom levels must be within [0,22], got %d..%d", o.MinZoom, o.MaxZoom)
	}
	if o.MinZoom > o.MaxZoom {
		return fmt.Errorf("min zoom %d exceeds max zoom %d", o.MinZoom, o.MaxZoom)
	}
	return nil
}
