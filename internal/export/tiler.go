// Package export turns a validated raster source into distribution
// artifacts: a PMTiles archive, a tile-directory zip, and OGC
// capabilities documents; generated blobs are cached in redis.
package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // TIFF decoder for raster rendering

	"github.com/rezw4n/geotiles/internal/core/model"
)

// Job is the input every generator receives: the raster bytes, the
// overlay's geographic bounds and the user's export options.
type Job struct {
	Source *model.RasterSource
	Bounds model.BBox
	Opts   model.ExportOptions
}

// Tile is one rendered slippy-map tile.
type Tile struct {
	Z, X, Y uint32
	PNG     []byte
}

// Tiler renders tile pyramids from raster sources. Decoded images are
// kept in a small LRU keyed by source fingerprint so repeated exports of
// the same upload decode once.
type Tiler struct {
	tileSize int
	maxTiles int
	images   *lru.Cache[uint64, image.Image]
}

func NewTiler(tileSize, maxTiles int) (*Tiler, error) {
	if tileSize <= 0 {
		tileSize = 256
	}
	if maxTiles <= 0 {
		maxTiles = 4096
	}
	images, err := lru.New[uint64, image.Image](4)
	if err != nil {
		return nil, err
	}
	return &Tiler{tileSize: tileSize, maxTiles: maxTiles, images: images}, nil
}

func (t *Tiler) decode(src *model.RasterSource) (image.Image, error) {
	if img, ok := t.images.Get(src.Fingerprint()); ok {
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(src.Data))
	if err != nil {
		return nil, fmt.Errorf("decode raster: %w", err)
	}
	t.images.Add(src.Fingerprint(), img)
	return img, nil
}

// CountTiles returns the number of tiles the job's zoom range covers.
func (t *Tiler) CountTiles(job Job) int {
	total := 0
	for z := job.Opts.MinZoom; z <= job.Opts.MaxZoom; z++ {
		minT, maxT := tileRange(job.Bounds, maptile.Zoom(z))
		total += int(maxT.X-minT.X+1) * int(maxT.Y-minT.Y+1)
	}
	return total
}

// RenderPyramid renders every tile covering the job's bounds across its
// zoom range, ordered by ascending zoom then row-major.
func (t *Tiler) RenderPyramid(ctx context.Context, job Job) ([]Tile, error) {
	if n := t.CountTiles(job); n > t.maxTiles {
		return nil, fmt.Errorf("zoom range covers %d tiles, limit is %d", n, t.maxTiles)
	}

	src, err := t.decode(job.Source)
	if err != nil {
		return nil, err
	}

	var out []Tile
	for z := job.Opts.MinZoom; z <= job.Opts.MaxZoom; z++ {
		minT, maxT := tileRange(job.Bounds, maptile.Zoom(z))
		for x := minT.X; x <= maxT.X; x++ {
			for y := minT.Y; y <= maxT.Y; y++ {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				tile := maptile.New(x, y, maptile.Zoom(z))
				data, err := t.renderTile(src, job.Bounds, tile)
				if err != nil {
					return nil, err
				}
				out = append(out, Tile{Z: uint32(z), X: x, Y: y, PNG: data})
			}
		}
	}
	return out, nil
}

// tileRange returns the inclusive tile span covering b at zoom z.
func tileRange(b model.BBox, z maptile.Zoom) (maptile.Tile, maptile.Tile) {
	minT := maptile.At(orb.Point{b.West, b.North}, z)
	maxT := maptile.At(orb.Point{b.East, b.South}, z)
	if maxT.X < minT.X {
		minT.X, maxT.X = maxT.X, minT.X
	}
	if maxT.Y < minT.Y {
		minT.Y, maxT.Y = maxT.Y, minT.Y
	}
	return minT, maxT
}

// renderTile maps the source image onto one tile with a linear lon/lat
// mapping. This is a visual-check renderer, not a resampling engine.
func (t *Tiler) renderTile(src image.Image, b model.BBox, tile maptile.Tile) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, t.tileSize, t.tileSize))

	tb := tile.Bound()
	lonSpan := b.East - b.West
	latSpan := b.North - b.South
	if lonSpan <= 0 || latSpan <= 0 {
		return nil, fmt.Errorf("degenerate bounds %s", b.String())
	}

	sb := src.Bounds()
	w, h := float64(sb.Dx()), float64(sb.Dy())

	// Geographic window shared by the tile and the raster.
	west := math.Max(b.West, tb.Min[0])
	east := math.Min(b.East, tb.Max[0])
	south := math.Max(b.South, tb.Min[1])
	north := math.Min(b.North, tb.Max[1])

	if east > west && north > south {
		// The same window expressed in source pixels and tile pixels.
		sx0 := (west - b.West) / lonSpan * w
		sx1 := (east - b.West) / lonSpan * w
		sy0 := (b.North - north) / latSpan * h
		sy1 := (b.North - south) / latSpan * h

		ts := float64(t.tileSize)
		tileLon := tb.Max[0] - tb.Min[0]
		tileLat := tb.Max[1] - tb.Min[1]
		dx0 := (west - tb.Min[0]) / tileLon * ts
		dx1 := (east - tb.Min[0]) / tileLon * ts
		dy0 := (tb.Max[1] - north) / tileLat * ts
		dy1 := (tb.Max[1] - south) / tileLat * ts

		srcRect := clampRect(int(sx0), int(sy0), int(sx1+0.5), int(sy1+0.5), sb.Min, sb)
		dstRect := clampRect(int(dx0), int(dy0), int(dx1+0.5), int(dy1+0.5), image.Point{}, dst.Bounds())

		if !srcRect.Empty() && !dstRect.Empty() {
			draw.ApproxBiLinear.Scale(dst, dstRect, src, srcRect, draw.Over, nil)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode tile png: %w", err)
	}
	return buf.Bytes(), nil
}

// clampRect builds a rectangle offset by origin and clipped to within.
func clampRect(x0, y0, x1, y1 int, origin image.Point, within image.Rectangle) image.Rectangle {
	return image.Rect(x0+origin.X, y0+origin.Y, x1+origin.X, y1+origin.Y).Intersect(within)
}
