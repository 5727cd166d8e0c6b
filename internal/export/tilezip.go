package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// TileZipGenerator packs the rendered pyramid into a zip of
// {z}/{x}/{y}.png entries plus a metadata.json describing the set.
type TileZipGenerator struct {
	tiler *Tiler
}

func NewTileZipGenerator(t *Tiler) *TileZipGenerator {
	return &TileZipGenerator{tiler: t}
}

func (g *TileZipGenerator) Format() string    { return "tilezip" }
func (g *TileZipGenerator) MediaType() string { return "application/zip" }
func (g *TileZipGenerator) FileExt() string   { return ".zip" }

func (g *TileZipGenerator) Generate(ctx context.Context, job Job) ([]byte, error) {
	tiles, err := g.tiler.RenderPyramid(ctx, job)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	meta, err := json.MarshalIndent(map[string]any{
		"name":    job.Opts.OutputName,
		"format":  "png",
		"minzoom": job.Opts.MinZoom,
		"maxzoom": job.Opts.MaxZoom,
		"bounds":  job.Bounds.String(),
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	w, err := zw.Create("metadata.json")
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(meta); err != nil {
		return nil, err
	}

	for _, t := range tiles {
		w, err := zw.Create(fmt.Sprintf("%d/%d/%d.png", t.Z, t.X, t.Y))
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(t.PNG); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
