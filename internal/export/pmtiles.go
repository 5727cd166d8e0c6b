package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/protomaps/go-pmtiles/pmtiles"
)

// headerV3Len is the fixed size of a serialized PMTiles v3 header.
const headerV3Len = 127

// PMTilesGenerator packs the rendered tile pyramid into a PMTiles v3
// archive.
type PMTilesGenerator struct {
	tiler *Tiler
}

func NewPMTilesGenerator(t *Tiler) *PMTilesGenerator {
	return &PMTilesGenerator{tiler: t}
}

func (g *PMTilesGenerator) Format() string    { return "pmtiles" }
func (g *PMTilesGenerator) MediaType() string { return "application/vnd.pmtiles" }
func (g *PMTilesGenerator) FileExt() string   { return ".pmtiles" }

func (g *PMTilesGenerator) Generate(ctx context.Context, job Job) ([]byte, error) {
	tiles, err := g.tiler.RenderPyramid(ctx, job)
	if err != nil {
		return nil, err
	}
	if len(tiles) == 0 {
		return nil, fmt.Errorf("no tiles cover bounds %s", job.Bounds.String())
	}

	type addressed struct {
		id   uint64
		data []byte
	}
	addr := make([]addressed, 0, len(tiles))
	for _, t := range tiles {
		addr = append(addr, addressed{
			id:   pmtiles.ZxyToID(uint8(t.Z), t.X, t.Y),
			data: t.PNG,
		})
	}
	sort.Slice(addr, func(i, j int) bool { return addr[i].id < addr[j].id })

	var tileData bytes.Buffer
	entries := make([]pmtiles.EntryV3, 0, len(addr))
	for _, a := range addr {
		entries = append(entries, pmtiles.EntryV3{
			TileID: a.id, Offset: uint64(tileData.Len()), Length: uint32(len(a.data)), RunLength: 1,
		})
		tileData.Write(a.data)
	}

	dir := pmtiles.SerializeEntries(entries, pmtiles.NoCompression)

	metadata, err := json.Marshal(map[string]any{
		"name":   job.Opts.OutputName,
		"format": "png",
		"bounds": job.Bounds.String(),
	})
	if err != nil {
		return nil, err
	}

	var h pmtiles.HeaderV3
	h.SpecVersion = 3
	h.RootOffset = headerV3Len
	h.RootLength = uint64(len(dir))
	h.MetadataOffset = h.RootOffset + h.RootLength
	h.MetadataLength = uint64(len(metadata))
	h.LeafDirectoryOffset = h.MetadataOffset + h.MetadataLength
	h.LeafDirectoryLength = 0
	h.TileDataOffset = h.LeafDirectoryOffset
	h.TileDataLength = uint64(tileData.Len())
	h.AddressedTilesCount = uint64(len(entries))
	h.TileEntriesCount = uint64(len(entries))
	h.TileContentsCount = uint64(len(entries))
	h.Clustered = true
	h.InternalCompression = pmtiles.NoCompression
	h.TileCompression = pmtiles.NoCompression
	h.TileType = pmtiles.Png
	h.MinZoom = uint8(job.Opts.MinZoom)
	h.MaxZoom = uint8(job.Opts.MaxZoom)
	h.CenterZoom = uint8(job.Opts.MinZoom)
	h.MinLonE7 = int32(job.Bounds.West * 10000000)
	h.MinLatE7 = int32(job.Bounds.South * 10000000)
	h.MaxLonE7 = int32(job.Bounds.East * 10000000)
	h.MaxLatE7 = int32(job.Bounds.North * 10000000)
	h.CenterLonE7 = (h.MinLonE7 + h.MaxLonE7) / 2
	h.CenterLatE7 = (h.MinLatE7 + h.MaxLatE7) / 2

	var out bytes.Buffer
	out.Write(pmtiles.SerializeHeader(h))
	out.Write(dir)
	out.Write(metadata)
	out.Write(tileData.Bytes())
	return out.Bytes(), nil
}
