// Package catalog indexes the rasters attached during this process
// lifetime and answers bounding-box queries over them.
package catalog

import (
	"sort"
	"sync"
	"time"

	"github.com/dhconnelly/rtreego"

	"github.com/rezw4n/geotiles/internal/core/model"
)

// Entry is the indexed metadata of one attached raster.
type Entry struct {
	ID          string
	Name        string
	GeoBounds   model.BBox
	Width       int
	Height      int
	EPSG        int
	Fingerprint uint64
	AttachedAt  time.Time
}

// Bounds implements rtreego.Spatial.
func (e Entry) Bounds() rtreego.Rect {
	rect, _ := rtreego.NewRect(
		rtreego.Point{e.GeoBounds.West, e.GeoBounds.South},
		[]float64{
			nonZero(e.GeoBounds.East - e.GeoBounds.West),
			nonZero(e.GeoBounds.North - e.GeoBounds.South),
		},
	)
	return rect
}

// rtreego rejects zero-length rectangle sides.
func nonZero(v float64) float64 {
	if v <= 0 {
		return 1e-9
	}
	return v
}

// Catalog is a concurrency-safe R-tree over attached rasters.
type Catalog struct {
	mu   sync.RWMutex
	tree *rtreego.Rtree
	byID map[string]Entry
}

func New() *Catalog {
	return &Catalog{
		tree: rtreego.NewTree(2, 25, 50),
		byID: map[string]Entry{},
	}
}

// Add records one attached raster. Re-adding the same id replaces it.
func (c *Catalog) Add(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.byID[e.ID]; ok {
		c.tree.Delete(old)
	}
	c.byID[e.ID] = e
	c.tree.Insert(e)
}

// Query returns the entries whose bounds intersect bbox, newest first.
func (c *Catalog) Query(bbox model.BBox) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rect, err := rtreego.NewRect(
		rtreego.Point{bbox.West, bbox.South},
		[]float64{nonZero(bbox.East - bbox.West), nonZero(bbox.North - bbox.South)},
	)
	if err != nil {
		return nil
	}

	spatials := c.tree.SearchIntersect(rect)
	out := make([]Entry, 0, len(spatials))
	for _, s := range spatials {
		if e, ok := s.(Entry); ok {
			out = append(out, e)
		}
	}
	sortNewestFirst(out)
	return out
}

// All returns every entry, newest first.
func (c *Catalog) All() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.byID))
	for _, e := range c.byID {
		out = append(out, e)
	}
	sortNewestFirst(out)
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

func sortNewestFirst(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AttachedAt.After(entries[j].AttachedAt)
	})
}
