package catalog

import (
	"testing"
	"time"

	"github.com/rezw4n/geotiles/internal/core/model"
)

func entry(id string, b model.BBox, at time.Time) Entry {
	return Entry{
		ID:         id,
		Name:       id + ".tif",
		GeoBounds:  b,
		Width:      256,
		Height:     256,
		EPSG:       4326,
		AttachedAt: at,
	}
}

func TestQuery_IntersectingOnly(t *testing.T) {
	c := New()
	now := time.Now()
	c.Add(entry("berlin", model.BBox{West: 13, South: 52, East: 14, North: 53}, now))
	c.Add(entry("tokyo", model.BBox{West: 139, South: 35, East: 140, North: 36}, now))

	got := c.Query(model.BBox{West: 12, South: 51, East: 15, North: 54})
	if len(got) != 1 || got[0].ID != "berlin" {
		t.Fatalf("got %+v want only berlin", got)
	}

	if got := c.Query(model.BBox{West: -10, South: -10, East: -5, North: -5}); len(got) != 0 {
		t.Fatalf("disjoint query returned %+v", got)
	}
}

func TestQuery_NewestFirst(t *testing.T) {
	c := New()
	base := time.Now()
	b := model.BBox{West: 0, South: 0, East: 1, North: 1}
	c.Add(entry("oldest", b, base))
	c.Add(entry("newest", b, base.Add(2*time.Minute)))
	c.Add(entry("middle", b, base.Add(time.Minute)))

	got := c.Query(b)
	if len(got) != 3 {
		t.Fatalf("got %d entries want 3", len(got))
	}
	if got[0].ID != "newest" || got[2].ID != "oldest" {
		t.Fatalf("order: %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestAdd_SameIDReplaces(t *testing.T) {
	c := New()
	now := time.Now()
	c.Add(entry("a", model.BBox{West: 0, South: 0, East: 1, North: 1}, now))
	c.Add(entry("a", model.BBox{West: 100, South: 0, East: 101, North: 1}, now.Add(time.Second)))

	if c.Len() != 1 {
		t.Fatalf("len=%d want 1", c.Len())
	}
	// The old location must be gone from the index.
	if got := c.Query(model.BBox{West: 0, South: 0, East: 1, North: 1}); len(got) != 0 {
		t.Fatalf("stale location still indexed: %+v", got)
	}
	if got := c.Query(model.BBox{West: 100, South: 0, East: 101, North: 1}); len(got) != 1 {
		t.Fatalf("new location not indexed: %+v", got)
	}
}

func TestQuery_PointSizedRaster(t *testing.T) {
	c := New()
	// Degenerate extent still has to be findable.
	c.Add(entry("point", model.BBox{West: 5, South: 5, East: 5, North: 5}, time.Now()))

	if got := c.Query(model.BBox{West: 4, South: 4, East: 6, North: 6}); len(got) != 1 {
		t.Fatalf("point raster not found: %+v", got)
	}
}

func TestAll(t *testing.T) {
	c := New()
	if got := c.All(); len(got) != 0 {
		t.Fatalf("empty catalog returned %+v", got)
	}
	base := time.Now()
	c.Add(entry("a", model.BBox{West: 0, South: 0, East: 1, North: 1}, base))
	c.Add(entry("b", model.BBox{West: 2, South: 2, East: 3, North: 3}, base.Add(time.Second)))

	got := c.All()
	if len(got) != 2 || got[0].ID != "b" {
		t.Fatalf("got %+v want b first", got)
	}
}
