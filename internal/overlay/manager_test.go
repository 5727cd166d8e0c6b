package overlay

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/rezw4n/geotiles/internal/core/model"
	"github.com/rezw4n/geotiles/internal/crs"
	"github.com/rezw4n/geotiles/internal/geotiff"
)

func testConfig() Config {
	return Config{Opacity: 0.8, Resolution: 256}
}

func testRegistry() *crs.Registry {
	return crs.New(crs.NewMapBackend(), func() crs.Backend { return crs.NewMapBackend() })
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// encodeRaster builds a gray GeoTIFF with a geo-key directory and an
// affine mapping anchored at (west, north).
func encodeRaster(t *testing.T, w, h int, west, north, scale float64) *model.RasterSource {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewGray(image.Rect(0, 0, w, h))
	err := geotiff.Encode(&buf, img, &geotiff.GeoTags{
		KeyDirectory: geotiff.KeyDirectoryForEPSG(4326, false),
		PixelScale:   []float64{scale, scale, 0},
		TiePoints:    []float64{0, 0, 0, west, north, 0},
	})
	if err != nil {
		t.Fatalf("encode raster: %v", err)
	}
	return model.NewRasterSource("test.tif", buf.Bytes())
}

func await(t *testing.T, req *Request) Result {
	t.Helper()
	select {
	case res := <-req.Done():
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("submission did not resolve")
		return Result{}
	}
}

func TestSubmit_AttachesAndFitsBounds(t *testing.T) {
	surface := NewVirtualSurface()
	m, err := NewManager(surface, testRegistry(), testConfig(), quietLogger())
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	src := encodeRaster(t, 512, 512, 10, 50, 0.01)
	res := await(t, m.Submit(context.Background(), src))

	if !res.Attached() {
		t.Fatalf("result=%+v want attached", res)
	}
	if m.State() != Attached {
		t.Fatalf("state=%v want attached", m.State())
	}
	if surface.Attached() != res.Handle {
		t.Fatal("surface holds a different handle")
	}

	vp, ok := surface.Viewport()
	if !ok {
		t.Fatal("viewport was never fitted")
	}
	if vp != res.Handle.Bounds {
		t.Fatalf("viewport=%+v bounds=%+v", vp, res.Handle.Bounds)
	}
	if math.Abs(vp.West-10) > 1e-9 || math.Abs(vp.North-50) > 1e-9 {
		t.Fatalf("viewport anchored at %v,%v want 10,50", vp.West, vp.North)
	}
}

func TestSubmit_ParseFailureLeavesPriorOverlay(t *testing.T) {
	surface := NewVirtualSurface()
	m, _ := NewManager(surface, testRegistry(), testConfig(), quietLogger())

	first := await(t, m.Submit(context.Background(), encodeRaster(t, 64, 64, 0, 10, 0.1)))
	if !first.Attached() {
		t.Fatalf("setup attach failed: %+v", first)
	}

	garbage := model.NewRasterSource("broken.tif", []byte("not a tiff at all"))
	res := await(t, m.Submit(context.Background(), garbage))

	if res.Reason != ReasonParseError {
		t.Fatalf("reason=%v want parse_error", res.Reason)
	}
	if res.Err == nil || !geotiff.IsParseError(res.Err) {
		t.Fatalf("err=%v want wrapped *ParseError", res.Err)
	}
	if m.Current() != first.Handle {
		t.Fatal("failed submission must not disturb the attached overlay")
	}
	if m.State() != Attached {
		t.Fatalf("state=%v want attached", m.State())
	}
}

func TestSubmit_DegenerateDimensions(t *testing.T) {
	surface := NewVirtualSurface()
	m, _ := NewManager(surface, testRegistry(), testConfig(), quietLogger())

	// Zero-width raster that still carries full georeferencing.
	src := encodeRaster(t, 0, 128, 10, 50, 0.01)
	res := await(t, m.Submit(context.Background(), src))

	if res.Reason != ReasonDegenerateDimensions {
		t.Fatalf("reason=%v want degenerate_dimensions", res.Reason)
	}
	if m.State() != Failed {
		t.Fatalf("state=%v want failed", m.State())
	}
	if m.LastFailure() != ReasonDegenerateDimensions {
		t.Fatalf("last failure=%v", m.LastFailure())
	}

	// Clear resets the failed slot to empty.
	m.Clear()
	if m.State() != Empty || m.LastFailure() != ReasonNone {
		t.Fatalf("after clear: state=%v reason=%v", m.State(), m.LastFailure())
	}
}

func TestSubmit_MissingGeoreferencing(t *testing.T) {
	surface := NewVirtualSurface()
	m, _ := NewManager(surface, testRegistry(), testConfig(), quietLogger())

	var buf bytes.Buffer
	if err := geotiff.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 32)), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	res := await(t, m.Submit(context.Background(), model.NewRasterSource("plain.tif", buf.Bytes())))

	if res.Reason != ReasonMissingGeoreferencing {
		t.Fatalf("reason=%v want missing_georeferencing", res.Reason)
	}
	if res.Err == nil {
		t.Fatal("missing georeferencing must carry actionable detail")
	}
}

func TestSubmit_RegistryUnavailable(t *testing.T) {
	surface := NewVirtualSurface()
	broken := crs.NewMapBackend()
	broken.Invalidate()
	registry := crs.New(broken, nil) // no repair factory
	m, _ := NewManager(surface, registry, testConfig(), quietLogger())

	res := await(t, m.Submit(context.Background(), encodeRaster(t, 32, 32, 0, 10, 0.1)))
	if res.Reason != ReasonRegistryUnavailable {
		t.Fatalf("reason=%v want registry_unavailable", res.Reason)
	}
	if !errors.Is(res.Err, crs.ErrRegistryUnavailable) {
		t.Fatalf("err=%v", res.Err)
	}
}

func TestSubmit_SupersededNeverAttaches(t *testing.T) {
	surface := NewVirtualSurface()
	m, _ := NewManager(surface, testRegistry(), testConfig(), quietLogger())

	// Park the first pipeline just before commit until S2 has resolved.
	release := make(chan struct{})
	m.beforeCommit = func(gen uint64) {
		if gen == 1 {
			<-release
		}
	}

	s1 := encodeRaster(t, 64, 64, 0, 10, 0.1)
	s2 := encodeRaster(t, 64, 64, 100, 20, 0.05)

	req1 := m.Submit(context.Background(), s1)
	req2 := m.Submit(context.Background(), s2)

	res2 := await(t, req2)
	close(release)
	res1 := await(t, req1)

	if !res2.Attached() {
		t.Fatalf("S2 result=%+v want attached", res2)
	}
	if res1.Reason != ReasonSuperseded {
		t.Fatalf("S1 reason=%v want superseded", res1.Reason)
	}
	if res1.Handle != nil {
		t.Fatal("superseded submission must not expose a handle")
	}
	if m.Current() != res2.Handle {
		t.Fatal("S1's late result displaced S2's overlay")
	}
	vp, _ := surface.Viewport()
	if vp != res2.Handle.Bounds {
		t.Fatalf("viewport=%+v want S2 bounds %+v", vp, res2.Handle.Bounds)
	}
}

func TestSubmit_ReplacementDetachesPrevious(t *testing.T) {
	surface := NewVirtualSurface()
	m, _ := NewManager(surface, testRegistry(), testConfig(), quietLogger())

	first := await(t, m.Submit(context.Background(), encodeRaster(t, 64, 64, 0, 10, 0.1)))
	second := await(t, m.Submit(context.Background(), encodeRaster(t, 32, 32, 5, 20, 0.2)))

	if !first.Attached() || !second.Attached() {
		t.Fatalf("attach results: %+v / %+v", first, second)
	}
	if !first.Handle.Released() {
		t.Fatal("replaced handle was not released")
	}
	if surface.Attached() != second.Handle {
		t.Fatal("surface must hold only the newest handle")
	}
}

func TestSubmit_AttachFailureKeepsPrior(t *testing.T) {
	surface := &flakySurface{inner: NewVirtualSurface()}
	m, _ := NewManager(surface, testRegistry(), testConfig(), quietLogger())

	first := await(t, m.Submit(context.Background(), encodeRaster(t, 64, 64, 0, 10, 0.1)))
	if !first.Attached() {
		t.Fatalf("setup attach failed: %+v", first)
	}

	surface.failNext = true
	res := await(t, m.Submit(context.Background(), encodeRaster(t, 32, 32, 5, 20, 0.2)))

	if res.Reason != ReasonAttachFailure {
		t.Fatalf("reason=%v want attach_failure", res.Reason)
	}
	if m.Current() != first.Handle {
		t.Fatal("failed replacement destroyed the prior overlay")
	}
	if m.State() != Attached {
		t.Fatalf("state=%v want attached", m.State())
	}
}

func TestSubmit_PanicResolvesAsFailure(t *testing.T) {
	surface := NewVirtualSurface()
	m, _ := NewManager(surface, testRegistry(), testConfig(), quietLogger())
	m.beforeCommit = func(uint64) { panic("corrupt tile cache") }

	res := await(t, m.Submit(context.Background(), encodeRaster(t, 32, 32, 0, 10, 0.1)))
	if res.Reason != ReasonParseError {
		t.Fatalf("reason=%v want parse_error", res.Reason)
	}
	if res.Err == nil {
		t.Fatal("recovered failure must carry the panic value")
	}
	if m.State() != Failed {
		t.Fatalf("state=%v want failed", m.State())
	}
}

func TestClear_DetachesAndSuppressesInFlight(t *testing.T) {
	surface := NewVirtualSurface()
	m, _ := NewManager(surface, testRegistry(), testConfig(), quietLogger())

	res := await(t, m.Submit(context.Background(), encodeRaster(t, 64, 64, 0, 10, 0.1)))
	if !res.Attached() {
		t.Fatalf("setup attach failed: %+v", res)
	}

	m.Clear()
	if m.State() != Empty {
		t.Fatalf("state=%v want empty", m.State())
	}
	if surface.Attached() != nil {
		t.Fatal("clear left a handle attached")
	}
	if !res.Handle.Released() {
		t.Fatal("clear must release the handle")
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := (Config{Opacity: 1.2, Resolution: 256}).Validate(); err == nil {
		t.Fatal("opacity > 1 must be rejected")
	}
	if err := (Config{Opacity: 0.5, Resolution: 0}).Validate(); err == nil {
		t.Fatal("non-positive resolution must be rejected")
	}
	if err := (Config{Opacity: 0.5, Resolution: 128}).Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

// flakySurface fails the next Attach once.
type flakySurface struct {
	inner    *VirtualSurface
	failNext bool
}

func (s *flakySurface) Attach(h *Handle) error {
	if s.failNext {
		s.failNext = false
		return errors.New("out of texture memory")
	}
	return s.inner.Attach(h)
}

func (s *flakySurface) Detach(h *Handle)             { s.inner.Detach(h) }
func (s *flakySurface) FitBounds(b model.BBox)       { s.inner.FitBounds(b) }
func (s *flakySurface) Attached() *Handle            { return s.inner.Attached() }
func (s *flakySurface) Viewport() (model.BBox, bool) { return s.inner.Viewport() }
