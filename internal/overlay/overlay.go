// Package overlay owns the single active raster overlay of one map
// surface: submission, validation, CRS registration, attach/replace and
// teardown, with supersession of stale in-flight work.
package overlay

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/rezw4n/geotiles/internal/core/model"
	"github.com/rezw4n/geotiles/internal/geotiff"
)

// State of a map surface's overlay slot.
type State int

const (
	Empty State = iota
	Validating
	Attaching
	Attached
	// Failed is entered when a submission fails while no overlay is
	// attached; the reason is exposed via LastFailure. With a prior
	// overlay attached, failures keep the state Attached instead.
	Failed
)

func (s State) String() string {
	switch s {
	case Validating:
		return "validating"
	case Attaching:
		return "attaching"
	case Attached:
		return "attached"
	case Failed:
		return "failed"
	default:
		return "empty"
	}
}

// FailureReason tags every way a submission can resolve without an
// attached overlay. Reasons are distinct and user-facing; they are never
// collapsed into a generic failure.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonParseError
	ReasonMissingGeoreferencing
	ReasonDegenerateDimensions
	ReasonRegistryUnavailable
	ReasonAttachFailure
	ReasonSuperseded
)

func (r FailureReason) String() string {
	switch r {
	case ReasonParseError:
		return "parse_error"
	case ReasonMissingGeoreferencing:
		return "missing_georeferencing"
	case ReasonDegenerateDimensions:
		return "degenerate_dimensions"
	case ReasonRegistryUnavailable:
		return "registry_unavailable"
	case ReasonAttachFailure:
		return "attach_failure"
	case ReasonSuperseded:
		return "superseded"
	default:
		return "none"
	}
}

// Handle is the live, map-attached representation of one validated raster.
// At most one handle is attached to a surface at any time.
type Handle struct {
	ID     uuid.UUID
	Source *model.RasterSource
	Meta   *geotiff.Metadata
	Bounds model.BBox // lon/lat when the source CRS is projectable
	EPSG   int

	released atomic.Bool
}

// Release frees the handle's hold on prepared resources. Idempotent.
func (h *Handle) Release() {
	h.released.Store(true)
}

// Released reports whether Release has been called.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// MapSurface is the rendering boundary: the base map beneath the overlay
// is created and owned elsewhere.
type MapSurface interface {
	Attach(h *Handle) error
	Detach(h *Handle)
	FitBounds(b model.BBox)
}

// Config holds overlay construction parameters.
type Config struct {
	Opacity    float64 // [0,1]
	Resolution int     // positive
}

func (c Config) Validate() error {
	if c.Opacity < 0 || c.Opacity > 1 {
		return fmt.Errorf("overlay opacity %v outside [0,1]", c.Opacity)
	}
	if c.Resolution <= 0 {
		return fmt.Errorf("overlay resolution %d must be positive", c.Resolution)
	}
	return nil
}

// Result is the single resolution of one submission.
type Result struct {
	Handle *Handle
	Reason FailureReason
	Err    error
}

// Attached reports whether the submission ended with its overlay attached.
func (r Result) Attached() bool {
	return r.Handle != nil && r.Reason == ReasonNone
}

// Request is one in-flight attempt to turn a raster source into an
// attached overlay.
type Request struct {
	ID   uuid.UUID
	gen  uint64
	done chan Result
}

// Done resolves exactly once with the submission's outcome.
func (r *Request) Done() <-chan Result {
	return r.done
}
