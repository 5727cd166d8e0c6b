package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rezw4n/geotiles/internal/core/model"
	"github.com/rezw4n/geotiles/internal/core/observability"
	"github.com/rezw4n/geotiles/internal/crs"
	"github.com/rezw4n/geotiles/internal/geotiff"
)

// Manager serializes overlay replacement for one map surface. Each new
// submission supersedes any prior in-flight one: superseded work still
// releases its resources but never attaches.
type Manager struct {
	surface  MapSurface
	registry *crs.Registry
	cfg      Config
	log      *slog.Logger

	mu         sync.Mutex
	gen        uint64
	state      State
	current    *Handle
	lastReason FailureReason

	// OnAttach, when set, observes every successful attach (catalog hook).
	OnAttach func(*Handle)

	// test seam: runs outside the lock just before a pipeline tries to
	// commit its result.
	beforeCommit func(gen uint64)
}

func NewManager(surface MapSurface, registry *crs.Registry, cfg Config, log *slog.Logger) (*Manager, error) {
	if surface == nil {
		return nil, errors.New("overlay: map surface is required")
	}
	if registry == nil {
		return nil, errors.New("overlay: crs registry is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{surface: surface, registry: registry, cfg: cfg, log: log}, nil
}

// Current returns the attached handle, or nil.
func (m *Manager) Current() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// State returns the surface's overlay state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastFailure returns the reason tag of the most recent failed
// submission, or ReasonNone after a successful attach or clear.
func (m *Manager) LastFailure() FailureReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReason
}

// Submit starts an ingestion attempt for src. It returns immediately; the
// request resolves on its Done channel with either an attached handle or
// one tagged failure reason. A newer Submit supersedes this one.
func (m *Manager) Submit(ctx context.Context, src *model.RasterSource) *Request {
	m.mu.Lock()
	m.gen++
	req := &Request{ID: uuid.New(), gen: m.gen, done: make(chan Result, 1)}
	if m.state != Attached {
		m.state = Validating
	}
	m.mu.Unlock()

	go m.run(ctx, req, src)
	return req
}

// Clear detaches and releases the attached overlay and suppresses any
// in-flight submission. Used on explicit clear and surface teardown.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	if m.current != nil {
		m.surface.Detach(m.current)
		m.current.Release()
		m.current = nil
	}
	m.state = Empty
	m.lastReason = ReasonNone
}

func (m *Manager) run(ctx context.Context, req *Request, src *model.RasterSource) {
	start := time.Now()
	res := m.safePipeline(ctx, req, src)

	outcome := "attached"
	if !res.Attached() {
		outcome = res.Reason.String()
	}
	observability.ObserveIngest(outcome, time.Since(start).Seconds())

	switch {
	case res.Attached():
		m.log.Info("overlay attached",
			"request_id", req.ID.String(),
			"source", src.Name,
			"bounds", res.Handle.Bounds.String(),
			"epsg", res.Handle.EPSG)
	case res.Reason == ReasonSuperseded:
		m.log.Debug("submission superseded", "request_id", req.ID.String(), "source", src.Name)
	default:
		m.log.Warn("submission failed",
			"request_id", req.ID.String(),
			"source", src.Name,
			"reason", res.Reason.String(),
			"err", res.Err)
	}

	req.done <- res
}

// safePipeline converts a pipeline panic into a resolved failure. The
// pipeline runs in its own goroutine, so a panic on a crafted upload
// would otherwise take the whole process down.
func (m *Manager) safePipeline(ctx context.Context, req *Request, src *model.RasterSource) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = m.fail(req, ReasonParseError, fmt.Errorf("raster processing panic: %v", r))
		}
	}()
	return m.pipeline(ctx, req, src)
}

// pipeline runs parse -> validate -> CRS registration -> construct -> commit.
// Cancellation is cooperative; staleness is decided once, at commit time,
// against the surface's generation counter.
func (m *Manager) pipeline(ctx context.Context, req *Request, src *model.RasterSource) Result {
	stageStart := time.Now()
	meta, err := geotiff.Read(src.Data)
	observability.ObserveIngestStage("parse", time.Since(stageStart).Seconds())
	if err != nil {
		return m.fail(req, ReasonParseError, err)
	}

	verdict := geotiff.Validate(meta)
	if !verdict.Valid {
		reason := ReasonMissingGeoreferencing
		if verdict.Reason == geotiff.DegenerateDimensions {
			reason = ReasonDegenerateDimensions
		}
		return m.fail(req, reason, errors.New(verdict.Detail))
	}

	if err := ctx.Err(); err != nil {
		return m.fail(req, ReasonSuperseded, err)
	}

	// The registry's host mechanism may have been reset since the last
	// attach; EnsureRegistered repairs it once before giving up.
	stageStart = time.Now()
	defs := crs.DefaultDefinitions()
	epsg := meta.EPSG()
	if d, ok := crs.DefinitionFor(epsg); ok {
		defs = append(defs, d)
	}
	err = m.registry.EnsureRegistered(defs)
	observability.ObserveIngestStage("crs", time.Since(stageStart).Seconds())
	if err != nil {
		return m.fail(req, ReasonRegistryUnavailable, err)
	}

	stageStart = time.Now()
	handle, err := m.construct(src, meta, epsg)
	observability.ObserveIngestStage("construct", time.Since(stageStart).Seconds())
	if err != nil {
		return m.fail(req, ReasonAttachFailure, err)
	}

	if m.beforeCommit != nil {
		m.beforeCommit(req.gen)
	}

	return m.commit(req, handle)
}

// construct prepares the overlay handle: bounds derivation and projection
// to lon/lat. Failures here leave any previously attached overlay intact.
func (m *Manager) construct(src *model.RasterSource, meta *geotiff.Metadata, epsg int) (*Handle, error) {
	bounds, ok := meta.Bounds()
	if !ok {
		// Valid geo-key-only rasters without an affine mapping cannot be
		// placed; surfaced as an attach failure, not a verdict.
		return nil, errors.New("no affine pixel-to-world mapping in georeferencing tags")
	}
	if epsg != 0 && crs.ProjectionFor(epsg) != nil {
		bounds = crs.BoundsToWGS84(epsg, bounds)
	}
	if bounds.East <= bounds.West || bounds.North <= bounds.South {
		return nil, fmt.Errorf("degenerate overlay bounds %s", bounds.String())
	}
	return &Handle{
		ID:     uuid.New(),
		Source: src,
		Meta:   meta,
		Bounds: bounds,
		EPSG:   epsg,
	}, nil
}

// commit applies the pipeline result to visible state, unless a newer
// submission has arrived in the meantime.
func (m *Manager) commit(req *Request, handle *Handle) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.gen != m.gen {
		handle.Release()
		return Result{Reason: ReasonSuperseded}
	}

	m.state = Attaching

	prev := m.current
	if prev != nil {
		m.surface.Detach(prev)
	}

	if err := m.surface.Attach(handle); err != nil {
		handle.Release()
		m.lastReason = ReasonAttachFailure
		// Restore the previous overlay; a failed replacement must not
		// destroy a working prior one.
		if prev != nil {
			if rerr := m.surface.Attach(prev); rerr != nil {
				prev.Release()
				m.current = nil
				m.state = Failed
				return Result{Reason: ReasonAttachFailure,
					Err: fmt.Errorf("attach: %w (restore failed: %v)", err, rerr)}
			}
			m.state = Attached
		} else {
			m.state = Failed
		}
		return Result{Reason: ReasonAttachFailure, Err: err}
	}

	if prev != nil {
		prev.Release()
	}
	m.current = handle
	m.state = Attached
	m.lastReason = ReasonNone
	m.surface.FitBounds(handle.Bounds)

	if m.OnAttach != nil {
		m.OnAttach(handle)
	}
	return Result{Handle: handle}
}

func (m *Manager) fail(req *Request, reason FailureReason, err error) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	// A stale pipeline's failure must not disturb visible state either.
	if req.gen == m.gen {
		m.lastReason = reason
		if m.current != nil {
			m.state = Attached // prior overlay stays up
		} else {
			m.state = Failed
		}
	}
	if reason == ReasonSuperseded {
		return Result{Reason: reason}
	}
	return Result{Reason: reason, Err: err}
}
