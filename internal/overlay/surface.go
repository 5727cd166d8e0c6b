package overlay

import (
	"sync"

	"github.com/rezw4n/geotiles/internal/core/model"
)

// VirtualSurface is a headless map surface: it tracks the attached
// overlay and the fitted viewport without rendering anything. The HTTP
// server binds the manager to one of these and exposes its state.
type VirtualSurface struct {
	mu       sync.Mutex
	attached *Handle
	viewport model.BBox
	fitted   bool
}

func NewVirtualSurface() *VirtualSurface {
	return &VirtualSurface{}
}

func (s *VirtualSurface) Attach(h *Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = h
	return nil
}

func (s *VirtualSurface) Detach(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached == h {
		s.attached = nil
	}
}

func (s *VirtualSurface) FitBounds(b model.BBox) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = b
	s.fitted = true
}

// Attached returns the currently attached handle, or nil.
func (s *VirtualSurface) Attached() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// Viewport returns the last fitted bounds; the second return is false
// before the first fit.
func (s *VirtualSurface) Viewport() (model.BBox, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport, s.fitted
}
