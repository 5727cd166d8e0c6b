// Package crs maintains the process-wide table of coordinate reference
// system definitions that must be registered before a projected raster
// can be placed on a map surface.
package crs

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRegistryUnavailable reports that the registration backend is missing
// or non-functional and one repair pass did not bring it back.
var ErrRegistryUnavailable = errors.New("crs: registry backend unavailable")

// Definition is a named coordinate system.
type Definition struct {
	Code  string // e.g. "EPSG:4326"
	Proj4 string
}

// Backend is the host mechanism holding registered definitions. The host
// object can be replaced or reset out from under this process by unrelated
// code, so callers must treat Ready as advisory and re-check before use.
type Backend interface {
	Register(code, proj string) error
	Has(code string) bool
	Ready() bool
}

// Registry wraps a Backend with idempotent registration and a single
// detect-and-repair pass when the backend has gone away.
type Registry struct {
	mu         sync.Mutex
	backend    Backend
	newBackend func() Backend
}

// New builds a registry over backend. factory recreates the backend during
// a repair pass; a nil factory disables repair.
func New(backend Backend, factory func() Backend) *Registry {
	return &Registry{backend: backend, newBackend: factory}
}

// Ready reports whether the backend is currently functional.
func (r *Registry) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend != nil && r.backend.Ready()
}

// EnsureRegistered upserts defs into the backend. It is safe to call
// repeatedly and concurrently; re-registering a code is a no-op, not an
// error. When the backend is found non-functional it is re-initialized
// exactly once before ErrRegistryUnavailable is returned.
func (r *Registry) EnsureRegistered(defs []Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.backend == nil || !r.backend.Ready() {
		if r.newBackend == nil {
			return ErrRegistryUnavailable
		}
		r.backend = r.newBackend()
		if r.backend == nil || !r.backend.Ready() {
			return ErrRegistryUnavailable
		}
	}

	for _, d := range defs {
		if d.Code == "" {
			continue
		}
		if err := r.backend.Register(d.Code, d.Proj4); err != nil {
			return fmt.Errorf("%w: register %s: %v", ErrRegistryUnavailable, d.Code, err)
		}
	}
	return nil
}

// Has reports whether code is registered.
func (r *Registry) Has(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backend != nil && r.backend.Ready() && r.backend.Has(code)
}

// MapBackend is the default in-process backend: a plain definition table.
type MapBackend struct {
	mu   sync.RWMutex
	defs map[string]string
	down bool
}

func NewMapBackend() *MapBackend {
	return &MapBackend{defs: map[string]string{}}
}

func (b *MapBackend) Register(code, proj string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down || b.defs == nil {
		return errors.New("backend has been reset")
	}
	b.defs[code] = proj
	return nil
}

func (b *MapBackend) Has(code string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.defs[code]
	return ok && !b.down
}

func (b *MapBackend) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.down && b.defs != nil
}

// Len reports the number of registered definitions.
func (b *MapBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.defs)
}

// Invalidate simulates the host mechanism being reset by unrelated code.
func (b *MapBackend) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = true
}
