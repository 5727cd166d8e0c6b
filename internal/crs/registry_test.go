package crs

import (
	"errors"
	"sync"
	"testing"
)

func TestEnsureRegistered_Idempotent(t *testing.T) {
	backend := NewMapBackend()
	r := New(backend, nil)

	defs := DefaultDefinitions()
	for i := 0; i < 5; i++ {
		if err := r.EnsureRegistered(defs); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
	}
	if got, want := backend.Len(), len(defs); got != want {
		t.Fatalf("registry holds %d defs after 5 rounds, want %d", got, want)
	}
}

func TestEnsureRegistered_Concurrent(t *testing.T) {
	backend := NewMapBackend()
	r := New(backend, nil)
	defs := DefaultDefinitions()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.EnsureRegistered(defs); err != nil {
				t.Errorf("concurrent register: %v", err)
			}
		}()
	}
	wg.Wait()

	if got, want := backend.Len(), len(defs); got != want {
		t.Fatalf("registry holds %d defs, want %d", got, want)
	}
}

func TestEnsureRegistered_RepairsResetBackend(t *testing.T) {
	backend := NewMapBackend()
	repaired := 0
	r := New(backend, func() Backend {
		repaired++
		return NewMapBackend()
	})

	if err := r.EnsureRegistered(DefaultDefinitions()); err != nil {
		t.Fatalf("initial register: %v", err)
	}

	// Host mechanism reset out from under the process.
	backend.Invalidate()

	if err := r.EnsureRegistered(DefaultDefinitions()); err != nil {
		t.Fatalf("register after reset: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("repair ran %d times, want 1", repaired)
	}
	if !r.Ready() {
		t.Fatal("registry should be ready after repair")
	}
	if !r.Has("EPSG:4326") {
		t.Fatal("repaired backend lost the default definitions")
	}
}

func TestEnsureRegistered_UnavailableWithoutFactory(t *testing.T) {
	backend := NewMapBackend()
	backend.Invalidate()
	r := New(backend, nil)

	err := r.EnsureRegistered(DefaultDefinitions())
	if !errors.Is(err, ErrRegistryUnavailable) {
		t.Fatalf("err=%v want ErrRegistryUnavailable", err)
	}
}

func TestEnsureRegistered_SingleRepairAttempt(t *testing.T) {
	broken := NewMapBackend()
	broken.Invalidate()
	r := New(broken, func() Backend {
		b := NewMapBackend()
		b.Invalidate() // repair yields another dead backend
		return b
	})

	err := r.EnsureRegistered(DefaultDefinitions())
	if !errors.Is(err, ErrRegistryUnavailable) {
		t.Fatalf("err=%v want ErrRegistryUnavailable after one failed repair", err)
	}
}

func TestDefinitionFor_UTMZones(t *testing.T) {
	d, ok := DefinitionFor(32633)
	if !ok {
		t.Fatal("expected a derived UTM definition")
	}
	if d.Code != "EPSG:32633" {
		t.Fatalf("code=%q", d.Code)
	}

	if _, ok := DefinitionFor(99999); ok {
		t.Fatal("unknown code should not resolve")
	}
}
