package sift

import (
	"fmt"
	"image"
	"maps"
	"slices"
	"sync"
)

// Backend is the native detection boundary. Implementations allocate feature
// data from st and never retain img or mask after returning.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string
	// Detect finds keypoints in img without descriptors. A non-nil mask
	// restricts detection to its non-zero pixels.
	Detect(img, mask *image.Gray, st *Storage, p CParams) (*Seq, error)
	// DetectDescribe detects and describes keypoints in a new sequence when
	// seq is nil. Otherwise it computes descriptors for the records of seq in
	// place, leaving their position, scale and orientation untouched, and
	// returns seq.
	DetectDescribe(img, mask *image.Gray, st *Storage, p CParams, seq *Seq) (*Seq, error)
}

// BackendFactory constructs a Backend.
type BackendFactory func() (Backend, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]BackendFactory)
)

// RegisterBackend makes a backend available by name. It panics when name is
// registered twice or factory is nil.
func RegisterBackend(name string, factory BackendFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if factory == nil {
		panic("sift: RegisterBackend factory is nil")
	}
	if _, dup := backends[name]; dup {
		panic("sift: RegisterBackend called twice for " + name)
	}
	backends[name] = factory
}

// NewBackend constructs the backend registered under name.
func NewBackend(name string) (Backend, error) {
	backendsMu.RLock()
	factory, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Backends())
	}
	b, err := factory()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}

// Backends returns the registered backend names in sorted order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	return slices.Sorted(maps.Keys(backends))
}
