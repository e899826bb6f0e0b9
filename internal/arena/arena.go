// Package arena provides a chunked, typed allocation arena for keypoint records.
//
// Records handed out by an Arena are addressed by Ref values (generation plus
// slot index) instead of pointers. A Ref stays valid until the arena is Reset
// or Released; after that, lookups fail with ErrStaleRef or ErrReleased rather
// than reading recycled memory.
//
// An Arena is not safe for concurrent use.
package arena

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleRef is returned when a Ref from an earlier generation is dereferenced.
	ErrStaleRef = errors.New("arena: stale reference")
	// ErrReleased is returned when the arena has already been released.
	ErrReleased = errors.New("arena: released")
	// ErrOutOfRange is returned when a Ref points past the allocated slots.
	ErrOutOfRange = errors.New("arena: reference out of range")
)

// DefaultChunkSize is the number of slots reserved per chunk.
const DefaultChunkSize = 256

// Ref is an arena-relative reference. It is 8 bytes wide, the same as a
// pointer slot on 64-bit platforms.
type Ref struct {
	Gen   uint32
	Index uint32
}

// Nil is the zero Ref. Generations start at 1, so Nil never resolves.
var Nil = Ref{}

// IsNil reports whether r is the zero Ref.
func (r Ref) IsNil() bool { return r == Nil }

func (r Ref) String() string {
	return fmt.Sprintf("ref(%d:%d)", r.Gen, r.Index)
}

// Stats tracks arena usage.
type Stats struct {
	Chunks      int // chunks currently held
	Slots       int // slots reserved across chunks
	Used        int // slots handed out in the current generation
	Generation  uint32
	TotalAllocs uint64 // across all generations
}

// Arena is a chunked allocator of T values.
type Arena[T any] struct {
	chunkSize   int
	chunks      [][]T
	used        int
	gen         uint32
	released    bool
	totalAllocs uint64
}

// New creates an arena reserving chunkSize slots at a time.
// A non-positive chunkSize selects DefaultChunkSize.
func New[T any](chunkSize int) *Arena[T] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Arena[T]{chunkSize: chunkSize, gen: 1}
}

// Alloc reserves a zeroed slot and returns its Ref and address.
// The address is only valid until the next Reset or Release.
func (a *Arena[T]) Alloc() (Ref, *T, error) {
	if a.released {
		return Nil, nil, ErrReleased
	}
	chunk, off := a.used/a.chunkSize, a.used%a.chunkSize
	if chunk == len(a.chunks) {
		a.chunks = append(a.chunks, make([]T, a.chunkSize))
	}
	slot := &a.chunks[chunk][off]
	var zero T
	*slot = zero

	ref := Ref{Gen: a.gen, Index: uint32(a.used)} //nolint:gosec // bounded by memory
	a.used++
	a.totalAllocs++
	return ref, slot, nil
}

// Get resolves r to the slot it addresses.
func (a *Arena[T]) Get(r Ref) (*T, error) {
	if a.released {
		return nil, ErrReleased
	}
	if r.Gen != a.gen {
		return nil, fmt.Errorf("%w: %s, current generation %d", ErrStaleRef, r, a.gen)
	}
	idx := int(r.Index)
	if idx >= a.used {
		return nil, fmt.Errorf("%w: %s, %d slots used", ErrOutOfRange, r, a.used)
	}
	return &a.chunks[idx/a.chunkSize][idx%a.chunkSize], nil
}

// Len returns the number of slots handed out in the current generation.
func (a *Arena[T]) Len() int { return a.used }

// Reset invalidates every outstanding Ref and makes all slots reusable.
// Chunks are retained.
func (a *Arena[T]) Reset() error {
	if a.released {
		return ErrReleased
	}
	a.used = 0
	a.gen++
	return nil
}

// Release drops all chunks. A second Release returns ErrReleased.
func (a *Arena[T]) Release() error {
	if a.released {
		return ErrReleased
	}
	a.released = true
	a.chunks = nil
	a.used = 0
	return nil
}

// Released reports whether Release has been called.
func (a *Arena[T]) Released() bool { return a.released }

// Stats returns a snapshot of arena usage.
func (a *Arena[T]) Stats() Stats {
	return Stats{
		Chunks:      len(a.chunks),
		Slots:       len(a.chunks) * a.chunkSize,
		Used:        a.used,
		Generation:  a.gen,
		TotalAllocs: a.totalAllocs,
	}
}
