package sift

import (
	"fmt"
	"iter"
)

// RecordKind tags the element type of a keypoint collection.
type RecordKind int

const (
	KindUnknown RecordKind = iota
	// KindSIFT collections hold SIFT feature records with scale-space data.
	KindSIFT
	// KindKeyPoint collections hold generic keypoints.
	KindKeyPoint
)

func (k RecordKind) String() string {
	switch k {
	case KindSIFT:
		return "SIFT feature"
	case KindKeyPoint:
		return "keypoint"
	default:
		return "unknown"
	}
}

// Collection is an ordered keypoint sequence.
type Collection interface {
	RecordKind() RecordKind
	Len() int
	Location(i int) (x, y float64)
}

// KeyPoint is a generic keypoint without SIFT scale-space metadata.
type KeyPoint struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Size     float64 `json:"size"`
	Angle    float64 `json:"angle"`
	Response float32 `json:"response"`
	Octave   int     `json:"octave"`
	ClassID  int     `json:"class_id"`
}

// KeyPoints is a Collection of generic keypoints.
type KeyPoints []KeyPoint

func (KeyPoints) RecordKind() RecordKind { return KindKeyPoint }

func (k KeyPoints) Len() int { return len(k) }

func (k KeyPoints) Location(i int) (float64, float64) { return k[i].X, k[i].Y }

// Results is a SIFT feature collection over a Seq. A Results created by
// detection owns the sequence's Storage and releases it on Close; one
// created with Borrow never releases.
//
// Results is not safe for concurrent use.
type Results struct {
	seq     *Seq
	owned   bool
	closed  bool
	busy    bool
	n       int
	version uint64
}

// NewResults returns an empty collection owning a fresh Storage.
func NewResults(blockSize int) *Results {
	return own(NewStorage(blockSize).NewSeq())
}

// Borrow wraps seq without taking ownership of its storage.
func Borrow(seq *Seq) *Results {
	return &Results{seq: seq, n: seq.Len()}
}

func own(seq *Seq) *Results {
	return &Results{seq: seq, owned: true, n: seq.Len()}
}

// ResultsFromFeatures copies fs into a new owned collection.
func ResultsFromFeatures(fs []Feature) (*Results, error) {
	r := NewResults(len(fs))
	for i, f := range fs {
		if err := r.Append(f); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
	}
	return r, nil
}

// ResultsFromFlat decodes one flat record per row (LegacyPacking).
func ResultsFromFlat(rows [][]any) (*Results, error) {
	return ResultsFromFlatWith(rows, LegacyPacking)
}

// ResultsFromFlatWith decodes one flat record per row with packing p.
func ResultsFromFlatWith(rows [][]any, p Packing) (*Results, error) {
	r := NewResults(len(rows))
	for i, row := range rows {
		f, rest, err := DecodeFeatureWith(row, p)
		if err == nil && len(rest) != 0 {
			err = fmt.Errorf("%d trailing elements", len(rest))
		}
		if err == nil {
			err = r.Append(f)
		}
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return r, nil
}

func (r *Results) RecordKind() RecordKind { return KindSIFT }

// Len returns the number of records as of the last Reset.
func (r *Results) Len() int { return r.n }

// Location returns the position of the i-th record, or zeros when it is
// out of range or the collection is unreadable.
func (r *Results) Location(i int) (float64, float64) {
	if r.readable() != nil || i >= r.n {
		return 0, 0
	}
	rec := r.seq.At(i)
	if rec == nil {
		return 0, 0
	}
	return rec.X, rec.Y
}

// Owned reports whether Close releases the underlying storage.
func (r *Results) Owned() bool { return r.owned }

// Storage returns the pool backing the records.
func (r *Results) Storage() *Storage { return r.seq.Storage() }

// Seq returns the underlying sequence. Mutating it directly requires a Reset.
func (r *Results) Seq() *Seq { return r.seq }

func (r *Results) readable() error {
	switch {
	case r.closed:
		return ErrReleased
	case r.busy:
		return ErrBusy
	}
	return nil
}

// At returns a detached copy of the i-th record.
func (r *Results) At(i int) (Feature, error) {
	if err := r.readable(); err != nil {
		return Feature{}, err
	}
	if i < 0 || i >= r.n {
		return Feature{}, fmt.Errorf("%w: %d of %d", ErrIndex, i, r.n)
	}
	return r.seq.Feature(i)
}

// Features returns detached copies of all records.
func (r *Results) Features() ([]Feature, error) {
	out := make([]Feature, 0, r.n)
	for i := range r.n {
		f, err := r.At(i)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// All iterates over detached records. Iteration stops early when the
// collection is updated, reset, truncated or closed underneath it.
func (r *Results) All() iter.Seq2[int, Feature] {
	return func(yield func(int, Feature) bool) {
		v := r.version
		for i := 0; i < r.n; i++ {
			if r.version != v {
				return
			}
			f, err := r.At(i)
			if err != nil {
				return
			}
			if !yield(i, f) {
				return
			}
		}
	}
}

// Flat serializes every record with LegacyPacking.
func (r *Results) Flat() ([][]any, error) { return r.FlatWith(LegacyPacking) }

// FlatWith serializes every record with packing p.
func (r *Results) FlatWith(p Packing) ([][]any, error) {
	rows := make([][]any, 0, r.n)
	for i := range r.n {
		f, err := r.At(i)
		if err != nil {
			return nil, err
		}
		rows = append(rows, f.FlatWith(p))
	}
	return rows, nil
}

// Append adds a copy of f.
func (r *Results) Append(f Feature) error {
	if err := r.readable(); err != nil {
		return err
	}
	if err := r.seq.Push(f); err != nil {
		return err
	}
	r.Reset()
	return nil
}

// Reset re-syncs the wrapper with its sequence after an in-place mutation.
// Live iterators stop.
func (r *Results) Reset() {
	r.n = r.seq.Len()
	r.version++
}

// Truncate drops records past n.
func (r *Results) Truncate(n int) {
	r.seq.Truncate(n)
	r.Reset()
}

// Update runs fn with exclusive access to the sequence. Reads issued while
// fn runs fail with ErrBusy. The wrapper is reset afterwards, even on error.
func (r *Results) Update(fn func(*Seq) error) error {
	if err := r.readable(); err != nil {
		return err
	}
	r.busy = true
	r.version++
	defer func() {
		r.busy = false
		r.Reset()
	}()
	return fn(r.seq)
}

// Close releases owned storage. Later calls are no-ops.
func (r *Results) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.version++
	if !r.owned {
		return nil
	}
	return r.seq.Storage().Release()
}

// Closed reports whether Close has been called.
func (r *Results) Closed() bool { return r.closed }
