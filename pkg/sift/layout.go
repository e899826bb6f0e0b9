package sift

import (
	"errors"
	"fmt"

	"github.com/menta2k/siftkit/internal/arena"
)

// DescriptorSize is the capacity of a descriptor vector.
const DescriptorSize = 128

// CFeatureData mirrors the backend's per-keypoint scale-space record:
//
//	struct feature_data {
//	    int    r;        // 0
//	    int    c;        // 4
//	    int    octv;     // 8
//	    int    intvl;    // 12
//	    double subintvl; // 16
//	    double scl_octv; // 24
//	};                   // sizeof 32
type CFeatureData struct {
	R        int32
	C        int32
	Octv     int32
	Intvl    int32
	SubIntvl float64
	SclOctv  float64
}

// CFeature mirrors the backend's keypoint record. The feature_data pointer
// slot holds an arena.Ref into the Storage the record was allocated from.
//
//	struct CvSIFTFeature {
//	    double x, y, scale, orientation;  // 0..31
//	    int    descriptor_length;         // 32
//	    double descriptor[128];           // 40
//	    feature_data *feature_data;       // 1064
//	    int    class_id;                  // 1072
//	    float  response;                  // 1076
//	};                                    // sizeof 1080
type CFeature struct {
	X                float64
	Y                float64
	Scale            float64
	Orientation      float64
	DescriptorLength int32
	Descriptor       [DescriptorSize]float64
	FeatureData      arena.Ref
	ClassID          int32
	Response         float32
}

// Storage is the allocation pool backing a sequence's feature data. All
// feature data of a detection batch lives in one Storage and is freed with it.
type Storage struct {
	data *arena.Arena[CFeatureData]
}

// NewStorage creates a pool reserving blockSize records at a time
// (0 selects the arena default).
func NewStorage(blockSize int) *Storage {
	return &Storage{data: arena.New[CFeatureData](blockSize)}
}

// NewSeq creates an empty sequence drawing from s.
func (s *Storage) NewSeq() *Seq {
	return &Seq{storage: s}
}

// Data resolves a feature-data reference.
func (s *Storage) Data(ref arena.Ref) (*CFeatureData, error) {
	d, err := s.data.Get(ref)
	if err != nil {
		return nil, storageErr(err)
	}
	return d, nil
}

func (s *Storage) alloc(fd FeatureData) (arena.Ref, error) {
	ref, slot, err := s.data.Alloc()
	if err != nil {
		return arena.Nil, storageErr(err)
	}
	*slot = fd.c()
	return ref, nil
}

// Release frees the pool. It fails with ErrReleased when called twice.
func (s *Storage) Release() error {
	return storageErr(s.data.Release())
}

// Released reports whether the pool has been freed.
func (s *Storage) Released() bool { return s.data.Released() }

// Stats reports pool usage.
func (s *Storage) Stats() arena.Stats { return s.data.Stats() }

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, arena.ErrReleased) {
		return fmt.Errorf("%w: %w", ErrReleased, err)
	}
	return err
}

// Seq is an ordered sequence of CFeature records whose feature data lives
// in a Storage. Backends append to and rewrite sequences in place.
type Seq struct {
	storage *Storage
	records []CFeature
}

// Storage returns the pool the sequence allocates from.
func (s *Seq) Storage() *Storage { return s.storage }

// Len returns the number of records.
func (s *Seq) Len() int { return len(s.records) }

// At returns the i-th record for in-place access, or nil when out of range.
func (s *Seq) At(i int) *CFeature {
	if i < 0 || i >= len(s.records) {
		return nil
	}
	return &s.records[i]
}

// Data returns the feature data of the i-th record.
func (s *Seq) Data(i int) (*CFeatureData, error) {
	rec := s.At(i)
	if rec == nil {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndex, i, len(s.records))
	}
	return s.storage.Data(rec.FeatureData)
}

// Push appends f, allocating its feature data from the sequence's storage.
func (s *Seq) Push(f Feature) error {
	if f.DescriptorLength < 0 || f.DescriptorLength > DescriptorSize {
		return fmt.Errorf("%w: %d", ErrDescriptorLength, f.DescriptorLength)
	}
	ref, err := s.storage.alloc(f.Data)
	if err != nil {
		return err
	}
	rec := f.c()
	rec.FeatureData = ref
	s.records = append(s.records, rec)
	return nil
}

// Feature returns a detached copy of the i-th record.
func (s *Seq) Feature(i int) (Feature, error) {
	d, err := s.Data(i)
	if err != nil {
		return Feature{}, err
	}
	return featureFromC(&s.records[i], d), nil
}

// SetDescriptor stores desc as the i-th record's descriptor.
func (s *Seq) SetDescriptor(i int, desc []float64) error {
	rec := s.At(i)
	if rec == nil {
		return fmt.Errorf("%w: %d of %d", ErrIndex, i, len(s.records))
	}
	if len(desc) > DescriptorSize {
		return fmt.Errorf("%w: %d", ErrDescriptorLength, len(desc))
	}
	rec.Descriptor = [DescriptorSize]float64{}
	copy(rec.Descriptor[:], desc)
	rec.DescriptorLength = int32(len(desc)) //nolint:gosec // bounded above
	return nil
}

// Truncate drops records past n.
func (s *Seq) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(s.records) {
		s.records = s.records[:n]
	}
}
