// Package gosift is a pure Go SIFT backend: a difference of Gaussians scale
// space over a doubled input image, sub-pixel extremum refinement, contrast
// and edge rejection, orientation histograms and 4x4x8 gradient descriptors.
//
// Importing the package registers it with pkg/sift under the name "pure".
package gosift

import (
	"cmp"
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/siftkit/pkg/sift"
)

// Name is the registry name of the backend.
const Name = "pure"

const (
	defaultSigma     = 1.6
	defaultInitSigma = 0.5
	border           = 5
	maxInterpSteps   = 5

	oriHistBins     = 36
	oriSigFactor    = 1.5
	oriRadius       = 3.0 * oriSigFactor
	oriSmoothPasses = 2
	oriPeakRatio    = 0.8
	descrWidth      = 4
	descrHistBins   = 8
	descrMagThr     = 0.2
	intDescrFactor  = 512.0
)

var (
	// ErrParams is returned for parameters the scale space cannot be built with.
	ErrParams = errors.New("invalid parameters")
	// ErrImageTooSmall is returned when the image cannot hold a single octave.
	ErrImageTooSmall = errors.New("image too small")
	// ErrScaleSpace is returned when a record to describe lies outside the scale space.
	ErrScaleSpace = errors.New("record outside scale space")
)

func init() {
	sift.RegisterBackend(Name, func() (sift.Backend, error) { return New(), nil })
}

type options struct {
	sigma     float64
	initSigma float64
	double    bool
	workers   int
}

// Option configures a Backend.
type Option func(*options)

// WithSigma sets the base blur of each octave.
func WithSigma(s float64) Option {
	return func(o *options) { o.sigma = s }
}

// WithImageDoubling controls whether the input is upsampled before the
// first octave. Doubling is on by default.
func WithImageDoubling(on bool) Option {
	return func(o *options) { o.double = on }
}

// WithWorkers bounds the goroutines computing descriptors.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// Backend implements sift.Backend without native dependencies.
type Backend struct {
	opts options
}

var _ sift.Backend = (*Backend)(nil)

// New creates a Backend.
func New(opts ...Option) *Backend {
	o := options{
		sigma:     defaultSigma,
		initSigma: defaultInitSigma,
		double:    true,
		workers:   runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Backend{opts: o}
}

func (b *Backend) Name() string { return Name }

// Detect finds keypoints. Orientations are assigned when p.Recalculate()
// is set and are zero otherwise. Records are ordered by decreasing scale.
func (b *Backend) Detect(img, mask *image.Gray, st *sift.Storage, p sift.CParams) (*sift.Seq, error) {
	pyr, err := buildPyramid(img, int(p.Octaves), int(p.Intervals), b.opts)
	if err != nil {
		return nil, err
	}
	return b.detect(pyr, mask, st, p)
}

// DetectDescribe detects and describes into a new sequence when seq is nil,
// otherwise describes the records of seq in place.
func (b *Backend) DetectDescribe(img, mask *image.Gray, st *sift.Storage, p sift.CParams, seq *sift.Seq) (*sift.Seq, error) {
	pyr, err := buildPyramid(img, int(p.Octaves), int(p.Intervals), b.opts)
	if err != nil {
		return nil, err
	}
	if seq == nil {
		if seq, err = b.detect(pyr, mask, st, p); err != nil {
			return nil, err
		}
	}
	if err := b.describe(pyr, seq, p.Magnification); err != nil {
		return nil, err
	}
	return seq, nil
}

func (b *Backend) detect(pyr *pyramid, mask *image.Gray, st *sift.Storage, p sift.CParams) (*sift.Seq, error) {
	var feats []sift.Feature
	for _, k := range findExtrema(pyr, p.Threshold, p.EdgeThreshold) {
		f := b.feature(pyr, k)
		if !inMask(mask, f.X, f.Y) {
			continue
		}
		if !p.Recalculate() {
			feats = append(feats, f)
			continue
		}
		for _, ori := range b.orientations(pyr, k, f.Data.ScaleOctave) {
			f.Orientation = ori
			feats = append(feats, f)
		}
	}
	slices.SortStableFunc(feats, func(l, r sift.Feature) int {
		return cmp.Compare(r.Scale, l.Scale)
	})

	seq := st.NewSeq()
	for _, f := range feats {
		if err := seq.Push(f); err != nil {
			return nil, err
		}
	}
	return seq, nil
}

// feature converts a refined extremum to a record in input image coordinates.
func (b *Backend) feature(pyr *pyramid, k keypoint) sift.Feature {
	scl, sclOctv := k.scales(pyr)
	mul := float64(int(1) << k.oct)
	x := (float64(k.c) + k.xc) * mul
	y := (float64(k.r) + k.xr) * mul
	if pyr.doubled {
		x, y, scl = x/2, y/2, scl/2
	}
	return sift.Feature{
		X:        x,
		Y:        y,
		Scale:    scl,
		Response: float32(math.Abs(k.contrast)),
		Data: sift.FeatureData{
			R:           k.r,
			C:           k.c,
			Octave:      k.oct,
			Interval:    k.intvl,
			SubInterval: k.xi,
			ScaleOctave: sclOctv,
		},
	}
}

func inMask(mask *image.Gray, x, y float64) bool {
	if mask == nil {
		return true
	}
	pt := image.Pt(mask.Rect.Min.X+int(x), mask.Rect.Min.Y+int(y))
	if !pt.In(mask.Rect) {
		return false
	}
	return mask.GrayAt(pt.X, pt.Y).Y != 0
}

// describe fills the descriptor of every record in seq, leaving position,
// scale and orientation untouched. Nothing is written unless every record
// lies inside the scale space.
func (b *Backend) describe(pyr *pyramid, seq *sift.Seq, magnification float64) error {
	type job struct {
		img      *plane
		r, c     int
		ori, scl float64
	}
	jobs := make([]job, seq.Len())
	for i := range jobs {
		d, err := seq.Data(i)
		if err != nil {
			return err
		}
		oct, intvl := int(d.Octv), int(d.Intvl)
		if oct < 0 || oct >= pyr.octaves() || intvl < 0 || intvl >= len(pyr.gauss[oct]) {
			return fmt.Errorf("%w: record %d at octave %d interval %d", ErrScaleSpace, i, oct, intvl)
		}
		jobs[i] = job{
			img: pyr.gauss[oct][intvl],
			r:   int(d.R),
			c:   int(d.C),
			ori: seq.At(i).Orientation,
			scl: d.SclOctv,
		}
	}

	descs := make([][]float64, len(jobs))
	var g errgroup.Group
	g.SetLimit(max(b.opts.workers, 1))
	for i, j := range jobs {
		g.Go(func() error {
			descs[i] = descriptor(j.img, j.r, j.c, j.ori, j.scl, magnification)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, desc := range descs {
		if err := seq.SetDescriptor(i, desc); err != nil {
			return err
		}
	}
	return nil
}
