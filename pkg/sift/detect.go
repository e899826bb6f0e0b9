package sift

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/siftkit/internal/logging"
)

// Detector runs a Backend on images. A Detector is not safe for concurrent
// use; batch callers create one per goroutine.
type Detector struct {
	backend   Backend
	logger    *logging.Logger
	blockSize int
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithLogger sets the detector's logger.
func WithLogger(l *logging.Logger) DetectorOption {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithBlockSize sets how many feature-data records each Storage reserves at a time.
func WithBlockSize(n int) DetectorOption {
	return func(d *Detector) { d.blockSize = n }
}

// NewDetector creates a Detector over backend.
func NewDetector(backend Backend, opts ...DetectorOption) *Detector {
	d := &Detector{backend: backend, logger: logging.NoopLogger()}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithBackend(backend.Name())
	return d
}

// Backend returns the detector's backend.
func (d *Detector) Backend() Backend { return d.backend }

type detectOptions struct {
	mask *image.Gray
}

// DetectOption configures a single detection call.
type DetectOption func(*detectOptions)

// WithMask restricts detection to the non-zero pixels of mask. The mask must
// have the same bounds as the image.
func WithMask(mask *image.Gray) DetectOption {
	return func(o *detectOptions) { o.mask = mask }
}

func (d *Detector) prepare(img image.Image, opts []DetectOption) (*image.Gray, *image.Gray, error) {
	var o detectOptions
	for _, opt := range opts {
		opt(&o)
	}
	gray := Greyscale(img)
	if o.mask != nil && o.mask.Bounds().Size() != gray.Bounds().Size() {
		return nil, nil, fmt.Errorf("%w: mask %v, image %v", ErrMaskSize, o.mask.Bounds().Size(), gray.Bounds().Size())
	}
	return gray, o.mask, nil
}

// Detect finds keypoints in img. The returned collection owns a fresh
// Storage and has no descriptors.
func (d *Detector) Detect(img image.Image, params Params, opts ...DetectOption) (*Results, error) {
	ctx := context.Background()
	gray, mask, err := d.prepare(img, opts)
	if err != nil {
		return nil, err
	}

	st := NewStorage(d.blockSize)
	seq, err := d.backend.Detect(gray, mask, st, params.C())
	if err != nil {
		_ = st.Release()
		err = fmt.Errorf("%s: %w", d.backend.Name(), err)
		d.logger.LogDetect(ctx, d.backend.Name(), 0, err)
		return nil, err
	}
	d.logger.LogDetect(ctx, d.backend.Name(), seq.Len(), nil)
	return own(seq), nil
}

// DetectDescribe computes descriptors. With a nil existing collection it
// detects and describes in one backend call and returns a new collection.
// When existing is a *Results it is described in place and returned. Any
// other collection fails with a *RecordTypeError before the backend runs.
func (d *Detector) DetectDescribe(img image.Image, params Params, existing Collection, opts ...DetectOption) (*Results, error) {
	ctx := context.Background()
	var target *Results
	if existing != nil {
		r, ok := existing.(*Results)
		if !ok {
			return nil, &RecordTypeError{Want: KindSIFT, Got: existing.RecordKind().String()}
		}
		target = r
	}

	gray, mask, err := d.prepare(img, opts)
	if err != nil {
		return nil, err
	}
	name := d.backend.Name()

	if target == nil {
		st := NewStorage(d.blockSize)
		seq, err := d.backend.DetectDescribe(gray, mask, st, params.C(), nil)
		if err != nil {
			_ = st.Release()
			err = fmt.Errorf("%s: %w", name, err)
			d.logger.LogDescribe(ctx, name, 0, false, err)
			return nil, err
		}
		d.logger.LogDescribe(ctx, name, seq.Len(), false, nil)
		return own(seq), nil
	}

	err = target.Update(func(seq *Seq) error {
		out, err := d.backend.DetectDescribe(gray, mask, seq.Storage(), params.C(), seq)
		if err != nil {
			return err
		}
		if out != seq {
			return fmt.Errorf("describe returned a new sequence")
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("%s: %w", name, err)
		d.logger.LogDescribe(ctx, name, target.Len(), true, err)
		return nil, err
	}
	d.logger.LogDescribe(ctx, name, target.Len(), true, nil)
	return target, nil
}

// Greyscale returns img as a single-channel image with its origin at (0, 0).
// A *image.Gray already at the origin is returned as is.
func Greyscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	nrgba := imaging.Grayscale(img)
	b := nrgba.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := range b.Dy() {
		src := nrgba.Pix[y*nrgba.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := range b.Dx() {
			dst[x] = src[4*x]
		}
	}
	return out
}
