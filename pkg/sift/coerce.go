package sift

import (
	"context"
	"math"
)

// Placeholder scale-space values given to coerced keypoints. They reproduce
// legacy output and carry no numeric meaning: a generic keypoint is assumed
// to sit on interval 1 of octave 0 of a doubled image with sigma 1.6 and
// five intervals per octave.
const (
	CoerceSigma     = 1.6
	CoerceIntervals = 5
	CoerceInterval  = 1
	CoerceOctave    = 0
)

// CoerceScale is CoerceSigma * 2^(CoerceInterval/CoerceIntervals).
var CoerceScale = CoerceSigma * math.Pow(2, float64(CoerceInterval)/CoerceIntervals)

type coerceOptions struct {
	force bool
}

// CoerceOption configures Coerce.
type CoerceOption func(*coerceOptions)

// WithForceCoerce re-synthesizes SIFT collections instead of returning them as is.
func WithForceCoerce() CoerceOption {
	return func(o *coerceOptions) { o.force = true }
}

// Coerce converts src to a SIFT feature collection. A *Results is returned
// unchanged unless WithForceCoerce is given. Otherwise a new owned collection
// is built from each element's position with placeholder feature data.
func Coerce(src Collection, opts ...CoerceOption) (*Results, error) {
	var o coerceOptions
	for _, opt := range opts {
		opt(&o)
	}

	if r, ok := src.(*Results); ok {
		if !o.force {
			diagLogger().LogCoerce(context.Background(), src.RecordKind().String(), r.Len(), true)
			return r, nil
		}
		if err := r.readable(); err != nil {
			return nil, err
		}
	}

	n := src.Len()
	out := NewResults(n)
	for i := range n {
		x, y := src.Location(i)
		if err := out.Append(CoercedFeature(x, y)); err != nil {
			_ = out.Close()
			return nil, err
		}
	}
	diagLogger().LogCoerce(context.Background(), src.RecordKind().String(), n, false)
	return out, nil
}

// CoercedFeature builds an undescribed feature at (x, y) with the
// placeholder scale-space values.
func CoercedFeature(x, y float64) Feature {
	return Feature{
		X:     x,
		Y:     y,
		Scale: CoerceScale,
		Data: FeatureData{
			C:           int(x * 2),
			R:           int(y * 2),
			Octave:      CoerceOctave,
			Interval:    CoerceInterval,
			SubInterval: 0,
			ScaleOctave: CoerceScale,
		},
	}
}
