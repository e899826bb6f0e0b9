//go:build gocv

package cvsift

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/menta2k/siftkit/pkg/sift"
)

// ErrKeypointCount is returned when OpenCV drops keypoints while describing
// an existing sequence.
var ErrKeypointCount = errors.New("keypoint count changed")

func init() {
	sift.RegisterBackend(Name, func() (sift.Backend, error) { return New(), nil })
}

// Backend implements sift.Backend with cv::SIFT. OpenCV chooses the octave
// count and descriptor magnification itself, so Octaves and Magnification
// are ignored.
type Backend struct{}

var _ sift.Backend = (*Backend)(nil)

// New creates a Backend.
func New() *Backend { return &Backend{} }

func (b *Backend) Name() string { return Name }

func newSIFT(p sift.CParams) gocv.SIFT {
	features := 0
	layers := int(p.Intervals)
	contrast := p.Threshold
	edge := p.EdgeThreshold
	s := sigma
	return gocv.NewSIFTWithParams(&features, &layers, &contrast, &edge, &s)
}

func toMat(img *image.Gray) (gocv.Mat, error) {
	m, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("convert image: %w", err)
	}
	return m, nil
}

// Detect finds keypoints. Without p.Recalculate() every location is
// reported once with a zero orientation.
func (b *Backend) Detect(img, mask *image.Gray, st *sift.Storage, p sift.CParams) (*sift.Seq, error) {
	src, err := toMat(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	s := newSIFT(p)
	defer s.Close()

	return push(st.NewSeq(), s.Detect(src), mask, p)
}

// DetectDescribe detects and describes into a new sequence when seq is nil,
// otherwise computes descriptors for the records of seq in place.
func (b *Backend) DetectDescribe(img, mask *image.Gray, st *sift.Storage, p sift.CParams, seq *sift.Seq) (*sift.Seq, error) {
	src, err := toMat(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	s := newSIFT(p)
	defer s.Close()

	if seq == nil {
		if seq, err = push(st.NewSeq(), s.Detect(src), mask, p); err != nil {
			return nil, err
		}
	}

	kps := make([]gocv.KeyPoint, seq.Len())
	for i := range kps {
		d, err := seq.Data(i)
		if err != nil {
			return nil, err
		}
		kp := fromRecord(seq.At(i), d)
		kps[i] = gocv.KeyPoint{X: kp.X, Y: kp.Y, Size: kp.Size, Angle: kp.Angle, Response: kp.Response, Octave: kp.Octave}
	}

	empty := gocv.NewMat()
	defer empty.Close()
	out, desc := s.Compute(src, empty, kps)
	defer desc.Close()
	if len(out) != len(kps) || desc.Rows() != len(kps) {
		return nil, fmt.Errorf("%w: %d in, %d out", ErrKeypointCount, len(kps), len(out))
	}

	row := make([]float64, desc.Cols())
	for i := range kps {
		for j := range row {
			row[j] = float64(desc.GetFloatAt(i, j))
		}
		if err := seq.SetDescriptor(i, row); err != nil {
			return nil, err
		}
	}
	return seq, nil
}

type location struct{ x, y, size float64 }

func push(seq *sift.Seq, kps []gocv.KeyPoint, mask *image.Gray, p sift.CParams) (*sift.Seq, error) {
	seen := make(map[location]bool)
	for _, kp := range kps {
		if mask != nil && !inMask(mask, kp.X, kp.Y) {
			continue
		}
		if !p.Recalculate() {
			loc := location{kp.X, kp.Y, kp.Size}
			if seen[loc] {
				continue
			}
			seen[loc] = true
		}
		f := toFeature(keypoint{
			X: kp.X, Y: kp.Y, Size: kp.Size, Angle: kp.Angle, Response: kp.Response, Octave: kp.Octave,
		}, int(p.Intervals), p.Recalculate())
		if err := seq.Push(f); err != nil {
			return nil, err
		}
	}
	return seq, nil
}

func inMask(mask *image.Gray, x, y float64) bool {
	pt := image.Pt(mask.Rect.Min.X+int(x), mask.Rect.Min.Y+int(y))
	return pt.In(mask.Rect) && mask.GrayAt(pt.X, pt.Y).Y != 0
}
