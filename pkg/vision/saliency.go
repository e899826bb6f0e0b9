// Package vision finds salient regions of an image and turns them into
// detection masks.
package vision

import (
	"errors"
	"image"
	"math"
	"slices"

	"github.com/disintegration/imaging"
)

var (
	// ErrEmptyImage is returned for an image without pixels
	ErrEmptyImage = errors.New("empty image")
	// ErrNoSubject is returned when no region passes the configured thresholds
	ErrNoSubject = errors.New("no salient region found")
)

// SubjectDetector provides functionality to detect subjects/important regions in images
type SubjectDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for subject detection
type DetectionConfig struct {
	// EdgeThreshold is the minimum mean saliency of a candidate window
	EdgeThreshold    float64
	ContrastWeight   float64
	BrightnessWeight float64
	// MinSubjectRatio is the minimum window area as a fraction of the image
	MinSubjectRatio float64
	MaxRegions      int
	// Padding grows each masked region by this fraction of its size on every side
	Padding float64
}

// DefaultConfig returns the detector defaults
func DefaultConfig() DetectionConfig {
	return DetectionConfig{
		EdgeThreshold:    0.01,
		ContrastWeight:   0.3,
		BrightnessWeight: 0.2,
		MinSubjectRatio:  0.05,
		MaxRegions:       10,
		Padding:          0.1,
	}
}

// New creates a new SubjectDetector with default configuration
func New() *SubjectDetector {
	return &SubjectDetector{config: DefaultConfig()}
}

// NewWithConfig creates a new SubjectDetector with custom configuration
func NewWithConfig(config DetectionConfig) *SubjectDetector {
	return &SubjectDetector{config: config}
}

// Region represents a rectangular region of interest in image coordinates
// relative to the image origin
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// Rect returns the region as a rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// SaliencyMap is a per-pixel saliency score in row-major order
type SaliencyMap struct {
	Width, Height int
	Values        []float64
}

// At returns the saliency at (x, y)
func (m *SaliencyMap) At(x, y int) float64 {
	return m.Values[y*m.Width+x]
}

// integral returns the summed-area table with a zero first row and column
func (m *SaliencyMap) integral() []float64 {
	stride := m.Width + 1
	sat := make([]float64, stride*(m.Height+1))
	for y := 0; y < m.Height; y++ {
		var row float64
		for x := 0; x < m.Width; x++ {
			row += m.Values[y*m.Width+x]
			sat[(y+1)*stride+x+1] = sat[y*stride+x+1] + row
		}
	}
	return sat
}

// Saliency combines local colour contrast and brightness into a map. The
// one-pixel border is left at zero.
func (d *SubjectDetector) Saliency(img image.Image) *SaliencyMap {
	src := imaging.Clone(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	m := &SaliencyMap{Width: w, Height: h, Values: make([]float64, w*h)}

	px := func(x, y int) (float64, float64, float64) {
		i := y*src.Stride + x*4
		return float64(src.Pix[i]), float64(src.Pix[i+1]), float64(src.Pix[i+2])
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			r1, g1, b1 := px(x, y)
			var edge float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					r2, g2, b2 := px(x+dx, y+dy)
					edge += math.Sqrt((r1-r2)*(r1-r2) + (g1-g2)*(g1-g2) + (b1-b2)*(b1-b2))
				}
			}
			edge /= 8 * 255
			brightness := (r1 + g1 + b1) / (3 * 255)
			m.Values[y*w+x] = d.config.ContrastWeight*edge + d.config.BrightnessWeight*brightness
		}
	}
	return m
}

// DetectSubjects scans square windows over the saliency map and returns the
// best scoring ones, highest score first
func (d *SubjectDetector) DetectSubjects(img image.Image) ([]Region, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, ErrEmptyImage
	}

	m := d.Saliency(img)
	sat := m.integral()
	stride := width + 1
	minArea := int(float64(width*height) * d.config.MinSubjectRatio)

	var regions []Region
	for _, k := range []int{20, 16, 12, 8, 4} {
		size := width / k
		if size < 10 || size > height || size*size < minArea {
			continue
		}
		step := max(size/8, 1)
		for y := 0; y+size <= height; y += step {
			for x := 0; x+size <= width; x += step {
				sum := sat[(y+size)*stride+x+size] - sat[y*stride+x+size] - sat[(y+size)*stride+x] + sat[y*stride+x]
				score := sum / float64(size*size)
				if score > d.config.EdgeThreshold {
					regions = append(regions, Region{X: x, Y: y, Width: size, Height: size, Score: score})
				}
			}
		}
	}

	slices.SortStableFunc(regions, func(a, b Region) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if n := d.config.MaxRegions; n > 0 && len(regions) > n {
		regions = regions[:n]
	}
	return regions, nil
}

// Mask returns a detection mask covering the top n salient regions (all
// detected regions when n <= 0). The mask has the bounds of img.
func (d *SubjectDetector) Mask(img image.Image, n int) (*image.Gray, error) {
	regions, err := d.DetectSubjects(img)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, ErrNoSubject
	}
	if n > 0 && len(regions) > n {
		regions = regions[:n]
	}

	bounds := img.Bounds()
	rects := make([]image.Rectangle, len(regions))
	for i, r := range regions {
		padX := int(float64(r.Width) * d.config.Padding)
		padY := int(float64(r.Height) * d.config.Padding)
		rects[i] = r.Rect().Inset(-max(padX, padY)).Add(bounds.Min)
	}
	return RectMask(bounds, rects...), nil
}

// RectMask returns a mask over bounds with the given rectangles set to 255
func RectMask(bounds image.Rectangle, rects ...image.Rectangle) *image.Gray {
	mask := image.NewGray(bounds)
	for _, r := range rects {
		r = r.Intersect(bounds)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			off := mask.PixOffset(r.Min.X, y)
			for i := range r.Dx() {
				mask.Pix[off+i] = 255
			}
		}
	}
	return mask
}
