package gosift

import (
	"fmt"
	"image"
	"math"
)

// plane is a single-channel float image with values in [0, 1].
type plane struct {
	w, h int
	pix  []float32
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, pix: make([]float32, w*h)}
}

func planeFromGray(g *image.Gray) *plane {
	b := g.Bounds()
	p := newPlane(b.Dx(), b.Dy())
	for y := range p.h {
		row := g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := range p.w {
			p.pix[y*p.w+x] = float32(row[x]) / 255
		}
	}
	return p
}

func (p *plane) at(x, y int) float64 { return float64(p.pix[y*p.w+x]) }

// clamped reads with replicated borders.
func (p *plane) clamped(x, y int) float32 {
	x = min(max(x, 0), p.w-1)
	y = min(max(y, 0), p.h-1)
	return p.pix[y*p.w+x]
}

// upsample doubles p with bilinear interpolation.
func upsample(p *plane) *plane {
	out := newPlane(2*p.w, 2*p.h)
	for y := range out.h {
		sy := (float64(y)+0.5)/2 - 0.5
		y0 := int(math.Floor(sy))
		fy := float32(sy - float64(y0))
		for x := range out.w {
			sx := (float64(x)+0.5)/2 - 0.5
			x0 := int(math.Floor(sx))
			fx := float32(sx - float64(x0))
			top := p.clamped(x0, y0)*(1-fx) + p.clamped(x0+1, y0)*fx
			bot := p.clamped(x0, y0+1)*(1-fx) + p.clamped(x0+1, y0+1)*fx
			out.pix[y*out.w+x] = top*(1-fy) + bot*fy
		}
	}
	return out
}

// downsample halves p by taking every second pixel.
func downsample(p *plane) *plane {
	out := newPlane(p.w/2, p.h/2)
	for y := range out.h {
		for x := range out.w {
			out.pix[y*out.w+x] = p.pix[2*y*p.w+2*x]
		}
	}
	return out
}

func gaussianKernel(sigma float64) []float32 {
	r := int(math.Ceil(4 * sigma))
	k := make([]float32, 2*r+1)
	var sum float64
	for i := -r; i <= r; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+r] = float32(v)
		sum += v
	}
	for i := range k {
		k[i] = float32(float64(k[i]) / sum)
	}
	return k
}

// blur applies a separable Gaussian with replicated borders.
func blur(src *plane, sigma float64) *plane {
	if sigma <= 0 {
		out := newPlane(src.w, src.h)
		copy(out.pix, src.pix)
		return out
	}
	k := gaussianKernel(sigma)
	r := len(k) / 2

	tmp := newPlane(src.w, src.h)
	for y := range src.h {
		for x := range src.w {
			var acc float32
			for i, kv := range k {
				acc += kv * src.clamped(x+i-r, y)
			}
			tmp.pix[y*src.w+x] = acc
		}
	}
	out := newPlane(src.w, src.h)
	for y := range src.h {
		for x := range src.w {
			var acc float32
			for i, kv := range k {
				acc += kv * tmp.clamped(x, y+i-r)
			}
			out.pix[y*src.w+x] = acc
		}
	}
	return out
}

func subtract(a, b *plane) *plane {
	out := newPlane(a.w, a.h)
	for i := range out.pix {
		out.pix[i] = a.pix[i] - b.pix[i]
	}
	return out
}

// pyramid holds intervals+3 Gaussian levels and intervals+2 difference of
// Gaussian levels per octave.
type pyramid struct {
	intervals int
	sigma     float64
	doubled   bool
	gauss     [][]*plane
	dog       [][]*plane
}

func (p *pyramid) octaves() int { return len(p.gauss) }

func octaveCount(requested, w, h int) int {
	limit := int(math.Log2(float64(min(w, h)))) - 2
	if requested <= 0 || requested > limit {
		return limit
	}
	return requested
}

func buildPyramid(img *image.Gray, octaves, intervals int, o options) (*pyramid, error) {
	if intervals < 1 {
		return nil, fmt.Errorf("%w: intervals %d", ErrParams, intervals)
	}

	base := planeFromGray(img)
	diff := math.Sqrt(max(o.sigma*o.sigma-o.initSigma*o.initSigma, 0.01))
	if o.double {
		base = upsample(base)
		diff = math.Sqrt(max(o.sigma*o.sigma-4*o.initSigma*o.initSigma, 0.01))
	}
	base = blur(base, diff)

	n := octaveCount(octaves, base.w, base.h)
	if n < 1 {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooSmall, img.Bounds().Dx(), img.Bounds().Dy())
	}

	levels := intervals + 3
	sig := make([]float64, levels)
	sig[0] = o.sigma
	k := math.Pow(2, 1/float64(intervals))
	for i := 1; i < levels; i++ {
		prev := math.Pow(k, float64(i-1)) * o.sigma
		total := prev * k
		sig[i] = math.Sqrt(total*total - prev*prev)
	}

	p := &pyramid{
		intervals: intervals,
		sigma:     o.sigma,
		doubled:   o.double,
		gauss:     make([][]*plane, n),
		dog:       make([][]*plane, n),
	}
	for oct := range n {
		p.gauss[oct] = make([]*plane, levels)
		if oct == 0 {
			p.gauss[oct][0] = base
		} else {
			p.gauss[oct][0] = downsample(p.gauss[oct-1][intervals])
		}
		for i := 1; i < levels; i++ {
			p.gauss[oct][i] = blur(p.gauss[oct][i-1], sig[i])
		}
		p.dog[oct] = make([]*plane, levels-1)
		for i := range levels - 1 {
			p.dog[oct][i] = subtract(p.gauss[oct][i+1], p.gauss[oct][i])
		}
	}
	return p, nil
}

// gradient returns the magnitude and orientation of the pixel gradient at
// (x, y), or false at the plane border.
func (p *plane) gradient(x, y int) (mag, ori float64, ok bool) {
	if x <= 0 || x >= p.w-1 || y <= 0 || y >= p.h-1 {
		return 0, 0, false
	}
	dx := p.at(x+1, y) - p.at(x-1, y)
	dy := p.at(x, y-1) - p.at(x, y+1)
	return math.Sqrt(dx*dx + dy*dy), math.Atan2(dy, dx), true
}
