package gosift

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// keypoint is a refined scale-space extremum before orientation assignment.
type keypoint struct {
	oct, intvl int
	r, c       int
	xr, xc, xi float64
	contrast   float64
}

// scales returns the keypoint scale in octave-0 and in-octave units.
func (k keypoint) scales(p *pyramid) (scl, sclOctv float64) {
	interval := (float64(k.intvl) + k.xi) / float64(p.intervals)
	scl = p.sigma * math.Pow(2, float64(k.oct)+interval)
	sclOctv = p.sigma * math.Pow(2, interval)
	return scl, sclOctv
}

func findExtrema(p *pyramid, threshold, edgeRatio float64) []keypoint {
	prelim := 0.5 * threshold / float64(p.intervals)
	var out []keypoint
	for oct := range p.octaves() {
		d := p.dog[oct][0]
		for i := 1; i <= p.intervals; i++ {
			for r := border; r < d.h-border; r++ {
				for c := border; c < d.w-border; c++ {
					v := p.dog[oct][i].at(c, r)
					if math.Abs(v) <= prelim || !isExtremum(p.dog[oct], i, r, c) {
						continue
					}
					k, ok := interpolate(p, oct, i, r, c, threshold)
					if !ok || isEdge(p.dog[k.oct][k.intvl], k.r, k.c, edgeRatio) {
						continue
					}
					out = append(out, k)
				}
			}
		}
	}
	return out
}

func isExtremum(dog []*plane, i, r, c int) bool {
	v := dog[i].at(c, r)
	for di := -1; di <= 1; di++ {
		lvl := dog[i+di]
		for dr := -1; dr <= 1; dr++ {
			for dc := -1; dc <= 1; dc++ {
				n := lvl.at(c+dc, r+dr)
				if v > 0 && v < n || v <= 0 && v > n {
					return false
				}
			}
		}
	}
	return true
}

// derivative returns the first derivative of the DoG at (i, r, c) in x, y, s order.
func derivative(dog []*plane, i, r, c int) *mat.VecDense {
	dx := (dog[i].at(c+1, r) - dog[i].at(c-1, r)) / 2
	dy := (dog[i].at(c, r+1) - dog[i].at(c, r-1)) / 2
	ds := (dog[i+1].at(c, r) - dog[i-1].at(c, r)) / 2
	return mat.NewVecDense(3, []float64{dx, dy, ds})
}

func hessian(dog []*plane, i, r, c int) *mat.SymDense {
	v := dog[i].at(c, r)
	dxx := dog[i].at(c+1, r) + dog[i].at(c-1, r) - 2*v
	dyy := dog[i].at(c, r+1) + dog[i].at(c, r-1) - 2*v
	dss := dog[i+1].at(c, r) + dog[i-1].at(c, r) - 2*v
	dxy := (dog[i].at(c+1, r+1) - dog[i].at(c-1, r+1) -
		dog[i].at(c+1, r-1) + dog[i].at(c-1, r-1)) / 4
	dxs := (dog[i+1].at(c+1, r) - dog[i+1].at(c-1, r) -
		dog[i-1].at(c+1, r) + dog[i-1].at(c-1, r)) / 4
	dys := (dog[i+1].at(c, r+1) - dog[i+1].at(c, r-1) -
		dog[i-1].at(c, r+1) + dog[i-1].at(c, r-1)) / 4
	return mat.NewSymDense(3, []float64{
		dxx, dxy, dxs,
		dxy, dyy, dys,
		dxs, dys, dss,
	})
}

// step solves H x = -dD for the sub-pixel offset in x, y, s order.
func step(dog []*plane, i, r, c int) (*mat.VecDense, *mat.VecDense, bool) {
	dD := derivative(dog, i, r, c)
	var x mat.VecDense
	if err := x.SolveVec(hessian(dog, i, r, c), dD); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 0) {
			return nil, nil, false
		}
	}
	x.ScaleVec(-1, &x)
	for j := range 3 {
		if v := x.AtVec(j); math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, false
		}
	}
	return &x, dD, true
}

// interpolate refines an extremum to sub-pixel accuracy and rejects it
// when it drifts out of the octave or has low contrast.
func interpolate(p *pyramid, oct, i, r, c int, threshold float64) (keypoint, bool) {
	dog := p.dog[oct]
	w, h := dog[0].w, dog[0].h

	var (
		x, dD *mat.VecDense
		ok    bool
	)
	for n := 0; ; n++ {
		if n >= maxInterpSteps {
			return keypoint{}, false
		}
		if x, dD, ok = step(dog, i, r, c); !ok {
			return keypoint{}, false
		}
		xc, xr, xi := x.AtVec(0), x.AtVec(1), x.AtVec(2)
		if math.Abs(xi) < 0.5 && math.Abs(xr) < 0.5 && math.Abs(xc) < 0.5 {
			break
		}
		c += int(math.Round(xc))
		r += int(math.Round(xr))
		i += int(math.Round(xi))
		if i < 1 || i > p.intervals || c < border || r < border || c >= w-border || r >= h-border {
			return keypoint{}, false
		}
	}

	contrast := dog[i].at(c, r) + 0.5*mat.Dot(dD, x)
	if math.Abs(contrast) < threshold/float64(p.intervals) {
		return keypoint{}, false
	}
	return keypoint{
		oct:      oct,
		intvl:    i,
		r:        r,
		c:        c,
		xc:       x.AtVec(0),
		xr:       x.AtVec(1),
		xi:       x.AtVec(2),
		contrast: contrast,
	}, true
}

// isEdge rejects extrema whose principal curvature ratio exceeds ratio.
func isEdge(d *plane, r, c int, ratio float64) bool {
	v := d.at(c, r)
	dxx := d.at(c+1, r) + d.at(c-1, r) - 2*v
	dyy := d.at(c, r+1) + d.at(c, r-1) - 2*v
	dxy := (d.at(c+1, r+1) - d.at(c-1, r+1) - d.at(c+1, r-1) + d.at(c-1, r-1)) / 4
	tr := dxx + dyy
	det := dxx*dyy - dxy*dxy
	if det <= 0 {
		return true
	}
	return tr*tr/det >= (ratio+1)*(ratio+1)/ratio
}
