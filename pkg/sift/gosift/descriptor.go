package gosift

import "math"

// descriptor computes the d*d*n orientation histogram descriptor of the
// keypoint at (r, c) in img, relative to ori, with histogram cells
// magnification*scl pixels wide. Values are integers in [0, 255].
func descriptor(img *plane, r, c int, ori, scl, magnification float64) []float64 {
	const (
		d = descrWidth
		n = descrHistBins
	)
	var hist [d][d][n]float64

	cos, sin := math.Cos(ori), math.Sin(ori)
	binsPerRad := n / (2 * math.Pi)
	denom := d * d * 0.5
	width := magnification * scl
	radius := int(width*math.Sqrt2*(d+1)*0.5 + 0.5)

	for i := -radius; i <= radius; i++ {
		for j := -radius; j <= radius; j++ {
			cRot := (float64(j)*cos - float64(i)*sin) / width
			rRot := (float64(j)*sin + float64(i)*cos) / width
			rbin := rRot + d/2 - 0.5
			cbin := cRot + d/2 - 0.5
			if rbin <= -1 || rbin >= d || cbin <= -1 || cbin >= d {
				continue
			}
			mag, gori, ok := img.gradient(c+j, r+i)
			if !ok {
				continue
			}
			gori -= ori
			for gori < 0 {
				gori += 2 * math.Pi
			}
			for gori >= 2*math.Pi {
				gori -= 2 * math.Pi
			}
			w := math.Exp(-(cRot*cRot + rRot*rRot) / denom)
			interpEntry(&hist, rbin, cbin, gori*binsPerRad, w*mag)
		}
	}

	out := make([]float64, 0, d*d*n)
	for rb := range d {
		for cb := range d {
			out = append(out, hist[rb][cb][:]...)
		}
	}
	normalize(out)
	for i, v := range out {
		out[i] = min(v, descrMagThr)
	}
	normalize(out)
	for i, v := range out {
		out[i] = float64(min(255, int(intDescrFactor*v)))
	}
	return out
}

// interpEntry distributes v trilinearly over the neighbouring row, column
// and orientation bins.
func interpEntry(hist *[descrWidth][descrWidth][descrHistBins]float64, rbin, cbin, obin, v float64) {
	r0, c0, o0 := math.Floor(rbin), math.Floor(cbin), math.Floor(obin)
	dr, dc, do := rbin-r0, cbin-c0, obin-o0

	for r := range 2 {
		rb := int(r0) + r
		if rb < 0 || rb >= descrWidth {
			continue
		}
		vr := v * weight(r, dr)
		for c := range 2 {
			cb := int(c0) + c
			if cb < 0 || cb >= descrWidth {
				continue
			}
			vc := vr * weight(c, dc)
			for o := range 2 {
				ob := (int(o0) + o) % descrHistBins
				hist[rb][cb][ob] += vc * weight(o, do)
			}
		}
	}
}

func weight(side int, frac float64) float64 {
	if side == 0 {
		return 1 - frac
	}
	return frac
}

func normalize(v []float64) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] *= inv
	}
}
