package gosift

import "math"

// orientationHist accumulates Gaussian-weighted gradient orientations
// around (r, c) into bins buckets.
func orientationHist(img *plane, r, c, bins, radius int, sigma float64) []float64 {
	hist := make([]float64, bins)
	denom := 2 * sigma * sigma
	for i := -radius; i <= radius; i++ {
		for j := -radius; j <= radius; j++ {
			mag, ori, ok := img.gradient(c+j, r+i)
			if !ok {
				continue
			}
			w := math.Exp(-float64(i*i+j*j) / denom)
			bin := int(math.Round(float64(bins) * (ori + math.Pi) / (2 * math.Pi)))
			if bin >= bins {
				bin = 0
			}
			hist[bin] += w * mag
		}
	}
	return hist
}

// smoothHist applies a circular [0.25 0.5 0.25] filter in place.
func smoothHist(hist []float64) {
	n := len(hist)
	prev, first := hist[n-1], hist[0]
	for i := range n {
		tmp := hist[i]
		next := first
		if i+1 < n {
			next = hist[i+1]
		}
		hist[i] = 0.25*prev + 0.5*hist[i] + 0.25*next
		prev = tmp
	}
}

// peakOrientations returns the orientations of every local histogram peak
// at or above ratio times the dominant magnitude, in radians in [-pi, pi).
func peakOrientations(hist []float64, ratio float64) []float64 {
	n := len(hist)
	var dominant float64
	for _, v := range hist {
		dominant = max(dominant, v)
	}
	if dominant == 0 {
		return nil
	}
	thr := dominant * ratio

	var out []float64
	for i := range n {
		l := hist[(i+n-1)%n]
		r := hist[(i+1)%n]
		c := hist[i]
		if c <= l || c <= r || c < thr {
			continue
		}
		bin := float64(i) + 0.5*(l-r)/(l-2*c+r)
		switch {
		case bin < 0:
			bin += float64(n)
		case bin >= float64(n):
			bin -= float64(n)
		}
		out = append(out, 2*math.Pi*bin/float64(n)-math.Pi)
	}
	return out
}

func (b *Backend) orientations(p *pyramid, k keypoint, sclOctv float64) []float64 {
	img := p.gauss[k.oct][k.intvl]
	radius := int(math.Round(oriRadius * sclOctv))
	hist := orientationHist(img, k.r, k.c, oriHistBins, radius, oriSigFactor*sclOctv)
	for range oriSmoothPasses {
		smoothHist(hist)
	}
	return peakOrientations(hist, oriPeakRatio)
}
