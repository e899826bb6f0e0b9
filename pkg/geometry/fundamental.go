// Package geometry estimates the fundamental matrix relating two views from
// point correspondences.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

var (
	// ErrTooFewPoints is returned for fewer than eight correspondences.
	ErrTooFewPoints = errors.New("not enough point correspondences")
	// ErrDegenerate is returned when the points do not constrain a unique matrix.
	ErrDegenerate = errors.New("degenerate point configuration")
	// ErrNoConsensus is returned when RANSAC finds no model with enough inliers.
	ErrNoConsensus = errors.New("no consensus model")
)

// Method selects the estimator.
type Method int

const (
	// EightPoint fits all correspondences with the normalized 8-point algorithm.
	EightPoint Method = iota
	// RANSAC fits random 8-point samples and refits the largest inlier set.
	RANSAC
)

// Minimum correspondences for each method. RANSAC falls back to EightPoint
// below ransacMinPoints.
const (
	modelPoints     = 8
	ransacMinPoints = 15
)

// Config controls estimation.
type Config struct {
	Method Method `json:"method"`
	// Threshold is the maximum epipolar distance in pixels of an inlier.
	Threshold float64 `json:"threshold"`
	// Confidence is the desired probability that RANSAC draws an outlier-free sample.
	Confidence float64 `json:"confidence"`
	MaxIters   int     `json:"max_iters"`
	// Seed makes sampling reproducible. Zero seeds randomly.
	Seed uint64 `json:"seed"`
}

// DefaultConfig returns RANSAC with a 3 pixel threshold and 0.99 confidence.
func DefaultConfig() Config {
	return Config{Method: RANSAC, Threshold: 3, Confidence: 0.99, MaxIters: 2000}
}

// Result is an estimated fundamental matrix with x2' F x1 = 0.
type Result struct {
	F *mat.Dense
	// Inliers holds the indexes of correspondences consistent with F.
	Inliers    *roaring.Bitmap
	Iterations int
}

// Fundamental estimates F from corresponding points p1[i] <-> p2[i].
func Fundamental(p1, p2 []r2.Vec, cfg Config) (*Result, error) {
	if len(p1) != len(p2) {
		return nil, fmt.Errorf("geometry: %d points vs %d", len(p1), len(p2))
	}
	if len(p1) < modelPoints {
		return nil, fmt.Errorf("%w: %d < %d", ErrTooFewPoints, len(p1), modelPoints)
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Confidence <= 0 || cfg.Confidence >= 1 {
		cfg.Confidence = 0.99
	}
	if cfg.MaxIters <= 0 {
		cfg.MaxIters = 2000
	}

	if cfg.Method == EightPoint || len(p1) < ransacMinPoints {
		f, err := EightPointF(p1, p2)
		if err != nil {
			return nil, err
		}
		return &Result{F: f, Inliers: inliers(f, p1, p2, cfg.Threshold)}, nil
	}
	return ransac(p1, p2, cfg)
}

// EightPointF fits F to all correspondences with Hartley normalization and
// enforces rank 2. F is scaled so that F[2][2] is 1 when it is not near zero.
func EightPointF(p1, p2 []r2.Vec) (*mat.Dense, error) {
	if len(p1) < modelPoints || len(p1) != len(p2) {
		return nil, fmt.Errorf("%w: %d", ErrTooFewPoints, len(p1))
	}
	c1, s1, ok1 := normalization(p1)
	c2, s2, ok2 := normalization(p2)
	if !ok1 || !ok2 {
		return nil, ErrDegenerate
	}

	// Accumulate A'A for the rows of (x2, 1)' F (x1, 1) = 0.
	ata := mat.NewSymDense(9, nil)
	for i := range p1 {
		x0, y0 := (p1[i].X-c1.X)*s1, (p1[i].Y-c1.Y)*s1
		x1, y1 := (p2[i].X-c2.X)*s2, (p2[i].Y-c2.Y)*s2
		r := [9]float64{x1 * x0, x1 * y0, x1, y1 * x0, y1 * y0, y1, x0, y0, 1}
		for j := range 9 {
			for k := j; k < 9; k++ {
				ata.SetSym(j, k, ata.At(j, k)+r[j]*r[k])
			}
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(ata, true) {
		return nil, ErrDegenerate
	}
	vals := eig.Values(nil)
	// Values ascend; the null space must be one-dimensional.
	if math.Abs(vals[1]) < 1e-12*math.Max(math.Abs(vals[8]), 1) {
		return nil, ErrDegenerate
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	f0 := mat.NewDense(3, 3, nil)
	for k := range 9 {
		f0.Set(k/3, k%3, vecs.At(k, 0))
	}

	var svd mat.SVD
	if !svd.Factorize(f0, mat.SVDFull) {
		return nil, ErrDegenerate
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sv := svd.Values(nil)
	sv[2] = 0
	var f mat.Dense
	f.Product(&u, mat.NewDiagDense(3, sv), v.T())

	t1 := normalizer(c1, s1)
	t2 := normalizer(c2, s2)
	var out mat.Dense
	out.Product(t2.T(), &f, t1)
	if d := out.At(2, 2); math.Abs(d) > 1.1920929e-07 {
		out.Scale(1/d, &out)
	}
	return &out, nil
}

// normalization returns the centroid of pts and the scale that makes the
// mean distance from it sqrt(2).
func normalization(pts []r2.Vec) (r2.Vec, float64, bool) {
	var c r2.Vec
	for _, p := range pts {
		c = r2.Add(c, p)
	}
	c = r2.Scale(1/float64(len(pts)), c)
	var mean float64
	for _, p := range pts {
		mean += r2.Norm(r2.Sub(p, c))
	}
	mean /= float64(len(pts))
	if mean < 1.1920929e-07 {
		return c, 0, false
	}
	return c, math.Sqrt2 / mean, true
}

func normalizer(c r2.Vec, s float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		s, 0, -s * c.X,
		0, s, -s * c.Y,
		0, 0, 1,
	})
}

// EpipolarError is max(d(x2, F x1)^2, d(x1, F' x2)^2), the larger squared
// distance of either point from the epipolar line of the other.
func EpipolarError(f mat.Matrix, x1, x2 r2.Vec) float64 {
	a := f.At(0, 0)*x1.X + f.At(0, 1)*x1.Y + f.At(0, 2)
	b := f.At(1, 0)*x1.X + f.At(1, 1)*x1.Y + f.At(1, 2)
	c := f.At(2, 0)*x1.X + f.At(2, 1)*x1.Y + f.At(2, 2)
	d2 := x2.X*a + x2.Y*b + c
	e2 := d2 * d2 / (a*a + b*b)

	a = f.At(0, 0)*x2.X + f.At(1, 0)*x2.Y + f.At(2, 0)
	b = f.At(0, 1)*x2.X + f.At(1, 1)*x2.Y + f.At(2, 1)
	c = f.At(0, 2)*x2.X + f.At(1, 2)*x2.Y + f.At(2, 2)
	d1 := x1.X*a + x1.Y*b + c
	e1 := d1 * d1 / (a*a + b*b)

	return math.Max(e1, e2)
}

func inliers(f mat.Matrix, p1, p2 []r2.Vec, threshold float64) *roaring.Bitmap {
	bm := roaring.New()
	thr := threshold * threshold
	for i := range p1 {
		if EpipolarError(f, p1[i], p2[i]) <= thr {
			bm.Add(uint32(i)) //nolint:gosec // indexes fit in uint32
		}
	}
	return bm
}

// updateIters returns the iterations needed to draw an outlier-free sample
// with probability conf when a fraction outliers of the points are outliers.
func updateIters(conf, outliers float64, maxIters int) int {
	num := math.Log(math.Max(1-conf, math.SmallestNonzeroFloat64))
	denom := 1 - math.Pow(1-outliers, modelPoints)
	if denom < math.SmallestNonzeroFloat64 {
		return 0
	}
	denom = math.Log(denom)
	if denom >= 0 || -num >= float64(maxIters)*(-denom) {
		return maxIters
	}
	return int(math.Round(num / denom))
}

func ransac(p1, p2 []r2.Vec, cfg Config) (*Result, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	var (
		best  *roaring.Bitmap
		iters = cfg.MaxIters
		s1    = make([]r2.Vec, modelPoints)
		s2    = make([]r2.Vec, modelPoints)
		n     = len(p1)
		done  int
	)
	for done = 0; done < iters; done++ {
		for k, idx := range sample(rng, n, modelPoints) {
			s1[k], s2[k] = p1[idx], p2[idx]
		}
		f, err := EightPointF(s1, s2)
		if err != nil {
			continue
		}
		in := inliers(f, p1, p2, cfg.Threshold)
		if best == nil || in.GetCardinality() > best.GetCardinality() {
			best = in
			outliers := 1 - float64(in.GetCardinality())/float64(n)
			iters = min(iters, updateIters(cfg.Confidence, outliers, cfg.MaxIters))
		}
	}
	if best == nil || best.GetCardinality() < modelPoints {
		return nil, ErrNoConsensus
	}

	q1 := make([]r2.Vec, 0, best.GetCardinality())
	q2 := make([]r2.Vec, 0, best.GetCardinality())
	it := best.Iterator()
	for it.HasNext() {
		i := it.Next()
		q1 = append(q1, p1[i])
		q2 = append(q2, p2[i])
	}
	f, err := EightPointF(q1, q2)
	if err != nil {
		return nil, err
	}
	return &Result{F: f, Inliers: best, Iterations: done}, nil
}

// sample draws k distinct indexes below n.
func sample(rng *rand.Rand, n, k int) []int {
	seen := roaring.New()
	out := make([]int, 0, k)
	for len(out) < k {
		i := rng.IntN(n)
		if seen.CheckedAdd(uint32(i)) { //nolint:gosec // indexes fit in uint32
			out = append(out, i)
		}
	}
	return out
}
