package geometry

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// twoViews projects random 3D points into a reference camera and a second
// camera rotated about y and translated along x.
func twoViews(n int, seed uint64) ([]r2.Vec, []r2.Vec) {
	rng := rand.New(rand.NewPCG(seed, seed))
	const (
		f      = 500.0
		cx, cy = 320.0, 240.0
		theta  = 0.1
	)
	project := func(x, y, z float64) r2.Vec {
		return r2.Vec{X: f*x/z + cx, Y: f*y/z + cy}
	}
	p1 := make([]r2.Vec, n)
	p2 := make([]r2.Vec, n)
	for i := range n {
		x := rng.Float64()*4 - 2
		y := rng.Float64()*3 - 1.5
		z := rng.Float64()*4 + 4
		p1[i] = project(x, y, z)

		xr := math.Cos(theta)*x + math.Sin(theta)*z - 1
		yr := y + 0.1
		zr := -math.Sin(theta)*x + math.Cos(theta)*z
		p2[i] = project(xr, yr, zr)
	}
	return p1, p2
}

func TestEightPointExact(t *testing.T) {
	p1, p2 := twoViews(20, 1)
	f, err := EightPointF(p1, p2)
	require.NoError(t, err)

	assert.InDelta(t, 1, f.At(2, 2), 1e-9)
	assert.InDelta(t, 0, mat.Det(f), 1e-9*mat.Norm(f, 2))
	for i := range p1 {
		assert.Less(t, EpipolarError(f, p1[i], p2[i]), 1e-6)
	}
}

func TestFundamentalRANSAC(t *testing.T) {
	p1, p2 := twoViews(60, 2)
	rng := rand.New(rand.NewPCG(9, 9))
	const outliers = 15
	for range outliers {
		p1 = append(p1, r2.Vec{X: rng.Float64() * 640, Y: rng.Float64() * 480})
		p2 = append(p2, r2.Vec{X: rng.Float64() * 640, Y: rng.Float64() * 480})
	}

	cfg := DefaultConfig()
	cfg.Threshold = 1
	cfg.Seed = 42
	res, err := Fundamental(p1, p2, cfg)
	require.NoError(t, err)

	for i := range 60 {
		assert.True(t, res.Inliers.Contains(uint32(i)), "inlier %d", i)
	}
	assert.LessOrEqual(t, int(res.Inliers.GetCardinality()), 60+3)
	assert.Positive(t, res.Iterations)
	assert.LessOrEqual(t, res.Iterations, cfg.MaxIters)
}

func TestFundamentalEightPointMethod(t *testing.T) {
	p1, p2 := twoViews(10, 3)
	res, err := Fundamental(p1, p2, Config{Method: EightPoint})
	require.NoError(t, err)
	assert.EqualValues(t, 10, res.Inliers.GetCardinality())
	assert.Zero(t, res.Iterations)
}

func TestFundamentalErrors(t *testing.T) {
	p1, p2 := twoViews(7, 4)
	_, err := Fundamental(p1, p2, DefaultConfig())
	assert.ErrorIs(t, err, ErrTooFewPoints)

	_, err = Fundamental(p1, p2[:6], DefaultConfig())
	assert.Error(t, err)

	same := make([]r2.Vec, 9)
	_, err = EightPointF(same, same)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestUpdateIters(t *testing.T) {
	assert.Equal(t, 2000, updateIters(0.99, 0.9, 2000))
	assert.Equal(t, 0, updateIters(0.99, 0, 2000))
	n := updateIters(0.99, 0.2, 2000)
	assert.Greater(t, n, 10)
	assert.Less(t, n, 50)
}

func TestEpipolarErrorSymmetric(t *testing.T) {
	// Pure horizontal translation: epipolar lines are image rows.
	f := mat.NewDense(3, 3, []float64{0, 0, 0, 0, 0, -1, 0, 1, 0})
	assert.InDelta(t, 0, EpipolarError(f, r2.Vec{X: 3, Y: 5}, r2.Vec{X: 40, Y: 5}), 1e-12)
	assert.InDelta(t, 4, EpipolarError(f, r2.Vec{X: 3, Y: 5}, r2.Vec{X: 40, Y: 7}), 1e-12)
}
