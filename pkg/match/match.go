// Package match pairs SIFT descriptors between two keypoint collections.
package match

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/menta2k/siftkit/pkg/sift"
)

var (
	// ErrDimension is returned when descriptors of different lengths are compared.
	ErrDimension = errors.New("descriptor dimensions differ")
	// ErrUndescribed is returned when a collection holds keypoints without descriptors.
	ErrUndescribed = errors.New("keypoint has no descriptor")
)

// Config controls which nearest-neighbour pairs are accepted.
type Config struct {
	// Ratio is Lowe's ratio test: the best distance must be below Ratio
	// times the second best. Zero disables the test.
	Ratio float64 `json:"ratio"`
	// CrossCheck keeps a pair only when each side is the other's nearest neighbour.
	CrossCheck bool `json:"cross_check"`
	// MaxDistance rejects pairs farther apart. Zero means unlimited.
	MaxDistance float64 `json:"max_distance"`
	// Unique assigns every train descriptor to at most one query, closest first.
	Unique bool `json:"unique"`
}

// DefaultConfig returns the ratio test at 0.8 with unique assignment.
func DefaultConfig() Config {
	return Config{Ratio: 0.8, Unique: true}
}

// Match pairs query descriptor Query with train descriptor Train.
type Match struct {
	Query    int     `json:"query"`
	Train    int     `json:"train"`
	Distance float64 `json:"distance"`
}

type neighbours struct {
	best, second   int
	dBest, dSecond float64
}

func nearest(q []float64, set [][]float64) neighbours {
	n := neighbours{best: -1, second: -1, dBest: math.Inf(1), dSecond: math.Inf(1)}
	for j, t := range set {
		d := floats.Distance(q, t, 2)
		switch {
		case d < n.dBest:
			n.second, n.dSecond = n.best, n.dBest
			n.best, n.dBest = j, d
		case d < n.dSecond:
			n.second, n.dSecond = j, d
		}
	}
	return n
}

func checkDims(query, train [][]float64) error {
	var dim = -1
	for _, set := range [][][]float64{query, train} {
		for _, d := range set {
			if dim < 0 {
				dim = len(d)
			}
			if len(d) != dim {
				return fmt.Errorf("%w: %d vs %d", ErrDimension, len(d), dim)
			}
		}
	}
	return nil
}

// Descriptors matches every query descriptor to its nearest train
// descriptor under cfg. Matches are ordered by query index.
func Descriptors(query, train [][]float64, cfg Config) ([]Match, error) {
	if err := checkDims(query, train); err != nil {
		return nil, err
	}
	if len(query) == 0 || len(train) == 0 {
		return nil, nil
	}

	var reverse []int
	if cfg.CrossCheck {
		reverse = make([]int, len(train))
		for j, t := range train {
			reverse[j] = nearest(t, query).best
		}
	}

	var out []Match
	for i, q := range query {
		n := nearest(q, train)
		if cfg.Ratio > 0 && n.second >= 0 && n.dBest >= cfg.Ratio*n.dSecond {
			continue
		}
		if cfg.MaxDistance > 0 && n.dBest > cfg.MaxDistance {
			continue
		}
		if reverse != nil && reverse[n.best] != i {
			continue
		}
		out = append(out, Match{Query: i, Train: n.best, Distance: n.dBest})
	}

	if cfg.Unique {
		out = unique(out)
	}
	return out, nil
}

// unique keeps the closest match for every train index.
func unique(ms []Match) []Match {
	byDist := slices.Clone(ms)
	slices.SortStableFunc(byDist, func(a, b Match) int { return cmp.Compare(a.Distance, b.Distance) })

	used := roaring.New()
	kept := roaring.New()
	for _, m := range byDist {
		if used.CheckedAdd(uint32(m.Train)) { //nolint:gosec // indexes fit in uint32
			kept.Add(uint32(m.Query)) //nolint:gosec // indexes fit in uint32
		}
	}
	return slices.DeleteFunc(ms, func(m Match) bool { return !kept.Contains(uint32(m.Query)) }) //nolint:gosec // indexes fit in uint32
}

// Descs returns the descriptor of every record in r.
func Descs(r *sift.Results) ([][]float64, error) {
	out := make([][]float64, 0, r.Len())
	for i, f := range r.All() {
		if f.DescriptorLength == 0 {
			return nil, fmt.Errorf("%w: record %d", ErrUndescribed, i)
		}
		out = append(out, slices.Clone(f.Desc()))
	}
	if len(out) != r.Len() {
		if _, err := r.At(len(out)); err != nil {
			return nil, err
		}
		return nil, sift.ErrBusy
	}
	return out, nil
}

// Results matches the descriptors of two described collections.
func Results(query, train *sift.Results, cfg Config) ([]Match, error) {
	q, err := Descs(query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	t, err := Descs(train)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	return Descriptors(q, t, cfg)
}

// Points returns the keypoint locations of each match, query side first.
func Points(query, train sift.Collection, ms []Match) ([]r2.Vec, []r2.Vec) {
	a := make([]r2.Vec, len(ms))
	b := make([]r2.Vec, len(ms))
	for i, m := range ms {
		a[i].X, a[i].Y = query.Location(m.Query)
		b[i].X, b[i].Y = train.Location(m.Train)
	}
	return a, b
}
