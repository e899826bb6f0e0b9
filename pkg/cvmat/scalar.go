package cvmat

import (
	"fmt"
	"math"
)

// ScalarMatrix is a rectangular integer matrix addressed as (x, y), that is
// column first.
type ScalarMatrix struct {
	rows [][]int
	cols int
}

// NewScalarMatrix validates that rows is non-empty and rectangular. The
// rows are copied.
func NewScalarMatrix(rows [][]int) (*ScalarMatrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: empty scalar matrix", ErrShape)
	}
	cols := len(rows[0])
	data := make([][]int, len(rows))
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(r), cols)
		}
		data[i] = append([]int(nil), r...)
	}
	return &ScalarMatrix{rows: data, cols: cols}, nil
}

// Dims returns the number of rows and columns.
func (s *ScalarMatrix) Dims() (int, int) { return len(s.rows), s.cols }

func (s *ScalarMatrix) check(x, y int) error {
	if x < 0 || x >= s.cols || y < 0 || y >= len(s.rows) {
		return &IndexError{Row: y, Col: x, Rows: len(s.rows), Cols: s.cols}
	}
	return nil
}

// At returns the element in column x of row y.
func (s *ScalarMatrix) At(x, y int) (int, error) {
	if err := s.check(x, y); err != nil {
		return 0, err
	}
	return s.rows[y][x], nil
}

// Set stores v in column x of row y.
func (s *ScalarMatrix) Set(x, y, v int) error {
	if err := s.check(x, y); err != nil {
		return err
	}
	s.rows[y][x] = v
	return nil
}

// Rows returns a copy of the elements.
func (s *ScalarMatrix) Rows() [][]int {
	out := make([][]int, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]int(nil), r...)
	}
	return out
}

// ToMat converts s to a Mat of the given type.
func (s *ScalarMatrix) ToMat(typ Type) *Mat {
	return Build(len(s.rows), s.cols, typ, func(i, j int) float64 { return float64(s.rows[i][j]) })
}

// Equal reports whether s and b have the same shape and elements.
func (s *ScalarMatrix) Equal(b *ScalarMatrix) bool {
	if b == nil || len(s.rows) != len(b.rows) || s.cols != b.cols {
		return false
	}
	for i, r := range s.rows {
		for j, v := range r {
			if b.rows[i][j] != v {
				return false
			}
		}
	}
	return true
}

// L2Distance treats both matrices as flat vectors.
func (s *ScalarMatrix) L2Distance(b *ScalarMatrix) (float64, error) {
	if len(s.rows)*s.cols != len(b.rows)*b.cols {
		return 0, fmt.Errorf("%w: %d vs %d elements", ErrShape, len(s.rows)*s.cols, len(b.rows)*b.cols)
	}
	var (
		sum  float64
		bi   int
		flat = b.flat()
	)
	for _, r := range s.rows {
		for _, v := range r {
			d := float64(v - flat[bi])
			sum += d * d
			bi++
		}
	}
	return math.Sqrt(sum), nil
}

func (s *ScalarMatrix) flat() []int {
	out := make([]int, 0, len(s.rows)*s.cols)
	for _, r := range s.rows {
		out = append(out, r...)
	}
	return out
}
