// Package cvmat is a small typed matrix with OpenCV element semantics
// (saturating 8-bit, single and double precision) that interoperates with
// gonum.
package cvmat

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Type is the element type of a Mat.
type Type int

const (
	CV8U Type = iota
	CV32F
	CV64F
)

func (t Type) String() string {
	switch t {
	case CV8U:
		return "CV_8U"
	case CV32F:
		return "CV_32F"
	case CV64F:
		return "CV_64F"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// coerce converts v to the value a cell of type t would hold.
func (t Type) coerce(v float64) float64 {
	switch t {
	case CV8U:
		if math.IsNaN(v) {
			return 0
		}
		return math.Min(math.Max(math.RoundToEven(v), 0), 255)
	case CV32F:
		return float64(float32(v))
	default:
		return v
	}
}

var (
	// ErrShape is returned for ragged or mismatched dimensions.
	ErrShape = errors.New("matrix shape mismatch")
	// ErrNotVector is returned by ToVector for matrices with more than one row and column.
	ErrNotVector = errors.New("matrix is not a vector")
	// ErrIndex is matched by *IndexError.
	ErrIndex = errors.New("matrix index out of range")
)

// IndexError reports an element access outside the matrix.
type IndexError struct {
	Row, Col   int
	Rows, Cols int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("cvmat: index (%d, %d) out of range for %dx%d matrix", e.Row, e.Col, e.Rows, e.Cols)
}

func (e *IndexError) Is(target error) bool { return target == ErrIndex }

// Mat is a dense row-major matrix. Stored values are always representable
// in the matrix type.
type Mat struct {
	rows, cols int
	typ        Type
	data       []float64
}

var _ mat.Matrix = (*Mat)(nil)

// New returns a zeroed rows x cols matrix.
func New(rows, cols int, typ Type) *Mat {
	if rows < 0 || cols < 0 {
		panic(ErrShape)
	}
	return &Mat{rows: rows, cols: cols, typ: typ, data: make([]float64, rows*cols)}
}

// Build returns a matrix whose (i, j) element is fn(i, j).
func Build(rows, cols int, typ Type, fn func(i, j int) float64) *Mat {
	m := New(rows, cols, typ)
	for i := range rows {
		for j := range cols {
			m.Set(i, j, fn(i, j))
		}
	}
	return m
}

// Eye returns the n x n identity.
func Eye(n int, typ Type) *Mat {
	m := New(n, n, typ)
	for i := range n {
		m.data[i*n+i] = 1
	}
	return m
}

// FromRows builds a matrix from rectangular nested rows.
func FromRows(rows [][]float64, typ Type) (*Mat, error) {
	if len(rows) == 0 {
		return New(0, 0, typ), nil
	}
	cols := len(rows[0])
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShape, i, len(r), cols)
		}
	}
	return Build(len(rows), cols, typ, func(i, j int) float64 { return rows[i][j] }), nil
}

// FromDense copies any gonum matrix.
func FromDense(a mat.Matrix, typ Type) *Mat {
	r, c := a.Dims()
	return Build(r, c, typ, a.At)
}

// Dims returns the number of rows and columns.
func (m *Mat) Dims() (int, int) { return m.rows, m.cols }

// Rows returns the number of rows.
func (m *Mat) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Mat) Cols() int { return m.cols }

// Type returns the element type.
func (m *Mat) Type() Type { return m.typ }

// T returns an implicit transpose.
func (m *Mat) T() mat.Matrix { return mat.Transpose{Matrix: m} }

func (m *Mat) index(i, j int) (int, error) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		return 0, &IndexError{Row: i, Col: j, Rows: m.rows, Cols: m.cols}
	}
	return i*m.cols + j, nil
}

// At returns the (i, j) element. It panics with *IndexError out of range.
func (m *Mat) At(i, j int) float64 {
	v, err := m.Lookup(i, j)
	if err != nil {
		panic(err)
	}
	return v
}

// Set stores v at (i, j), converted to the matrix type. It panics with
// *IndexError out of range.
func (m *Mat) Set(i, j int, v float64) {
	if err := m.Store(i, j, v); err != nil {
		panic(err)
	}
}

// Lookup is At returning an error instead of panicking.
func (m *Mat) Lookup(i, j int) (float64, error) {
	k, err := m.index(i, j)
	if err != nil {
		return 0, err
	}
	return m.data[k], nil
}

// Store is Set returning an error instead of panicking.
func (m *Mat) Store(i, j int, v float64) error {
	k, err := m.index(i, j)
	if err != nil {
		return err
	}
	m.data[k] = m.typ.coerce(v)
	return nil
}

// Clone returns a deep copy.
func (m *Mat) Clone() *Mat {
	c := m.Twin()
	copy(c.data, m.data)
	return c
}

// Twin returns a zeroed matrix of the same shape and type.
func (m *Mat) Twin() *Mat { return New(m.rows, m.cols, m.typ) }

// Transpose returns a new transposed matrix.
func (m *Mat) Transpose() *Mat {
	t := New(m.cols, m.rows, m.typ)
	for i := range m.rows {
		for j := range m.cols {
			t.data[j*m.rows+i] = m.data[i*m.cols+j]
		}
	}
	return t
}

// Zero sets every element to zero.
func (m *Mat) Zero() { clear(m.data) }

// CountNonEqual returns how many elements of m and b differ. The matrices
// must have the same dimensions.
func (m *Mat) CountNonEqual(b *Mat) (int, error) {
	if b == nil {
		return 0, fmt.Errorf("%w: nil matrix", ErrShape)
	}
	if m.rows != b.rows || m.cols != b.cols {
		return 0, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShape, m.rows, m.cols, b.rows, b.cols)
	}
	var n int
	for k, v := range m.data {
		if v != b.data[k] {
			n++
		}
	}
	return n, nil
}

// Equal reports whether m and b have the same dimensions, type and elements.
// A nil b is never equal.
func (m *Mat) Equal(b *Mat) bool {
	if b == nil || m.rows != b.rows || m.cols != b.cols || m.typ != b.typ {
		return false
	}
	n, err := m.CountNonEqual(b)
	return err == nil && n == 0
}

// NormType selects a norm.
type NormType int

const (
	NormInf NormType = iota + 1
	NormL1
	NormL2
)

// Norm returns the norm of m, or of m - b when b is non-nil.
func (m *Mat) Norm(b *Mat, typ NormType) (float64, error) {
	diff := m.data
	if b != nil {
		if m.rows != b.rows || m.cols != b.cols {
			return 0, fmt.Errorf("%w: %dx%d vs %dx%d", ErrShape, m.rows, m.cols, b.rows, b.cols)
		}
		diff = make([]float64, len(m.data))
		for k, v := range m.data {
			diff[k] = v - b.data[k]
		}
	}
	switch typ {
	case NormInf:
		return floatsNorm(diff, math.Inf(1)), nil
	case NormL1:
		return floatsNorm(diff, 1), nil
	case NormL2:
		return floatsNorm(diff, 2), nil
	default:
		return 0, fmt.Errorf("cvmat: unknown norm %d", typ)
	}
}

func floatsNorm(v []float64, l float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, l)
}

// L2Distance is the Euclidean distance between m and b.
func (m *Mat) L2Distance(b *Mat) (float64, error) { return m.Norm(b, NormL2) }

// ToDense copies m into a gonum dense matrix.
func (m *Mat) ToDense() *mat.Dense {
	if m.rows == 0 || m.cols == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(m.rows, m.cols, append([]float64(nil), m.data...))
}

// ToVector copies a single row or column matrix into a vector.
func (m *Mat) ToVector() (*mat.VecDense, error) {
	if m.rows != 1 && m.cols != 1 || len(m.data) == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrNotVector, m.rows, m.cols)
	}
	return mat.NewVecDense(len(m.data), append([]float64(nil), m.data...)), nil
}

// ToSlice returns the elements as nested rows.
func (m *Mat) ToSlice() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range out {
		out[i] = append([]float64(nil), m.data[i*m.cols:(i+1)*m.cols]...)
	}
	return out
}

// ToScalarMatrix returns the elements rounded to integers.
func (m *Mat) ToScalarMatrix() *ScalarMatrix {
	rows := make([][]int, m.rows)
	for i := range rows {
		rows[i] = make([]int, m.cols)
		for j := range rows[i] {
			rows[i][j] = int(math.Round(m.data[i*m.cols+j]))
		}
	}
	return &ScalarMatrix{rows: rows, cols: m.cols}
}

// String formats m with gonum's matrix printer.
func (m *Mat) String() string {
	if m.rows == 0 || m.cols == 0 {
		return fmt.Sprintf("%s[]", m.typ)
	}
	return fmt.Sprintf("%s\n%v", m.typ, mat.Formatted(m, mat.Squeeze()))
}
