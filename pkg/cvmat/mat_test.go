package cvmat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestElementCoercion(t *testing.T) {
	m := New(1, 4, CV8U)
	m.Set(0, 0, -3)
	m.Set(0, 1, 300)
	m.Set(0, 2, 2.5)
	m.Set(0, 3, 7.6)
	assert.Equal(t, [][]float64{{0, 255, 2, 8}}, m.ToSlice())

	f := New(1, 1, CV32F)
	f.Set(0, 0, 0.1)
	assert.Equal(t, float64(float32(0.1)), f.At(0, 0))

	d := New(1, 1, CV64F)
	d.Set(0, 0, 0.1)
	assert.Equal(t, 0.1, d.At(0, 0))
}

func TestBoundsChecking(t *testing.T) {
	m := New(2, 3, CV32F)

	_, err := m.Lookup(2, 0)
	require.ErrorIs(t, err, ErrIndex)
	var ie *IndexError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, IndexError{Row: 2, Col: 0, Rows: 2, Cols: 3}, *ie)

	assert.ErrorIs(t, m.Store(0, -1, 1), ErrIndex)
	assert.Panics(t, func() { m.At(0, 3) })
	assert.Panics(t, func() { m.Set(-1, 0, 1) })
}

func TestEqual(t *testing.T) {
	a := Build(2, 2, CV32F, func(i, j int) float64 { return float64(i*2 + j) })
	b := a.Clone()
	assert.True(t, a.Equal(b))

	b.Set(1, 1, 9)
	assert.False(t, a.Equal(b))
	n, err := a.CountNonEqual(b)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.False(t, a.Equal(New(2, 3, CV32F)), "dimensions differ")
	assert.False(t, New(3, 2, CV32F).Equal(New(2, 3, CV32F)), "transposed dimensions differ")
	assert.False(t, New(2, 2, CV8U).Equal(New(2, 2, CV32F)), "types differ")
	assert.True(t, New(2, 2, CV8U).Equal(New(2, 2, CV8U)))

	_, err = a.CountNonEqual(New(1, 1, CV32F))
	assert.ErrorIs(t, err, ErrShape)

	assert.False(t, a.Equal(nil))
	_, err = a.CountNonEqual(nil)
	assert.ErrorIs(t, err, ErrShape)
}

func TestEyeTransposeTwin(t *testing.T) {
	e := Eye(3, CV64F)
	assert.True(t, mat.Equal(e, mat.NewDiagDense(3, []float64{1, 1, 1})))

	m, err := FromRows([][]float64{{1, 2, 3}, {4, 5, 6}}, CV32F)
	require.NoError(t, err)
	tr := m.Transpose()
	r, c := tr.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 6.0, tr.At(2, 1))
	assert.True(t, mat.Equal(tr, m.T()))

	tw := m.Twin()
	assert.Equal(t, CV32F, tw.Type())
	assert.Equal(t, [][]float64{{0, 0, 0}, {0, 0, 0}}, tw.ToSlice())

	m.Zero()
	assert.True(t, m.Equal(tw))
}

func TestFromRowsRagged(t *testing.T) {
	_, err := FromRows([][]float64{{1, 2}, {3}}, CV32F)
	assert.ErrorIs(t, err, ErrShape)
}

func TestDenseAndVector(t *testing.T) {
	d := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	m := FromDense(d, CV64F)
	assert.True(t, mat.Equal(d, m.ToDense()))

	row, err := FromRows([][]float64{{1, 2, 3}}, CV32F)
	require.NoError(t, err)
	v, err := row.ToVector()
	require.NoError(t, err)
	assert.Equal(t, 3, v.Len())
	assert.Equal(t, 3.0, v.AtVec(2))

	v, err = row.Transpose().ToVector()
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.AtVec(1))

	_, err = m.ToVector()
	assert.ErrorIs(t, err, ErrNotVector)
}

func TestNorms(t *testing.T) {
	a, err := FromRows([][]float64{{3, 0}, {0, -4}}, CV64F)
	require.NoError(t, err)
	b := a.Twin()

	l2, err := a.L2Distance(b)
	require.NoError(t, err)
	assert.InDelta(t, 5, l2, 1e-12)

	l1, err := a.Norm(nil, NormL1)
	require.NoError(t, err)
	assert.InDelta(t, 7, l1, 1e-12)

	inf, err := a.Norm(b, NormInf)
	require.NoError(t, err)
	assert.InDelta(t, 4, inf, 1e-12)

	_, err = a.Norm(New(1, 1, CV64F), NormL2)
	assert.ErrorIs(t, err, ErrShape)
}

func TestString(t *testing.T) {
	s := Eye(2, CV8U).String()
	assert.Contains(t, s, "CV_8U")
	assert.Contains(t, s, "1")
}

func TestScalarMatrix(t *testing.T) {
	s, err := NewScalarMatrix([][]int{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)

	v, err := s.At(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	require.NoError(t, s.Set(0, 1, 40))
	assert.Equal(t, [][]int{{1, 2, 3}, {40, 5, 6}}, s.Rows())

	_, err = s.At(3, 0)
	assert.ErrorIs(t, err, ErrIndex)
	assert.ErrorIs(t, s.Set(0, 2, 1), ErrIndex)

	_, err = NewScalarMatrix([][]int{{1}, {2, 3}})
	assert.ErrorIs(t, err, ErrShape)
	_, err = NewScalarMatrix(nil)
	assert.ErrorIs(t, err, ErrShape)

	assert.False(t, s.Equal(nil))
	assert.True(t, s.Equal(s))
}

func TestScalarMatrixConversions(t *testing.T) {
	s, err := NewScalarMatrix([][]int{{0, 3}, {4, 0}})
	require.NoError(t, err)

	m := s.ToMat(CV32F)
	assert.Equal(t, 4.0, m.At(1, 0))
	assert.True(t, s.Equal(m.ToScalarMatrix()))

	z, err := NewScalarMatrix([][]int{{0, 0, 0, 0}})
	require.NoError(t, err)
	d, err := s.L2Distance(z)
	require.NoError(t, err)
	assert.InDelta(t, 5, d, 1e-12)
	assert.False(t, s.Equal(z))

	_, err = s.L2Distance(&ScalarMatrix{rows: [][]int{{1}}, cols: 1})
	assert.ErrorIs(t, err, ErrShape)
	assert.False(t, math.IsNaN(d))
}
