package sift

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsLayout(t *testing.T) {
	var p CParams
	assert.Equal(t, uintptr(40), unsafe.Sizeof(p))
	assert.Equal(t, uintptr(0), unsafe.Offsetof(p.Octaves))
	assert.Equal(t, uintptr(4), unsafe.Offsetof(p.Intervals))
	assert.Equal(t, uintptr(8), unsafe.Offsetof(p.Threshold))
	assert.Equal(t, uintptr(16), unsafe.Offsetof(p.EdgeThreshold))
	assert.Equal(t, uintptr(24), unsafe.Offsetof(p.Magnification))
	assert.Equal(t, uintptr(32), unsafe.Offsetof(p.RecalculateAngles))
}

func TestFeatureDataLayout(t *testing.T) {
	var d CFeatureData
	assert.Equal(t, uintptr(32), unsafe.Sizeof(d))
	assert.Equal(t, uintptr(12), unsafe.Offsetof(d.Intvl))
	assert.Equal(t, uintptr(16), unsafe.Offsetof(d.SubIntvl))
	assert.Equal(t, uintptr(24), unsafe.Offsetof(d.SclOctv))
}

func TestFeatureLayout(t *testing.T) {
	var f CFeature
	assert.Equal(t, uintptr(1080), unsafe.Sizeof(f))
	assert.Equal(t, uintptr(32), unsafe.Offsetof(f.DescriptorLength))
	assert.Equal(t, uintptr(40), unsafe.Offsetof(f.Descriptor))
	assert.Equal(t, uintptr(1064), unsafe.Offsetof(f.FeatureData))
	assert.Equal(t, uintptr(1072), unsafe.Offsetof(f.ClassID))
	assert.Equal(t, uintptr(1076), unsafe.Offsetof(f.Response))
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, Params{
		Octaves:           4,
		Intervals:         5,
		Threshold:         0.04,
		EdgeThreshold:     10.0,
		Magnification:     3.0,
		RecalculateAngles: 1,
	}, p)

	c := p.C()
	assert.Equal(t, int32(4), c.Octaves)
	assert.True(t, c.Recalculate())
	assert.Equal(t, p, c.Params())

	p.RecalculateAngles = 0
	assert.False(t, p.C().Recalculate())
}

func TestSeqPushAndFeature(t *testing.T) {
	st := NewStorage(2)
	seq := st.NewSeq()

	for i := range 5 {
		f := CoercedFeature(float64(i), float64(2*i))
		f.Response = float32(i) / 4
		require.NoError(t, seq.Push(f))
	}
	require.Equal(t, 5, seq.Len())
	assert.Equal(t, 5, st.Stats().Used)

	f, err := seq.Feature(3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, f.X)
	assert.Equal(t, 6, f.Data.C)
	assert.Equal(t, 12, f.Data.R)
	assert.Equal(t, float32(0.75), f.Response)

	d, err := seq.Data(3)
	require.NoError(t, err)
	d.Octv = 2
	f, err = seq.Feature(3)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Data.Octave, "records share storage with the sequence")

	assert.Nil(t, seq.At(5))
	_, err = seq.Feature(-1)
	assert.ErrorIs(t, err, ErrIndex)
}

func TestSeqPushRejectsLength(t *testing.T) {
	seq := NewStorage(0).NewSeq()
	err := seq.Push(Feature{DescriptorLength: DescriptorSize + 1})
	assert.ErrorIs(t, err, ErrDescriptorLength)
	assert.Equal(t, 0, seq.Len())
}

func TestSeqSetDescriptor(t *testing.T) {
	seq := NewStorage(0).NewSeq()
	require.NoError(t, seq.Push(Feature{X: 1}))

	desc := make([]float64, DescriptorSize)
	for i := range desc {
		desc[i] = float64(i)
	}
	require.NoError(t, seq.SetDescriptor(0, desc))
	rec := seq.At(0)
	assert.Equal(t, int32(DescriptorSize), rec.DescriptorLength)
	assert.Equal(t, 127.0, rec.Descriptor[127])

	require.NoError(t, seq.SetDescriptor(0, desc[:3]))
	assert.Equal(t, int32(3), rec.DescriptorLength)
	assert.Zero(t, rec.Descriptor[3])

	assert.ErrorIs(t, seq.SetDescriptor(0, make([]float64, DescriptorSize+1)), ErrDescriptorLength)
	assert.ErrorIs(t, seq.SetDescriptor(1, desc), ErrIndex)
}

func TestStorageRelease(t *testing.T) {
	st := NewStorage(0)
	seq := st.NewSeq()
	require.NoError(t, seq.Push(Feature{}))

	require.NoError(t, st.Release())
	assert.True(t, st.Released())

	_, err := seq.Feature(0)
	assert.ErrorIs(t, err, ErrReleased)
	assert.True(t, errors.Is(st.Release(), ErrReleased))
	assert.ErrorIs(t, seq.Push(Feature{}), ErrReleased)
}

func TestSeqTruncate(t *testing.T) {
	seq := NewStorage(0).NewSeq()
	for range 4 {
		require.NoError(t, seq.Push(Feature{}))
	}
	seq.Truncate(10)
	assert.Equal(t, 4, seq.Len())
	seq.Truncate(1)
	assert.Equal(t, 1, seq.Len())
	seq.Truncate(-3)
	assert.Equal(t, 0, seq.Len())
}
