package arena

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	A, B int32
	F    float64
}

func TestAllocAndGet(t *testing.T) {
	a := New[record](4)

	refs := make([]Ref, 0, 10)
	for i := 0; i < 10; i++ {
		ref, slot, err := a.Alloc()
		require.NoError(t, err)
		slot.A = int32(i)
		refs = append(refs, ref)
	}

	require.Equal(t, 10, a.Len())
	for i, ref := range refs {
		got, err := a.Get(ref)
		require.NoError(t, err)
		assert.Equal(t, int32(i), got.A)
	}

	stats := a.Stats()
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 12, stats.Slots)
	assert.Equal(t, uint64(10), stats.TotalAllocs)
}

func TestResetInvalidatesRefs(t *testing.T) {
	a := New[record](0)
	ref, _, err := a.Alloc()
	require.NoError(t, err)

	require.NoError(t, a.Reset())
	_, err = a.Get(ref)
	require.ErrorIs(t, err, ErrStaleRef)

	fresh, slot, err := a.Alloc()
	require.NoError(t, err)
	assert.Equal(t, record{}, *slot, "reused slot must be zeroed")
	assert.NotEqual(t, ref, fresh)
}

func TestReleaseOnce(t *testing.T) {
	a := New[record](2)
	ref, _, err := a.Alloc()
	require.NoError(t, err)

	require.NoError(t, a.Release())
	assert.True(t, a.Released())
	require.ErrorIs(t, a.Release(), ErrReleased)

	_, err = a.Get(ref)
	require.ErrorIs(t, err, ErrReleased)
	_, _, err = a.Alloc()
	require.ErrorIs(t, err, ErrReleased)
}

func TestGetOutOfRange(t *testing.T) {
	a := New[record](2)
	_, _, err := a.Alloc()
	require.NoError(t, err)

	_, err = a.Get(Ref{Gen: 1, Index: 5})
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = a.Get(Nil)
	require.ErrorIs(t, err, ErrStaleRef)
}

func TestRefIsPointerSized(t *testing.T) {
	assert.Equal(t, uintptr(8), unsafe.Sizeof(Ref{}))
}
