package sift

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/siftkit/internal/logging"
)

func testFeature(length int) Feature {
	f := Feature{
		X:                12.25,
		Y:                40.5,
		Scale:            2.0158736798317967,
		Orientation:      -1.3,
		Response:         0.031,
		DescriptorLength: length,
		Data: FeatureData{
			R:           81,
			C:           24,
			Octave:      1,
			Interval:    3,
			SubInterval: -0.21,
			ScaleOctave: 2.77,
		},
	}
	for i := range length {
		f.Descriptor[i] = float64((i*37)%256) + 0.5
	}
	return f
}

func TestFeatureRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 37, DescriptorSize} {
		f := testFeature(n)
		flat := f.Flat()
		require.Len(t, flat, FeatureFields)

		got, rest, err := DecodeFeature(flat)
		require.NoError(t, err)
		assert.Empty(t, rest)
		assert.True(t, f.Equal(got), "length %d", n)
		assert.Equal(t, f, got)
	}
}

func TestFeatureRoundTripFloat64Packing(t *testing.T) {
	f := testFeature(DescriptorSize)
	for i := range f.Descriptor {
		f.Descriptor[i] = math.Pi * float64(i)
	}

	got, _, err := DecodeFeatureWith(f.FlatWith(Float64Packing), Float64Packing)
	require.NoError(t, err)
	assert.Equal(t, f, got)

	lossy, _, err := DecodeFeature(f.Flat())
	require.NoError(t, err)
	assert.False(t, f.Equal(lossy), "float32 packing narrows descriptor values")
	for i, v := range lossy.Desc() {
		assert.Equal(t, float64(float32(f.Descriptor[i])), v)
	}
}

func TestFeatureJSON(t *testing.T) {
	f := testFeature(DescriptorSize)
	data, err := json.Marshal(f)
	require.NoError(t, err)

	var got Feature
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, f, got)

	err = json.Unmarshal([]byte(`[1,2,3,4,5,0,1,2,3,4,5,6,"",7]`), &got)
	assert.ErrorContains(t, err, "trailing")
}

func TestDecodeShortInput(t *testing.T) {
	flat := testFeature(4).Flat()

	_, rest, err := DecodeFeature(flat[:FeatureFields-1])
	require.ErrorIs(t, err, ErrInsufficientData)
	assert.Len(t, rest, FeatureFields-1)

	var ide *InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, FeatureFields, ide.Need)
	assert.Equal(t, FeatureFields-1, ide.Have)

	_, _, err = DecodeFeatureData([]any{1, 2, 3, 4, 5.0})
	require.ErrorIs(t, err, ErrInsufficientData)

	_, err = DecodeFeatures(append(flat, flat[:3]...))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestDecodeFeatureDataConsumesSix(t *testing.T) {
	d, rest, err := DecodeFeatureData([]any{1, 2, 3, 4, 0.5, 1.25, "next", 9})
	require.NoError(t, err)
	assert.Equal(t, FeatureData{R: 1, C: 2, Octave: 3, Interval: 4, SubInterval: 0.5, ScaleOctave: 1.25}, d)
	assert.Equal(t, []any{"next", 9}, rest)
	assert.Equal(t, []any{1, 2, 3, 4, 0.5, 1.25}, d.Flat())

	_, _, err = DecodeFeatureData([]any{1.5, 2, 3, 4, 0.5, 1.25})
	assert.ErrorIs(t, err, ErrFieldType)
	_, _, err = DecodeFeatureData([]any{"1", 2, 3, 4, 0.5, 1.25})
	assert.ErrorIs(t, err, ErrFieldType)
}

func TestDecodeFeatures(t *testing.T) {
	a, b := testFeature(0), testFeature(8)
	flat := append(a.Flat(), b.Flat()...)

	fs, err := DecodeFeatures(flat)
	require.NoError(t, err)
	require.Len(t, fs, 2)
	assert.Equal(t, a, fs[0])
	assert.Equal(t, b, fs[1])
}

func TestLegacyPackingFormat(t *testing.T) {
	assert.Equal(t, "", LegacyPacking.Pack(nil))
	assert.Equal(t, "P4AAAA==\n", LegacyPacking.Pack([]float64{1}))

	payload := LegacyPacking.Pack(make([]float64, DescriptorSize))
	lines := strings.Split(strings.TrimSuffix(payload, "\n"), "\n")
	require.Len(t, lines, 12)
	for _, line := range lines[:11] {
		assert.Len(t, line, 60)
	}
	assert.True(t, strings.HasSuffix(payload, "\n"))

	got, err := LegacyPacking.Unpack("P4AA\nAA==", 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, got)
}

func TestPackingErrors(t *testing.T) {
	_, err := LegacyPacking.Unpack("!!not base64!!", 1)
	assert.ErrorIs(t, err, ErrPayload)

	_, err = LegacyPacking.Unpack(LegacyPacking.Pack([]float64{1}), 2)
	assert.ErrorIs(t, err, ErrPayload)

	_, err = Float64Packing.Unpack(Float64Packing.Pack([]float64{1, 2}), 3)
	assert.ErrorIs(t, err, ErrPayload)

	flat := testFeature(2).Flat()
	flat[FeatureFields-1] = 42
	_, _, err = DecodeFeature(flat)
	assert.ErrorIs(t, err, ErrPayload)

	flat = testFeature(2).Flat()
	flat[5] = DescriptorSize + 1
	_, _, err = DecodeFeature(flat)
	assert.ErrorIs(t, err, ErrDescriptorLength)
}

func TestPackingByName(t *testing.T) {
	for _, p := range []Packing{LegacyPacking, Float64Packing} {
		got, ok := PackingByName(p.Name())
		require.True(t, ok)
		assert.Equal(t, p, got)
	}
	_, ok := PackingByName("gzip")
	assert.False(t, ok)
}

func TestFeatureEqual(t *testing.T) {
	a := testFeature(DescriptorSize)
	b := a
	b.Descriptor[100]++
	assert.False(t, a.Equal(b), "descriptors differ")
	assert.Equal(t, []string{"descriptor"}, a.Mismatches(b))

	a, b = testFeature(0), testFeature(0)
	b.Descriptor[0] = 99
	assert.True(t, a.Equal(b), "descriptor ignored when empty")

	b.Data.R = 1000
	b.ClassID = 7
	assert.True(t, a.Equal(b), "feature data and class id are not compared")

	b.Orientation = 0
	b.Response = 1
	assert.Equal(t, []string{"orientation", "response"}, a.Mismatches(b))
}

func TestFeatureEqualLogsMismatch(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(logging.NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { SetLogger(nil) })

	a := testFeature(0)
	b := a
	b.X++
	require.False(t, a.Equal(b))
	assert.Contains(t, buf.String(), "field mismatch")
	assert.Contains(t, buf.String(), "field=x")
}
