package sift

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// Number of flat elements each record occupies.
const (
	FeatureDataFields = 6
	// FeatureFields counts the six scalar fields, the feature data and the descriptor payload.
	FeatureFields = 6 + FeatureDataFields + 1
)

// FeatureData is the scale-space location a keypoint was detected at.
type FeatureData struct {
	R           int     `json:"r"`
	C           int     `json:"c"`
	Octave      int     `json:"octv"`
	Interval    int     `json:"intvl"`
	SubInterval float64 `json:"subintvl"`
	ScaleOctave float64 `json:"scl_octv"`
}

func (d FeatureData) c() CFeatureData {
	return CFeatureData{
		R:        int32(d.R),        //nolint:gosec // layout width
		C:        int32(d.C),        //nolint:gosec // layout width
		Octv:     int32(d.Octave),   //nolint:gosec // layout width
		Intvl:    int32(d.Interval), //nolint:gosec // layout width
		SubIntvl: d.SubInterval,
		SclOctv:  d.ScaleOctave,
	}
}

func featureDataFromC(c *CFeatureData) FeatureData {
	return FeatureData{
		R:           int(c.R),
		C:           int(c.C),
		Octave:      int(c.Octv),
		Interval:    int(c.Intvl),
		SubInterval: c.SubIntvl,
		ScaleOctave: c.SclOctv,
	}
}

// Flat returns r, c, octv, intvl, subintvl, scl_octv.
func (d FeatureData) Flat() []any {
	return []any{d.R, d.C, d.Octave, d.Interval, d.SubInterval, d.ScaleOctave}
}

// DecodeFeatureData consumes the first FeatureDataFields elements of flat
// and returns the record and the remaining elements.
func DecodeFeatureData(flat []any) (FeatureData, []any, error) {
	if len(flat) < FeatureDataFields {
		return FeatureData{}, flat, &InsufficientDataError{Record: "feature data", Have: len(flat), Need: FeatureDataFields}
	}
	var (
		d   FeatureData
		err error
	)
	ints := []*int{&d.R, &d.C, &d.Octave, &d.Interval}
	for i, dst := range ints {
		if *dst, err = toInt(flat[i]); err != nil {
			return FeatureData{}, flat, fmt.Errorf("feature data field %d: %w", i, err)
		}
	}
	if d.SubInterval, err = toFloat(flat[4]); err != nil {
		return FeatureData{}, flat, fmt.Errorf("feature data subintvl: %w", err)
	}
	if d.ScaleOctave, err = toFloat(flat[5]); err != nil {
		return FeatureData{}, flat, fmt.Errorf("feature data scl_octv: %w", err)
	}
	return d, flat[FeatureDataFields:], nil
}

// Feature is a detached keypoint record. Only the first DescriptorLength
// entries of Descriptor are meaningful.
type Feature struct {
	X                float64
	Y                float64
	Scale            float64
	Orientation      float64
	Response         float32
	DescriptorLength int
	Descriptor       [DescriptorSize]float64
	ClassID          int
	Data             FeatureData
}

// Desc returns the meaningful part of the descriptor.
func (f *Feature) Desc() []float64 {
	n := min(max(f.DescriptorLength, 0), DescriptorSize)
	return f.Descriptor[:n]
}

// Location returns the keypoint position.
func (f Feature) Location() (float64, float64) { return f.X, f.Y }

func (f Feature) c() CFeature {
	return CFeature{
		X:                f.X,
		Y:                f.Y,
		Scale:            f.Scale,
		Orientation:      f.Orientation,
		DescriptorLength: int32(f.DescriptorLength), //nolint:gosec // checked by callers
		Descriptor:       f.Descriptor,
		ClassID:          int32(f.ClassID), //nolint:gosec // layout width
		Response:         f.Response,
	}
}

func featureFromC(c *CFeature, d *CFeatureData) Feature {
	return Feature{
		X:                c.X,
		Y:                c.Y,
		Scale:            c.Scale,
		Orientation:      c.Orientation,
		Response:         c.Response,
		DescriptorLength: int(c.DescriptorLength),
		Descriptor:       c.Descriptor,
		ClassID:          int(c.ClassID),
		Data:             featureDataFromC(d),
	}
}

// Flat serializes f with LegacyPacking, which narrows descriptor values to
// float32. Use FlatWith(Float64Packing) for an exact round trip.
func (f Feature) Flat() []any { return f.FlatWith(LegacyPacking) }

// FlatWith returns x, y, scale, orientation, response, descriptor_length,
// the six feature data fields and the packed descriptor payload.
func (f Feature) FlatWith(p Packing) []any {
	a := make([]any, 0, FeatureFields)
	a = append(a, f.X, f.Y, f.Scale, f.Orientation, f.Response, f.DescriptorLength)
	a = append(a, f.Data.Flat()...)
	return append(a, p.Pack(f.Desc()))
}

// DecodeFeature is DecodeFeatureWith using LegacyPacking. Descriptor values
// come back as the float32 values Flat stored.
func DecodeFeature(flat []any) (Feature, []any, error) {
	return DecodeFeatureWith(flat, LegacyPacking)
}

// DecodeFeatureWith consumes one record from flat and returns it with the
// remaining elements. Descriptor entries past the decoded length are zero.
func DecodeFeatureWith(flat []any, p Packing) (Feature, []any, error) {
	if len(flat) < FeatureFields {
		return Feature{}, flat, &InsufficientDataError{Record: "feature", Have: len(flat), Need: FeatureFields}
	}

	var (
		f   Feature
		err error
	)
	floats := []*float64{&f.X, &f.Y, &f.Scale, &f.Orientation}
	for i, dst := range floats {
		if *dst, err = toFloat(flat[i]); err != nil {
			return Feature{}, flat, fmt.Errorf("feature field %d: %w", i, err)
		}
	}
	resp, err := toFloat(flat[4])
	if err != nil {
		return Feature{}, flat, fmt.Errorf("feature response: %w", err)
	}
	f.Response = float32(resp)
	if f.DescriptorLength, err = toInt(flat[5]); err != nil {
		return Feature{}, flat, fmt.Errorf("feature descriptor_length: %w", err)
	}
	if f.DescriptorLength < 0 || f.DescriptorLength > DescriptorSize {
		return Feature{}, flat, fmt.Errorf("%w: %d", ErrDescriptorLength, f.DescriptorLength)
	}

	rest := flat[6:]
	if f.Data, rest, err = DecodeFeatureData(rest); err != nil {
		return Feature{}, flat, err
	}

	payload, ok := rest[0].(string)
	if !ok {
		return Feature{}, flat, fmt.Errorf("%w: payload is %T, not string", ErrPayload, rest[0])
	}
	desc, err := p.Unpack(payload, f.DescriptorLength)
	if err != nil {
		return Feature{}, flat, err
	}
	copy(f.Descriptor[:], desc)

	return f, rest[1:], nil
}

// Mismatches lists the compared fields that differ between f and o.
// The descriptor is only compared when f has a non-zero length.
func (f Feature) Mismatches(o Feature) []string {
	var fields []string
	check := func(name string, equal bool) {
		if !equal {
			fields = append(fields, name)
		}
	}
	check("x", f.X == o.X)
	check("y", f.Y == o.Y)
	check("scale", f.Scale == o.Scale)
	check("orientation", f.Orientation == o.Orientation)
	check("response", f.Response == o.Response)
	check("descriptor_length", f.DescriptorLength == o.DescriptorLength)
	if f.DescriptorLength > 0 {
		check("descriptor", f.Descriptor == o.Descriptor)
	}
	return fields
}

// Equal compares the scalar fields and, for described features, the full
// descriptor vector. Differing fields are reported to the package logger at
// debug level.
func (f Feature) Equal(o Feature) bool {
	fields := f.Mismatches(o)
	if len(fields) == 0 {
		return true
	}
	l := diagLogger()
	for _, name := range fields {
		a, b := f.field(name), o.field(name)
		l.LogMismatch(context.Background(), name, a, b)
	}
	return false
}

func (f Feature) field(name string) any {
	switch name {
	case "x":
		return f.X
	case "y":
		return f.Y
	case "scale":
		return f.Scale
	case "orientation":
		return f.Orientation
	case "response":
		return f.Response
	case "descriptor_length":
		return f.DescriptorLength
	default:
		return f.Desc()
	}
}

// MarshalJSON encodes f as its flat array.
func (f Feature) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Flat())
}

// UnmarshalJSON decodes a flat array produced by MarshalJSON.
func (f *Feature) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var flat []any
	if err := dec.Decode(&flat); err != nil {
		return err
	}
	feat, rest, err := DecodeFeature(flat)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("feature: %d trailing elements", len(rest))
	}
	*f = feat
	return nil
}

// DecodeFeatures consumes records from flat until it is exhausted.
func DecodeFeatures(flat []any) ([]Feature, error) {
	var out []Feature
	for len(flat) > 0 {
		f, rest, err := DecodeFeature(flat)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(out), err)
		}
		out = append(out, f)
		flat = rest
	}
	return out, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("%w: %T is not a number", ErrFieldType, v)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrFieldType, f)
	}
	return int(f), nil
}
