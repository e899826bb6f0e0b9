package sift

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Packing encodes a descriptor vector into the payload string of a flat record.
//
// The payload does not carry its own length; the record's descriptor_length
// field says how many values to unpack. Changing the packing of persisted
// data is a breaking change, which is why stores record the packing name.
type Packing interface {
	Pack(desc []float64) string
	Unpack(payload string, n int) ([]float64, error)
	Name() string
}

var (
	// LegacyPacking stores single-precision big-endian floats
	// in RFC 2045 base64 with 60-character lines. Values are narrowed to float32.
	LegacyPacking Packing = legacyPacking{}
	// Float64Packing stores little-endian float64 values in unwrapped base64.
	// It round-trips any descriptor exactly.
	Float64Packing Packing = float64Packing{}
)

// PackingByName returns a built-in packing by its stable name.
func PackingByName(name string) (Packing, bool) {
	switch name {
	case LegacyPacking.Name():
		return LegacyPacking, true
	case Float64Packing.Name():
		return Float64Packing, true
	default:
		return nil, false
	}
}

type legacyPacking struct{}

func (legacyPacking) Name() string { return "float32be-mime" }

func (legacyPacking) Pack(desc []float64) string {
	buf := make([]byte, 4*len(desc))
	for i, v := range desc {
		binary.BigEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	return encodeMIME(buf)
}

func (legacyPacking) Unpack(payload string, n int) ([]float64, error) {
	buf, err := decodeBase64(payload, 4*n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(buf[4*i:])))
	}
	return out, nil
}

type float64Packing struct{}

func (float64Packing) Name() string { return "float64le" }

func (float64Packing) Pack(desc []float64) string {
	buf := make([]byte, 8*len(desc))
	for i, v := range desc {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func (float64Packing) Unpack(payload string, n int) ([]float64, error) {
	buf, err := decodeBase64(payload, 8*n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return out, nil
}

const mimeLineLen = 60

// encodeMIME wraps at 60 columns the way MIME base64 does: every line, including the
// last, ends with a newline, and an empty input encodes to "".
func encodeMIME(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	s := base64.StdEncoding.EncodeToString(b)
	var sb strings.Builder
	sb.Grow(len(s) + len(s)/mimeLineLen + 1)
	for len(s) > mimeLineLen {
		sb.WriteString(s[:mimeLineLen])
		sb.WriteByte('\n')
		s = s[mimeLineLen:]
	}
	sb.WriteString(s)
	sb.WriteByte('\n')
	return sb.String()
}

// decodeBase64 ignores line breaks and requires at least need bytes.
func decodeBase64(payload string, need int) ([]byte, error) {
	clean := strings.Join(strings.Fields(payload), "")
	buf, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPayload, err)
	}
	if len(buf) < need {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrPayload, len(buf), need)
	}
	return buf, nil
}
