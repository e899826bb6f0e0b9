package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the body codec of a stored collection.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
	CompressionZSTD Compression = "zstd"
)

// ErrCompression is returned for an unknown codec or a corrupt body.
var ErrCompression = errors.New("invalid compression")

// ParseCompression accepts "", "none", "lz4" and "zstd".
func ParseCompression(s string) (Compression, error) {
	switch c := Compression(s); c {
	case "":
		return CompressionNone, nil
	case CompressionNone, CompressionLZ4, CompressionZSTD:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrCompression, s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxRawSize))
	return dec
}

// compress encodes data. An incompressible lz4 body is stored as is and
// reported as CompressionNone.
func compress(c Compression, data []byte) ([]byte, Compression, error) {
	switch c {
	case CompressionNone:
		return data, CompressionNone, nil
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, c, fmt.Errorf("%w: %w", ErrCompression, err)
		}
		if n == 0 {
			return data, CompressionNone, nil
		}
		return buf[:n], c, nil
	case CompressionZSTD:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), c, nil
	default:
		return nil, c, fmt.Errorf("%w: %q", ErrCompression, c)
	}
}

// decompress reverses compress. size is the uncompressed length and must
// already be bounded by the caller.
func decompress(c Compression, data []byte, size int) ([]byte, error) {
	if size < 0 || size > MaxRawSize {
		return nil, fmt.Errorf("%w: size %d out of range", ErrCompression, size)
	}
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCompression, err)
		}
		if n != size {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCompression, n, size)
		}
		return out, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCompression, err)
		}
		if len(out) != size {
			return nil, fmt.Errorf("%w: decompressed %d bytes, want %d", ErrCompression, len(out), size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrCompression, c)
	}
}
