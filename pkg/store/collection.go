package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/menta2k/siftkit/internal/logging"
	"github.com/menta2k/siftkit/pkg/sift"
)

// FormatVersion is the current collection header version.
const FormatVersion = 1

// Extension is appended to collection names that lack it.
const Extension = ".sift"

// Body size limits checked before anything is allocated. A flat row is
// at most twelve numbers and a float64 payload of DescriptorSize values.
const (
	maxRowBytes = 4096
	// MaxRawSize bounds the uncompressed body of any stored collection.
	MaxRawSize = 1 << 30
)

// ErrFormat is returned for a blob that is not a stored collection.
var ErrFormat = errors.New("invalid collection blob")

// Header describes a stored collection. It is written as one JSON line
// ahead of the body.
type Header struct {
	Version     int         `json:"version"`
	Packing     string      `json:"packing"`
	Compression Compression `json:"compression"`
	Count       int         `json:"count"`
	RawSize     int         `json:"raw_size"`
}

// Collections saves and loads keypoint collections in a BlobStore. The body
// is the JSON array of flat records, optionally compressed.
type Collections struct {
	blobs       BlobStore
	packing     sift.Packing
	compression Compression
	logger      *logging.Logger
}

// Option configures Collections.
type Option func(*Collections)

// WithPacking sets the descriptor packing used by Save.
func WithPacking(p sift.Packing) Option {
	return func(c *Collections) { c.packing = p }
}

// WithCompression sets the body codec used by Save.
func WithCompression(comp Compression) Option {
	return func(c *Collections) { c.compression = comp }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Collections) { c.logger = l }
}

// NewCollections creates a collection store over blobs. Defaults are
// LegacyPacking and zstd.
func NewCollections(blobs BlobStore, opts ...Option) *Collections {
	c := &Collections{
		blobs:       blobs,
		packing:     sift.LegacyPacking,
		compression: CompressionZSTD,
		logger:      logging.NoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the blob name a collection is stored under.
func Key(name string) string {
	if strings.HasSuffix(name, Extension) {
		return name
	}
	return name + Extension
}

// Save writes r under name.
func (c *Collections) Save(ctx context.Context, name string, r *sift.Results) error {
	data, err := c.Encode(r)
	if err == nil {
		err = c.blobs.Put(ctx, Key(name), data)
	}
	c.logger.LogStore(ctx, "save", name, r.Len(), err)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// Load reads the collection stored under name into a new owned Results.
func (c *Collections) Load(ctx context.Context, name string) (*sift.Results, error) {
	data, err := c.blobs.Get(ctx, Key(name))
	var r *sift.Results
	if err == nil {
		r, err = Decode(data)
	}
	n := 0
	if r != nil {
		n = r.Len()
	}
	c.logger.LogStore(ctx, "load", name, n, err)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	return r, nil
}

// Delete removes a stored collection.
func (c *Collections) Delete(ctx context.Context, name string) error {
	return c.blobs.Delete(ctx, Key(name))
}

// List returns the names of stored collections under prefix, without the
// extension.
func (c *Collections) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := c.blobs.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if path.Ext(k) == Extension {
			names = append(names, strings.TrimSuffix(k, Extension))
		}
	}
	return names, nil
}

// Encode serializes r with the configured packing and compression.
func (c *Collections) Encode(r *sift.Results) ([]byte, error) {
	rows, err := r.FlatWith(c.packing)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = [][]any{}
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal records: %w", err)
	}
	body, comp, err := compress(c.compression, raw)
	if err != nil {
		return nil, err
	}

	hdr, err := json.Marshal(Header{
		Version:     FormatVersion,
		Packing:     c.packing.Name(),
		Compression: comp,
		Count:       len(rows),
		RawSize:     len(raw),
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(hdr) + 1 + len(body))
	buf.Write(hdr)
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes(), nil
}

// ReadHeader parses the header line of a stored collection and returns the
// remaining body.
func ReadHeader(data []byte) (Header, []byte, error) {
	line, body, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return Header{}, nil, fmt.Errorf("%w: missing header", ErrFormat)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return Header{}, nil, fmt.Errorf("%w: header: %w", ErrFormat, err)
	}
	if h.Version != FormatVersion {
		return Header{}, nil, fmt.Errorf("%w: version %d", ErrFormat, h.Version)
	}
	if h.Count < 0 || h.RawSize < 0 {
		return Header{}, nil, fmt.Errorf("%w: negative size", ErrFormat)
	}
	if h.RawSize > MaxRawSize || h.Count > MaxRawSize/maxRowBytes || h.RawSize > 16+h.Count*maxRowBytes {
		return Header{}, nil, fmt.Errorf("%w: raw size %d too large for %d records", ErrFormat, h.RawSize, h.Count)
	}
	return h, body, nil
}

// Decode parses a blob produced by Encode. The packing recorded in the
// header is used regardless of how Collections is configured.
func Decode(data []byte) (*sift.Results, error) {
	h, body, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	p, ok := sift.PackingByName(h.Packing)
	if !ok {
		return nil, fmt.Errorf("%w: unknown packing %q", ErrFormat, h.Packing)
	}
	raw, err := decompress(h.Compression, body, h.RawSize)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rows [][]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: records: %w", ErrFormat, err)
	}
	if len(rows) != h.Count {
		return nil, fmt.Errorf("%w: %d records, header says %d", ErrFormat, len(rows), h.Count)
	}
	return sift.ResultsFromFlatWith(rows, p)
}
