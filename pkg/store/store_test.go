package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/siftkit/pkg/sift"
)

func blobStores(t *testing.T) map[string]BlobStore {
	return map[string]BlobStore{
		"memory": NewMemoryStore(),
		"local":  NewLocalStore(t.TempDir()),
	}
}

func TestBlobStores(t *testing.T) {
	ctx := context.Background()
	for name, bs := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			list, err := bs.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, list)

			_, err = bs.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, bs.Put(ctx, "a/one", []byte("1")))
			require.NoError(t, bs.Put(ctx, "a/two", []byte("2")))
			require.NoError(t, bs.Put(ctx, "b", []byte("3")))
			require.NoError(t, bs.Put(ctx, "a/one", []byte("11")))

			data, err := bs.Get(ctx, "a/one")
			require.NoError(t, err)
			assert.Equal(t, []byte("11"), data)

			list, err = bs.List(ctx, "a/")
			require.NoError(t, err)
			assert.Equal(t, []string{"a/one", "a/two"}, list)

			require.NoError(t, bs.Delete(ctx, "a/one"))
			require.NoError(t, bs.Delete(ctx, "a/one"))
			_, err = bs.Get(ctx, "a/one")
			require.ErrorIs(t, err, ErrNotFound)

			list, err = bs.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"a/two", "b"}, list)
		})
	}
}

func TestLocalStoreRejectsEscapingNames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	bs := NewLocalStore(filepath.Join(dir, "root"))

	for _, name := range []string{"../x", "a/../../x", "/etc/x", ""} {
		require.ErrorIs(t, bs.Put(ctx, name, []byte("1")), ErrInvalidName, name)
		_, err := bs.Get(ctx, name)
		require.ErrorIs(t, err, ErrInvalidName, name)
		require.ErrorIs(t, bs.Delete(ctx, name), ErrInvalidName, name)
	}
	assert.NoFileExists(t, filepath.Join(dir, "x"))

	require.NoError(t, bs.Put(ctx, "a/../b", []byte("1")))
	data, err := bs.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), data)
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	data := []byte("abc")
	require.NoError(t, m.Put(ctx, "x", data))
	data[0] = 'z'

	got, err := m.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	got[1] = 'z'

	again, err := m.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestCompressRoundTrip(t *testing.T) {
	data := []byte(`[[1,2,3],[1,2,3],[1,2,3],[1,2,3],[1,2,3],[1,2,3],[1,2,3],[1,2,3]]`)
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(string(c), func(t *testing.T) {
			body, used, err := compress(c, data)
			require.NoError(t, err)
			got, err := decompress(used, body, len(data))
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("")
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, c)

	c, err = ParseCompression("zstd")
	require.NoError(t, err)
	assert.Equal(t, CompressionZSTD, c)

	_, err = ParseCompression("gzip")
	require.ErrorIs(t, err, ErrCompression)
}

func testResults(t *testing.T, n int) *sift.Results {
	t.Helper()
	fs := make([]sift.Feature, n)
	for i := range fs {
		f := sift.Feature{
			X:                float64(i) + 0.25,
			Y:                float64(2*i) + 0.5,
			Scale:            1.5 + float64(i),
			Orientation:      -0.75,
			Response:         0.03125,
			DescriptorLength: sift.DescriptorSize,
			Data:             sift.FeatureData{R: 2 * i, C: i, Octave: 1, Interval: 2, SubInterval: 0.125, ScaleOctave: 1.6},
		}
		for j := range f.Descriptor {
			f.Descriptor[j] = float64((i + j) % 256)
		}
		fs[i] = f
	}
	r, err := sift.ResultsFromFeatures(fs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestCollectionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	packings := []sift.Packing{sift.LegacyPacking, sift.Float64Packing}
	comps := []Compression{CompressionNone, CompressionLZ4, CompressionZSTD}

	for _, p := range packings {
		for _, comp := range comps {
			t.Run(p.Name()+"/"+string(comp), func(t *testing.T) {
				in := testResults(t, 7)
				c := NewCollections(NewMemoryStore(), WithPacking(p), WithCompression(comp))
				require.NoError(t, c.Save(ctx, "scene", in))

				out, err := c.Load(ctx, "scene")
				require.NoError(t, err)
				defer out.Close()
				assert.True(t, out.Owned())

				want, err := in.Features()
				require.NoError(t, err)
				got, err := out.Features()
				require.NoError(t, err)
				require.Len(t, got, len(want))
				for i := range want {
					assert.True(t, want[i].Equal(got[i]), "record %d", i)
					assert.Equal(t, want[i].Data, got[i].Data)
				}
			})
		}
	}
}

func TestCollectionsEmpty(t *testing.T) {
	ctx := context.Background()
	c := NewCollections(NewMemoryStore())
	in := sift.NewResults(0)
	defer in.Close()

	require.NoError(t, c.Save(ctx, "empty", in))
	out, err := c.Load(ctx, "empty")
	require.NoError(t, err)
	defer out.Close()
	assert.Zero(t, out.Len())
}

func TestCollectionsListDelete(t *testing.T) {
	ctx := context.Background()
	bs := NewMemoryStore()
	c := NewCollections(bs)
	r := testResults(t, 2)

	require.NoError(t, c.Save(ctx, "a", r))
	require.NoError(t, c.Save(ctx, "b.sift", r))
	require.NoError(t, bs.Put(ctx, "notes.txt", []byte("x")))

	names, err := c.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, c.Delete(ctx, "a"))
	_, err = c.Load(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDecodeRejectsBadBlobs(t *testing.T) {
	_, err := Decode([]byte("no header"))
	require.ErrorIs(t, err, ErrFormat)

	_, err = Decode([]byte(`{"version":9,"packing":"float64le","compression":"none"}` + "\n[]"))
	require.ErrorIs(t, err, ErrFormat)

	_, err = Decode([]byte(`{"version":1,"packing":"raw","compression":"none"}` + "\n[]"))
	require.ErrorIs(t, err, ErrFormat)

	_, err = Decode([]byte(`{"version":1,"packing":"float64le","compression":"none","count":2,"raw_size":2}` + "\n[]"))
	require.ErrorIs(t, err, ErrFormat)

	_, err = Decode([]byte(`{"version":1,"packing":"float64le","compression":"zstd","count":0,"raw_size":2}` + "\n[]"))
	require.ErrorIs(t, err, ErrCompression)

	for _, hdr := range []string{
		`{"version":1,"packing":"float64le","compression":"lz4","count":1,"raw_size":4611686018427387904}`,
		`{"version":1,"packing":"float64le","compression":"zstd","count":1,"raw_size":4611686018427387904}`,
		`{"version":1,"packing":"float64le","compression":"lz4","count":4611686018427387904,"raw_size":1073741824}`,
		`{"version":1,"packing":"float64le","compression":"none","count":1,"raw_size":1000000}`,
	} {
		require.NotPanics(t, func() {
			_, err = Decode([]byte(hdr + "\n[]"))
		}, hdr)
		require.ErrorIs(t, err, ErrFormat, hdr)
	}
}

func TestEncodeHeader(t *testing.T) {
	c := NewCollections(NewMemoryStore(), WithPacking(sift.Float64Packing), WithCompression(CompressionNone))
	data, err := c.Encode(testResults(t, 3))
	require.NoError(t, err)

	h, body, err := ReadHeader(data)
	require.NoError(t, err)
	assert.Equal(t, Header{Version: 1, Packing: "float64le", Compression: CompressionNone, Count: 3, RawSize: len(body)}, h)
}
