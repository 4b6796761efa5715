package persistence

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/canopy/distance"
	"github.com/hupe1980/canopy/forest"
	"github.com/hupe1980/canopy/resource"
	"github.com/hupe1980/canopy/searcher"
	"github.com/hupe1980/canopy/testutil"
	"github.com/hupe1980/canopy/vectorspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildIndex(t *testing.T, n, dim int, metric distance.Metric, withPayloads bool) (*vectorspace.VectorSpace, *forest.Forest) {
	t.Helper()

	rng := testutil.NewRNG(42)
	vectors := rng.UniformVectors(n, dim)

	vs, err := vectorspace.New(dim, metric)
	require.NoError(t, err)
	for i, v := range vectors {
		id := fmt.Sprintf("item-%04d", i)
		if withPayloads {
			_, err = vs.AddWithPayload(id, v, []byte("rec:"+id))
		} else {
			_, err = vs.Add(id, v)
		}
		require.NoError(t, err)
	}

	f, err := forest.Build(context.Background(), vs, func(o *forest.Options) {
		o.Trees = 4
		o.LeafCapacity = 8
	})
	require.NoError(t, err)

	return vs, f
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	vs, f := buildIndex(t, 200, 8, distance.MetricAngular, true)

	path := filepath.Join(t.TempDir(), "index.cny")
	require.NoError(t, Save(path, vs, f))

	ix, err := Load(context.Background(), path)
	require.NoError(t, err)
	defer ix.Close()

	assert.Equal(t, uint32(MagicNumber), ix.Header.Magic)
	assert.Equal(t, uint32(Version), ix.Header.Version)
	assert.Equal(t, uint64(200), ix.Header.ItemCount)

	// The space round-trips exactly.
	require.Equal(t, vs.Len(), ix.Space.Len())
	assert.Equal(t, vs.Dimension(), ix.Space.Dimension())
	assert.Equal(t, vs.Metric(), ix.Space.Metric())
	assert.Equal(t, vs.Data(), ix.Space.Data())
	assert.Equal(t, vs.IDs(), ix.Space.IDs())
	for i := 0; i < vs.Len(); i++ {
		assert.Equal(t, vs.Payload(uint32(i)), ix.Space.Payload(uint32(i)))
	}

	// The forest round-trips byte for byte.
	require.Equal(t, f.Len(), ix.Forest.Len())
	assert.Equal(t, f.LeafCapacity(), ix.Forest.LeafCapacity())
	for i := 0; i < f.Len(); i++ {
		assert.Equal(t, f.Tree(i).Bytes(), ix.Forest.Tree(i).Bytes())
	}
}

func TestSaveLoad_SearchEquivalence(t *testing.T) {
	// A query against the loaded index returns exactly what the in-memory
	// index returned.
	vs, f := buildIndex(t, 300, 8, distance.MetricEuclidean, false)

	before, err := searcher.New(vs, f)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "index.cny")
	require.NoError(t, Save(path, vs, f))

	ix, err := Load(context.Background(), path)
	require.NoError(t, err)
	defer ix.Close()

	after, err := searcher.New(ix.Space, ix.Forest)
	require.NoError(t, err)

	rng := testutil.NewRNG(99)
	for i := 0; i < 10; i++ {
		query := make([]float32, 8)
		rng.FillUniform(query)

		want, err := before.Search(context.Background(), query, 10, 80)
		require.NoError(t, err)
		got, err := after.Search(context.Background(), query, 10, 80)
		require.NoError(t, err)

		assert.Equal(t, want, got)
	}
}

func TestSave_Atomic(t *testing.T) {
	vs, f := buildIndex(t, 50, 4, distance.MetricEuclidean, false)

	dir := t.TempDir()
	path := filepath.Join(dir, "index.cny")
	require.NoError(t, Save(path, vs, f))

	// No stray temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "index.cny", entries[0].Name())
}

func TestLoad_CorruptMagic(t *testing.T) {
	vs, f := buildIndex(t, 50, 4, distance.MetricEuclidean, false)

	path := filepath.Join(t.TempDir(), "index.cny")
	require.NoError(t, Save(path, vs, f))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[0:], 0xDEADBEEF)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Load(context.Background(), path)
	require.ErrorIs(t, err, ErrCorruptIndex)
	require.ErrorIs(t, err, ErrInvalidMagic)
}

func TestLoad_FutureVersion(t *testing.T) {
	vs, f := buildIndex(t, 50, 4, distance.MetricEuclidean, false)

	path := filepath.Join(t.TempDir(), "index.cny")
	require.NoError(t, Save(path, vs, f))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[4:], 0x00020000)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Load(context.Background(), path)
	require.ErrorIs(t, err, ErrCorruptIndex)
	require.ErrorIs(t, err, ErrInvalidVersion)
}

func TestLoad_Truncated(t *testing.T) {
	vs, f := buildIndex(t, 50, 4, distance.MetricEuclidean, false)

	path := filepath.Join(t.TempDir(), "index.cny")
	require.NoError(t, Save(path, vs, f))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	for _, size := range []int{0, 10, HeaderSize, HeaderSize + 8, len(data) - 8} {
		t.Run(fmt.Sprintf("size-%d", size), func(t *testing.T) {
			trunc := filepath.Join(t.TempDir(), "trunc.cny")
			require.NoError(t, os.WriteFile(trunc, data[:size], 0o644))

			_, err := Load(context.Background(), trunc)
			require.Error(t, err)
		})
	}
}

func TestLoad_FlippedByte(t *testing.T) {
	vs, f := buildIndex(t, 50, 4, distance.MetricEuclidean, false)

	path := filepath.Join(t.TempDir(), "index.cny")
	require.NoError(t, Save(path, vs, f))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)/2] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Load(context.Background(), path)
	require.ErrorIs(t, err, ErrCorruptIndex)

	var mismatch *ChecksumMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestLoad_ChecksumSkip(t *testing.T) {
	vs, f := buildIndex(t, 50, 4, distance.MetricEuclidean, false)

	path := filepath.Join(t.TempDir(), "index.cny")
	require.NoError(t, Save(path, vs, f))

	ix, err := Load(context.Background(), path, func(o *LoadOptions) {
		o.VerifyChecksum = false
	})
	require.NoError(t, err)
	require.NoError(t, ix.Close())
}

func TestLoad_MemoryAccounting(t *testing.T) {
	vs, f := buildIndex(t, 50, 4, distance.MetricEuclidean, false)

	path := filepath.Join(t.TempDir(), "index.cny")
	require.NoError(t, Save(path, vs, f))

	info, err := os.Stat(path)
	require.NoError(t, err)

	ctrl := resource.NewController(resource.Config{MemoryLimitBytes: 64 << 20})

	ix, err := Load(context.Background(), path, func(o *LoadOptions) {
		o.Controller = ctrl
	})
	require.NoError(t, err)

	// The mapping is charged against the budget for the index lifetime.
	assert.Equal(t, info.Size(), ctrl.MemoryUsage())

	require.NoError(t, ix.Close())
	assert.Zero(t, ctrl.MemoryUsage())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.cny"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadHeader_TooShort(t *testing.T) {
	_, err := ReadHeader(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrCorruptIndex)
}
