package canopy

import (
	"context"
	"strings"
	"testing"

	"github.com/hupe1980/canopy/blobstore"
	"github.com/hupe1980/canopy/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFetch_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	items := testItems(t, 150, 8)

	built, err := NewBuilder(8).Euclidean().Trees(4).Build(ctx, items)
	require.NoError(t, err)
	defer built.Close()

	release, err := built.Publish(ctx, store, "products")
	require.NoError(t, err)

	assert.Equal(t, uint64(1), release.Version)
	assert.Equal(t, "products", release.Name)
	assert.Equal(t, "zstd", release.Codec)
	assert.Equal(t, 8, release.Dimension)
	assert.Equal(t, "Euclidean", release.Metric)
	assert.Equal(t, uint64(150), release.ItemCount)
	assert.Equal(t, 4, release.Trees)
	assert.NotZero(t, release.Checksum)
	assert.True(t, strings.HasPrefix(release.Artifact, "artifacts/products-"))

	fetched, got, err := Fetch(ctx, store, t.TempDir())
	require.NoError(t, err)
	defer fetched.Close()

	assert.Equal(t, release.Version, got.Version)
	assert.Equal(t, release.Artifact, got.Artifact)

	query := items[0].Vector
	want, err := built.Search(query).KNN(5).Effort(100).Execute(ctx)
	require.NoError(t, err)
	res, err := fetched.Search(query).KNN(5).Effort(100).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, res)
}

func TestPublish_VersionIncrements(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	db, err := NewBuilder(4).Euclidean().Trees(2).Build(ctx, testItems(t, 20, 4))
	require.NoError(t, err)
	defer db.Close()

	for want := uint64(1); want <= 3; want++ {
		release, err := db.Publish(ctx, store, "products")
		require.NoError(t, err)
		assert.Equal(t, want, release.Version)
	}

	names, err := manifest.NewStore(store).Releases(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 3)
}

func TestPublish_Codec(t *testing.T) {
	ctx := context.Background()

	db, err := NewBuilder(4).Euclidean().Trees(2).Build(ctx, testItems(t, 20, 4))
	require.NoError(t, err)
	defer db.Close()

	for _, codec := range []blobstore.Codec{blobstore.NoneCodec{}, blobstore.LZ4Codec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			store := blobstore.NewMemoryStore()
			release, err := db.Publish(ctx, store, "products", func(o *PublishOptions) {
				o.Codec = codec
			})
			require.NoError(t, err)
			assert.Equal(t, codec.Name(), release.Codec)

			fetched, _, err := Fetch(ctx, store, t.TempDir())
			require.NoError(t, err)
			require.NoError(t, fetched.Close())
		})
	}
}

func TestPublish_Closed(t *testing.T) {
	ctx := context.Background()

	db, err := NewBuilder(4).Euclidean().Trees(2).Build(ctx, testItems(t, 20, 4))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.Publish(ctx, blobstore.NewMemoryStore(), "products")
	require.ErrorIs(t, err, ErrClosed)
}

func TestFetch_NothingPublished(t *testing.T) {
	_, _, err := Fetch(context.Background(), blobstore.NewMemoryStore(), t.TempDir())
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestFetch_CorruptArtifact(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	db, err := NewBuilder(4).Euclidean().Trees(2).Build(ctx, testItems(t, 20, 4))
	require.NoError(t, err)
	defer db.Close()

	release, err := db.Publish(ctx, store, "products", func(o *PublishOptions) {
		o.Codec = blobstore.NoneCodec{}
	})
	require.NoError(t, err)

	// Flip a byte in the stored artifact; the checksum in the release
	// manifest no longer matches.
	blob, err := store.Open(ctx, release.Artifact)
	require.NoError(t, err)
	data, err := blobstore.ReadAll(ctx, blob)
	require.NoError(t, err)
	require.NoError(t, blob.Close())
	data[len(data)/2] ^= 0xff
	require.NoError(t, store.Put(ctx, release.Artifact, data))

	_, _, err = Fetch(ctx, store, t.TempDir())
	require.ErrorIs(t, err, ErrCorruptIndex)
}

func TestFetch_ReusesLocalCopy(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	dir := t.TempDir()

	db, err := NewBuilder(4).Euclidean().Trees(2).Build(ctx, testItems(t, 20, 4))
	require.NoError(t, err)
	defer db.Close()

	release, err := db.Publish(ctx, store, "products")
	require.NoError(t, err)

	first, _, err := Fetch(ctx, store, dir)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// Remove the artifact from the store. The staged local copy still
	// serves the same release.
	require.NoError(t, store.Delete(ctx, release.Artifact))

	second, got, err := Fetch(ctx, store, dir)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, release.Version, got.Version)
}
