package s3

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/canopy/blobstore"
	"github.com/hupe1980/canopy/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDDB is an in-memory release table. staleReads makes Query return no
// rows, which forces commits to collide on an existing version.
type fakeDDB struct {
	mu         sync.Mutex
	rows       map[uint64]string // version -> release_path
	staleReads bool
}

func newFakeDDB() *fakeDDB {
	return &fakeDDB{rows: make(map[uint64]string)}
}

func (f *fakeDDB) Query(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.staleReads || len(f.rows) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}

	versions := make([]uint64, 0, len(f.rows))
	for v := range f.rows {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })

	latest := versions[0]
	return &dynamodb.QueryOutput{
		Items: []map[string]ddbtypes.AttributeValue{{
			"version":      &ddbtypes.AttributeValueMemberN{Value: strconv.FormatUint(latest, 10)},
			"release_path": &ddbtypes.AttributeValueMemberS{Value: f.rows[latest]},
		}},
	}, nil
}

func (f *fakeDDB) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	versionAttr := params.Item["version"].(*ddbtypes.AttributeValueMemberN)
	version, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return nil, err
	}

	if _, exists := f.rows[version]; exists {
		return nil, &ddbtypes.ConditionalCheckFailedException{}
	}

	f.rows[version] = params.Item["release_path"].(*ddbtypes.AttributeValueMemberS).Value
	return &dynamodb.PutItemOutput{}, nil
}

func newReleaseStore(ddb DDBClient) *ReleaseStore {
	inner := NewFromClient(newFakeS3(), "bucket")
	return NewReleaseStore(inner, ddb, "canopy-releases", "s3://bucket")
}

func TestReleaseStore_NothingPublished(t *testing.T) {
	store := newReleaseStore(newFakeDDB())

	_, err := store.Open(context.Background(), manifest.CurrentName)
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestReleaseStore_CommitAndResolve(t *testing.T) {
	ctx := context.Background()
	store := newReleaseStore(newFakeDDB())

	require.NoError(t, store.Put(ctx, manifest.CurrentName, []byte("releases/products-000001.json")))

	b, err := store.Open(ctx, manifest.CurrentName)
	require.NoError(t, err)
	got, err := blobstore.ReadAll(ctx, b)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.Equal(t, "releases/products-000001.json", string(got))
}

func TestReleaseStore_VersionSequence(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDDB()
	store := newReleaseStore(ddb)

	for i := 1; i <= 3; i++ {
		pointer := fmt.Sprintf("releases/products-%06d.json", i)
		require.NoError(t, store.Put(ctx, manifest.CurrentName, []byte(pointer)))
	}

	// Each commit inserted a new row; CURRENT resolves to the newest.
	assert.Len(t, ddb.rows, 3)
	b, err := store.Open(ctx, manifest.CurrentName)
	require.NoError(t, err)
	got, err := blobstore.ReadAll(ctx, b)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.Equal(t, "releases/products-000003.json", string(got))
}

func TestReleaseStore_ConcurrentPublish(t *testing.T) {
	ctx := context.Background()
	ddb := newFakeDDB()
	store := newReleaseStore(ddb)

	require.NoError(t, store.Put(ctx, manifest.CurrentName, []byte("releases/products-000001.json")))

	// A publisher working from a stale read tries to claim a version that
	// was committed in the meantime.
	ddb.staleReads = true
	err := store.Put(ctx, manifest.CurrentName, []byte("releases/products-000001.json"))
	require.ErrorIs(t, err, ErrConcurrentPublish)
}

func TestReleaseStore_OtherBlobsPassThrough(t *testing.T) {
	ctx := context.Background()
	store := newReleaseStore(newFakeDDB())

	require.NoError(t, store.Put(ctx, "artifacts/a.cny", []byte("artifact bytes")))

	b, err := store.Open(ctx, "artifacts/a.cny")
	require.NoError(t, err)
	got, err := blobstore.ReadAll(ctx, b)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	assert.Equal(t, "artifact bytes", string(got))

	names, err := store.List(ctx, "artifacts/")
	require.NoError(t, err)
	assert.Equal(t, []string{"artifacts/a.cny"}, names)

	require.NoError(t, store.Delete(ctx, "artifacts/a.cny"))
}

func TestReleaseStore_PublishFlow(t *testing.T) {
	// End to end through the manifest store: commits allocate versions from
	// the release table, not from S3 reads.
	ctx := context.Background()
	store := newReleaseStore(newFakeDDB())
	ms := manifest.NewStore(store)

	r := &manifest.Release{Name: "products", Artifact: "artifacts/a.cny"}
	require.NoError(t, ms.Commit(ctx, r))
	assert.Equal(t, uint64(1), r.Version)

	got, err := ms.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, r.Artifact, got.Artifact)

	r2 := &manifest.Release{Name: "products", Artifact: "artifacts/b.cny"}
	require.NoError(t, ms.Commit(ctx, r2))
	assert.Equal(t, uint64(2), r2.Version)
}
