package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/canopy/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory Client for exercising Store without AWS.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	start, end := int64(0), int64(len(data))-1
	if r := aws.ToString(params.Range); r != "" {
		if _, err := fmt.Sscanf(r, "bytes=%d-%d", &start, &end); err != nil {
			return nil, fmt.Errorf("bad range %q: %w", r, err)
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
	}

	body := data[start : end+1]
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(params.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

// Multipart entry points required by the upload manager interface. Test
// payloads are below the part size, so the uploader never calls these.
func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart upload not supported")
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart upload not supported")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart upload not supported")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errors.New("multipart upload not supported")
}

func TestStore_PutOpen(t *testing.T) {
	ctx := context.Background()
	store := NewFromClient(newFakeS3(), "bucket")

	data := []byte("object content")
	require.NoError(t, store.Put(ctx, "artifacts/a.cny", data))

	b, err := store.Open(ctx, "artifacts/a.cny")
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, int64(len(data)), b.Size())
	got, err := blobstore.ReadAll(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStore_OpenMissing(t *testing.T) {
	store := NewFromClient(newFakeS3(), "bucket")

	_, err := store.Open(context.Background(), "missing")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_RangedReads(t *testing.T) {
	ctx := context.Background()
	store := NewFromClient(newFakeS3(), "bucket")
	require.NoError(t, store.Put(ctx, "blob", []byte("0123456789abcdef")))

	b, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	defer b.Close()

	p := make([]byte, 4)
	n, err := b.ReadAt(ctx, p, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte("abcd"), p)

	// Short read at the tail.
	n, err = b.ReadAt(ctx, p, 14)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("ef"), p[:n])

	rc, err := b.ReadRange(ctx, 2, 6)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, []byte("234567"), got)

	_, err = b.ReadRange(ctx, 100, 1)
	require.ErrorIs(t, err, io.EOF)
}

func TestStore_Create(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := NewFromClient(client, "bucket")

	w, err := store.Create(ctx, "streamed")
	require.NoError(t, err)
	_, err = w.Write([]byte("part one "))
	require.NoError(t, err)
	_, err = w.Write([]byte("part two"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, []byte("part one part two"), client.objects["streamed"])

	// Writes and double Close after Close fail.
	_, err = w.Write([]byte("late"))
	require.ErrorIs(t, err, io.ErrClosedPipe)
	require.ErrorIs(t, w.Close(), io.ErrClosedPipe)
}

func TestStore_Prefix(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := NewFromClient(client, "bucket", func(o *StoreOptions) {
		o.Prefix = "indexes"
	})

	require.NoError(t, store.Put(ctx, "releases/a.json", []byte("x")))
	assert.Contains(t, client.objects, "indexes/releases/a.json")

	names, err := store.List(ctx, "releases/")
	require.NoError(t, err)
	assert.Equal(t, []string{"releases/a.json"}, names)
}

func TestStore_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	store := NewFromClient(newFakeS3(), "bucket")

	require.NoError(t, store.Put(ctx, "releases/a-000001.json", []byte("x")))
	require.NoError(t, store.Put(ctx, "releases/a-000002.json", []byte("x")))
	require.NoError(t, store.Put(ctx, "artifacts/a.cny", []byte("x")))

	names, err := store.List(ctx, "releases/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"releases/a-000001.json",
		"releases/a-000002.json",
	}, names)

	require.NoError(t, store.Delete(ctx, "releases/a-000001.json"))
	names, err = store.List(ctx, "releases/")
	require.NoError(t, err)
	assert.Equal(t, []string{"releases/a-000002.json"}, names)
}
