package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/hupe1980/canopy/resource"
	"golang.org/x/sync/singleflight"
)

// CachingStore wraps a remote Store and caches fetched blobs on local disk.
// Cached blobs are served memory mapped, which lets a serving process open
// a remote index artifact the same way it opens a local one.
//
// Writes pass through to the remote store and invalidate the cache entry.
type CachingStore struct {
	inner Store
	cache *LocalStore
	ctrl  *resource.Controller

	group singleflight.Group
}

// NewCachingStore creates a CachingStore that caches blobs under cacheDir.
// ctrl limits fetch IO throughput; nil means unlimited.
func NewCachingStore(inner Store, cacheDir string, ctrl *resource.Controller) (*CachingStore, error) {
	cache, err := NewLocalStore(cacheDir)
	if err != nil {
		return nil, err
	}
	return &CachingStore{inner: inner, cache: cache, ctrl: ctrl}, nil
}

// cacheName flattens a blob name into a single cache file name.
func cacheName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:16])
}

// Open returns a memory-mapped blob, fetching it from the remote store on
// a cache miss. Concurrent opens of the same blob share one fetch.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	local := cacheName(name)

	if b, err := s.cache.Open(ctx, local); err == nil {
		return b, nil
	}

	_, err, _ := s.group.Do(local, func() (any, error) {
		return nil, s.fetch(ctx, name, local)
	})
	if err != nil {
		return nil, err
	}

	return s.cache.Open(ctx, local)
}

func (s *CachingStore) fetch(ctx context.Context, name, local string) error {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	w, err := s.cache.Create(ctx, local)
	if err != nil {
		return err
	}

	var r io.Reader = rc
	if s.ctrl != nil {
		r = resource.NewRateLimitedReader(ctx, rc, s.ctrl)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		_ = s.cache.Delete(ctx, local)
		return err
	}
	return w.Close()
}

// Create passes through to the remote store and drops any stale cache entry.
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	_ = s.cache.Delete(ctx, cacheName(name))
	return s.inner.Create(ctx, name)
}

// Put passes through to the remote store and drops any stale cache entry.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	_ = s.cache.Delete(ctx, cacheName(name))
	return s.inner.Put(ctx, name, data)
}

// Delete removes the blob remotely and from the cache.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	_ = s.cache.Delete(ctx, cacheName(name))
	return s.inner.Delete(ctx, name)
}

// List lists the remote store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}
