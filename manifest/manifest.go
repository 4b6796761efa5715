// Package manifest tracks published index releases.
//
// A Release describes one published index artifact. The CURRENT pointer
// names the release manifest serving processes should load. Both live in a
// blobstore.Store, so the same publish flow works against a local
// directory, S3, or MinIO. Pointer atomicity comes from the store: local
// stores rename, the S3 release store uses DynamoDB conditional writes.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/canopy/blobstore"
)

const (
	// CurrentName is the blob holding the name of the current release
	// manifest.
	CurrentName = "CURRENT"

	// ReleasePrefix is the blob name prefix for release manifests.
	ReleasePrefix = "releases/"

	// FormatVersion is the manifest schema version.
	FormatVersion = 1
)

// Release describes a published index artifact.
type Release struct {
	Format    int       `json:"format"`
	Version   uint64    `json:"version"`
	Name      string    `json:"name"`     // logical index name, e.g. "products"
	Artifact  string    `json:"artifact"` // blob name of the index file
	Codec     string    `json:"codec"`    // compression codec of the artifact
	Dimension int       `json:"dimension"`
	Metric    string    `json:"metric"`
	ItemCount uint64    `json:"item_count"`
	Trees     int       `json:"trees"`
	Checksum  uint32    `json:"checksum"` // CRC32 of the uncompressed artifact
	CreatedAt time.Time `json:"created_at"`
}

// Store manages release manifests and the CURRENT pointer.
type Store struct {
	blobs blobstore.Store
	mu    sync.Mutex
}

// NewStore creates a manifest store over the given blob store.
func NewStore(blobs blobstore.Store) *Store {
	return &Store{blobs: blobs}
}

// Current loads the release named by the CURRENT pointer.
// Returns blobstore.ErrNotFound if nothing has been published yet.
func (s *Store) Current(ctx context.Context) (*Release, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pointer, err := s.readBlob(ctx, CurrentName)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(string(pointer))
	data, err := s.readBlob(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("manifest: read release %s: %w", name, err)
	}

	var r Release
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("manifest: decode release %s: %w", name, err)
	}

	if r.Format != FormatVersion {
		return nil, fmt.Errorf("manifest: unsupported format version %d (expected %d)", r.Format, FormatVersion)
	}

	return &r, nil
}

// Commit writes a new release manifest and advances the CURRENT pointer.
// The release version is assigned from the previous current release.
func (s *Store) Commit(ctx context.Context, r *Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.Format = FormatVersion
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	prev, err := s.currentLocked(ctx)
	switch {
	case err == nil:
		r.Version = prev.Version + 1
	case isNotFound(err):
		r.Version = 1
	default:
		return err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s%s-%06d.json", ReleasePrefix, r.Name, r.Version)
	if err := s.blobs.Put(ctx, name, data); err != nil {
		return fmt.Errorf("manifest: write release: %w", err)
	}

	if err := s.blobs.Put(ctx, CurrentName, []byte(name)); err != nil {
		return fmt.Errorf("manifest: update current pointer: %w", err)
	}

	return nil
}

// Releases lists the names of all release manifests, oldest first.
func (s *Store) Releases(ctx context.Context) ([]string, error) {
	return s.blobs.List(ctx, ReleasePrefix)
}

func (s *Store) currentLocked(ctx context.Context) (*Release, error) {
	pointer, err := s.readBlob(ctx, CurrentName)
	if err != nil {
		return nil, err
	}

	data, err := s.readBlob(ctx, strings.TrimSpace(string(pointer)))
	if err != nil {
		return nil, err
	}

	var r Release
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) readBlob(ctx context.Context, name string) ([]byte, error) {
	b, err := s.blobs.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()
	return blobstore.ReadAll(ctx, b)
}

func isNotFound(err error) bool {
	return errors.Is(err, blobstore.ErrNotFound)
}
