// Package canopy provides an embeddable approximate nearest neighbor index.
//
// This file implements index distribution: publishing a built index to a
// blob store and fetching the current release on a serving machine.
package canopy

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/canopy/blobstore"
	"github.com/hupe1980/canopy/manifest"
	"github.com/hupe1980/canopy/persistence"
	"github.com/hupe1980/canopy/resource"
)

// PublishOptions configures Publish.
type PublishOptions struct {
	// Codec compresses the artifact in the store. Default: zstd.
	Codec blobstore.Codec

	// Controller limits upload throughput. Default: unlimited.
	Controller *resource.Controller
}

// Publish writes the index to the blob store under the given logical name
// and commits a new release manifest pointing at it.
//
// The artifact is uploaded first and the CURRENT pointer advanced last, so
// serving processes never observe a release whose artifact is missing.
// Pointer atomicity is the store's concern: local stores rename, the S3
// release store uses DynamoDB conditional writes.
func (db *DB) Publish(ctx context.Context, store blobstore.Store, name string, optFns ...func(o *PublishOptions)) (*manifest.Release, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}

	opts := PublishOptions{
		Codec: blobstore.ZstdCodec{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()
	release, err := db.publish(ctx, store, name, opts)

	var version uint64
	if release != nil {
		version = release.Version
	}
	db.logger.LogPublish(ctx, name, version, time.Since(start), err)
	db.metrics.RecordPublish(time.Since(start), err)

	if err != nil {
		return nil, err
	}
	return release, nil
}

func (db *DB) publish(ctx context.Context, store blobstore.Store, name string, opts PublishOptions) (*manifest.Release, error) {
	tmpDir, err := os.MkdirTemp("", "canopy-publish-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	local := filepath.Join(tmpDir, name+".cny")
	if err := persistence.Save(local, db.vs, db.forest); err != nil {
		return nil, translateError(err)
	}

	f, err := os.Open(local)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	artifact := fmt.Sprintf("artifacts/%s-%d.cny", name, time.Now().UnixNano())

	w, err := store.Create(ctx, artifact)
	if err != nil {
		return nil, err
	}

	cw, err := opts.Codec.NewWriter(w)
	if err != nil {
		_ = w.Close()
		return nil, err
	}

	// CRC over the uncompressed bytes, taken while streaming the upload.
	sum := crc32.New(persistence.CRC32Table)
	var dst io.Writer = cw
	if opts.Controller != nil {
		dst = resource.NewRateLimitedWriter(ctx, cw, opts.Controller)
	}

	if _, err := io.Copy(io.MultiWriter(dst, sum), f); err != nil {
		_ = cw.Close()
		_ = w.Close()
		return nil, fmt.Errorf("upload artifact: %w", err)
	}
	if err := cw.Close(); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	release := &manifest.Release{
		Name:      name,
		Artifact:  artifact,
		Codec:     opts.Codec.Name(),
		Dimension: db.Dimension(),
		Metric:    db.Metric().String(),
		ItemCount: uint64(db.Len()),
		Trees:     db.Trees(),
		Checksum:  sum.Sum32(),
	}

	if err := manifest.NewStore(store).Commit(ctx, release); err != nil {
		return nil, err
	}
	return release, nil
}

// Fetch downloads the current release from the blob store into dir and
// opens it.
//
// The artifact is decompressed and staged under a version-qualified file
// name, so repeated fetches of the same release reuse the local copy. The
// downloaded bytes are verified against the release checksum before the
// index is opened.
func Fetch(ctx context.Context, store blobstore.Store, dir string, optFns ...Option) (*DB, *manifest.Release, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	release, err := manifest.NewStore(store).Current(ctx)
	if err != nil {
		return nil, nil, err
	}

	local := filepath.Join(dir, fmt.Sprintf("%s-%06d.cny", release.Name, release.Version))
	if _, err := os.Stat(local); err != nil {
		if err := download(ctx, store, release, local, opts.controller); err != nil {
			return nil, nil, err
		}
	}

	db, err := Open(ctx, local, optFns...)
	if err != nil {
		return nil, nil, err
	}
	return db, release, nil
}

func download(ctx context.Context, store blobstore.Store, release *manifest.Release, local string, ctrl *resource.Controller) error {
	codec, err := blobstore.CodecByName(release.Codec)
	if err != nil {
		return err
	}

	b, err := store.Open(ctx, release.Artifact)
	if err != nil {
		return fmt.Errorf("open artifact %s: %w", release.Artifact, err)
	}
	defer func() { _ = b.Close() }()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	dr, err := codec.NewReader(rc)
	if err != nil {
		return err
	}
	defer func() { _ = dr.Close() }()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), filepath.Base(local)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	var src io.Reader = dr
	if ctrl != nil {
		src = resource.NewRateLimitedReader(ctx, dr, ctrl)
	}

	sum := crc32.New(persistence.CRC32Table)
	if _, err := io.Copy(io.MultiWriter(tmp, sum), src); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("download artifact: %w", err)
	}

	if sum.Sum32() != release.Checksum {
		_ = tmp.Close()
		return fmt.Errorf("%w: artifact checksum mismatch: expected %08x, got %08x",
			ErrCorruptIndex, release.Checksum, sum.Sum32())
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, local); err != nil {
		return err
	}
	tmpName = ""
	return nil
}
