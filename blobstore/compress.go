package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses blob content on write and decompresses it on read.
type Codec interface {
	// Name identifies the codec. It is recorded in release manifests so
	// readers can pick the matching codec.
	Name() string

	// NewWriter returns a writer that compresses into w.
	// The returned writer must be closed to flush the stream.
	NewWriter(w io.Writer) (io.WriteCloser, error)

	// NewReader returns a reader that decompresses from r.
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// CodecByName returns the codec registered under name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "none", "":
		return NoneCodec{}, nil
	case "zstd":
		return ZstdCodec{}, nil
	case "lz4":
		return LZ4Codec{}, nil
	default:
		return nil, fmt.Errorf("blobstore: unknown codec %q", name)
	}
}

// NoneCodec passes data through unchanged.
type NoneCodec struct{}

func (NoneCodec) Name() string { return "none" }

func (NoneCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (NoneCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// ZstdCodec compresses with zstandard. Good ratio at high speed, the
// default choice for published index artifacts.
type ZstdCodec struct{}

func (ZstdCodec) Name() string { return "zstd" }

func (ZstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

func (ZstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zr.IOReadCloser(), nil
}

// LZ4Codec compresses with lz4. Lower ratio than zstd but faster to
// decompress, useful when fetch latency is dominated by CPU.
type LZ4Codec struct{}

func (LZ4Codec) Name() string { return "lz4" }

func (LZ4Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return lz4.NewWriter(w), nil
}

func (LZ4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

// CompressingStore wraps a Store and compresses blob content with a Codec.
// Reads decompress the full blob into memory; artifacts are consumed
// wholesale by Fetch, so random access over compressed content is not
// needed.
type CompressingStore struct {
	inner Store
	codec Codec
}

// NewCompressingStore creates a CompressingStore.
// A nil codec means NoneCodec.
func NewCompressingStore(inner Store, codec Codec) *CompressingStore {
	if codec == nil {
		codec = NoneCodec{}
	}
	return &CompressingStore{inner: inner, codec: codec}
}

// Codec returns the codec in use.
func (s *CompressingStore) Codec() Codec {
	return s.codec
}

func (s *CompressingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = b.Close() }()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	dr, err := s.codec.NewReader(rc)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dr.Close() }()

	data, err := io.ReadAll(dr)
	if err != nil {
		return nil, fmt.Errorf("blobstore: decompress %s: %w", name, err)
	}
	return &memoryBlob{data: data}, nil
}

func (s *CompressingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	w, err := s.inner.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	cw, err := s.codec.NewWriter(w)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	return &compressingWritableBlob{inner: w, cw: cw}, nil
}

func (s *CompressingStore) Put(ctx context.Context, name string, data []byte) error {
	w, err := s.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *CompressingStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

func (s *CompressingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

type compressingWritableBlob struct {
	inner WritableBlob
	cw    io.WriteCloser
}

func (w *compressingWritableBlob) Write(p []byte) (int, error) {
	return w.cw.Write(p)
}

func (w *compressingWritableBlob) Sync() error {
	return w.inner.Sync()
}

func (w *compressingWritableBlob) Close() error {
	if err := w.cw.Close(); err != nil {
		_ = w.inner.Close()
		return err
	}
	return w.inner.Close()
}
