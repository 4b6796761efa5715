// Package blobstore provides storage abstraction for published index artifacts.
//
// A Store holds immutable blobs (index files, release manifests) addressed by
// name. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: Local filesystem with mmap support
//   - MemoryStore: In-memory store for testing
//   - s3.Store: Amazon S3 with range reads and managed uploads
//   - minio.Store: MinIO and other S3-compatible storage
//
// # Wrappers
//
//   - CompressingStore: transparent zstd/lz4 compression of stored blobs
//   - CachingStore: fetch-to-local-disk caching so remote artifacts can be
//     memory mapped by the serving process
package blobstore
