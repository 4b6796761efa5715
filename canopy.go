package canopy

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hupe1980/canopy/distance"
	"github.com/hupe1980/canopy/forest"
	"github.com/hupe1980/canopy/persistence"
	"github.com/hupe1980/canopy/searcher"
	"github.com/hupe1980/canopy/vectorspace"
)

// DB is a searchable index: a frozen vector space plus the forest built
// over it. A DB is either built in memory via Builder.Build or opened from
// a persisted artifact via Open; both answer queries identically.
//
// DB is safe for concurrent searches. Close releases the underlying file
// mapping for opened indexes and must not race with in-flight searches.
type DB struct {
	vs     *vectorspace.VectorSpace
	forest *forest.Forest
	engine *searcher.Engine
	index  *persistence.Index // non-nil when opened from a file

	logger  *Logger
	metrics MetricsCollector
	closed  atomic.Bool
}

// Open memory-maps a persisted index file and returns a searchable DB.
//
// The file is validated structurally (and against its checksum unless
// disabled via WithChecksumValidation) before any query runs; a file that
// fails validation is rejected with ErrCorruptIndex.
func Open(ctx context.Context, path string, optFns ...Option) (*DB, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	start := time.Now()
	ix, err := persistence.Load(ctx, path, func(o *persistence.LoadOptions) {
		o.VerifyChecksum = opts.verifyChecksum
		o.Controller = opts.controller
	})

	var items uint64
	if ix != nil {
		items = ix.Header.ItemCount
	}
	opts.logger.LogLoad(ctx, path, items, time.Since(start), err)
	opts.metrics.RecordLoad(time.Since(start), err)

	if err != nil {
		return nil, translateError(err)
	}

	engine, err := searcher.New(ix.Space, ix.Forest)
	if err != nil {
		_ = ix.Close()
		return nil, translateError(err)
	}

	return &DB{
		vs:      ix.Space,
		forest:  ix.Forest,
		engine:  engine,
		index:   ix,
		logger:  opts.logger,
		metrics: opts.metrics,
	}, nil
}

// Save writes the index to path as a single self-describing artifact.
// The write is atomic: the file appears under its final name only after
// all content is flushed to disk.
func (db *DB) Save(ctx context.Context, path string) error {
	if db.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	err := persistence.Save(path, db.vs, db.forest)
	db.logger.LogSave(ctx, path, time.Since(start), err)

	return translateError(err)
}

// Close releases resources held by the DB. For indexes opened from a
// file this unmaps the artifact; in-memory indexes only mark themselves
// closed. Close is idempotent.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	if db.index != nil {
		return db.index.Close()
	}
	return nil
}

// Dimension returns the vector dimensionality of the index.
// Serving layers should verify this against their feature extractor
// before answering queries.
func (db *DB) Dimension() int {
	return db.vs.Dimension()
}

// Metric returns the distance metric the index was built with.
func (db *DB) Metric() distance.Metric {
	return db.vs.Metric()
}

// Len returns the number of indexed items.
func (db *DB) Len() int {
	return db.vs.Len()
}

// Trees returns the forest size.
func (db *DB) Trees() int {
	return db.forest.Len()
}

// ID returns the external identifier of the item at the given internal
// index.
func (db *DB) ID(i uint32) string {
	return db.vs.ID(i)
}

// Payload returns the payload stored with the item at the given internal
// index, or nil.
func (db *DB) Payload(i uint32) []byte {
	return db.vs.Payload(i)
}

// Vector returns a read-only view of the vector at the given internal
// index. The slice is valid until Close.
func (db *DB) Vector(i uint32) []float32 {
	return db.vs.Vector(i)
}

// Contains reports whether the given external ID is indexed.
func (db *DB) Contains(id string) bool {
	return db.vs.Contains(id)
}
