// Package canopy provides an embeddable approximate nearest neighbor index.
//
// This file implements the fluent search API.
package canopy

import (
	"context"
	"time"

	"github.com/hupe1980/canopy/searcher"
)

// Result is one search hit. Index is the item's dense internal index, ID
// its external identifier, Distance the exact distance to the query under
// the index metric.
type Result = searcher.Result

// Search creates a fluent search builder for the given query vector.
//
// Example:
//
//	results, err := db.Search(query).
//	    KNN(10).
//	    Effort(500).
//	    Execute(ctx)
func (db *DB) Search(query []float32) *SearchBuilder {
	return &SearchBuilder{
		db:    db,
		query: query,
		k:     10, // Default k
	}
}

// SearchBuilder is a fluent builder for constructing search queries.
type SearchBuilder struct {
	db     *DB
	query  []float32
	k      int
	effort int
}

// KNN sets the number of nearest neighbors to return.
func (sb *SearchBuilder) KNN(k int) *SearchBuilder {
	sb.k = k
	return sb
}

// Effort sets the candidate budget: how many distinct items the traversal
// gathers before the exact re-rank. Higher values improve recall and cost
// proportionally more distance evaluations. Values below k are raised to k.
// Default: k times the forest size.
func (sb *SearchBuilder) Effort(n int) *SearchBuilder {
	sb.effort = n
	return sb
}

// Execute runs the search.
//
// Results are sorted by ascending exact distance, ties broken by ascending
// ID, at most k entries. Fewer than k results means the index holds fewer
// than k items.
func (sb *SearchBuilder) Execute(ctx context.Context) ([]Result, error) {
	if sb.db.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	results, err := sb.db.engine.Search(ctx, sb.query, sb.k, sb.effort)

	sb.db.logger.LogSearch(ctx, sb.k, sb.effort, time.Since(start), err)
	sb.db.metrics.RecordSearch(sb.k, time.Since(start), err)

	if err != nil {
		return nil, translateError(err)
	}
	return results, nil
}
