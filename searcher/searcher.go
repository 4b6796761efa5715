// Package searcher implements the query engine: a priority-driven traversal
// of a partition-tree forest that assembles an approximate top-K neighbor
// list.
//
// One global queue orders pending nodes across all trees by margin, the
// absolute distance proxy from the query to a node's splitting hyperplane.
// Nodes whose hyperplane lies close to the query are explored first, because
// points near a boundary are the ones a random split is most likely to have
// sent to the wrong side.
package searcher

import (
	"cmp"
	"context"
	"errors"
	"math"
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/canopy/distance"
	"github.com/hupe1980/canopy/forest"
	"github.com/hupe1980/canopy/vectorspace"
)

// ErrInvalidK is returned when k is not positive.
var ErrInvalidK = errors.New("k must be positive")

// Result represents a single ranked neighbor.
type Result struct {
	// Index is the item's internal index in the vector space.
	Index uint32

	// ID is the item's identifier.
	ID string

	// Distance is the exact distance between the query and the item under
	// the engine's metric.
	Distance float32
}

// Engine traverses a frozen forest over a shared read-only vector space.
// It holds no mutable state; any number of searches may run concurrently.
type Engine struct {
	vs     *vectorspace.VectorSpace
	forest *forest.Forest
	dist   distance.Func
	dim    int
}

// New creates a query engine over vs and f. The ranking distance follows
// the metric the space was built with.
func New(vs *vectorspace.VectorSpace, f *forest.Forest) (*Engine, error) {
	dist, err := distance.Provider(vs.Metric())
	if err != nil {
		return nil, err
	}
	return &Engine{vs: vs, forest: f, dist: dist, dim: vs.Dimension()}, nil
}

// Search returns approximately the k nearest items to query, ordered by
// ascending distance with ties broken by ascending identifier.
//
// effort is the unique-candidate budget trading latency for recall; values
// <= 0 select the default k * forest size. Fewer than k results are
// returned only when the index holds fewer than k items.
//
// If ctx ends during candidate collection the loop stops early and ranks
// whatever was gathered; the search itself is not resumable.
func (e *Engine) Search(ctx context.Context, query []float32, k, effort int) ([]Result, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != e.dim {
		return nil, &vectorspace.ErrDimensionMismatch{Expected: e.dim, Actual: len(query)}
	}
	if effort <= 0 {
		effort = k * e.forest.Len()
	}
	// A budget below k could starve the result list; fewer than k results
	// must only ever mean the index holds fewer than k items.
	if effort < k {
		effort = k
	}

	candidates := e.collect(ctx, query, effort)
	return e.rank(query, candidates, k), nil
}

// collect walks the forest until the candidate budget is met or the queue
// empties, and returns the set of unique item indices touched.
func (e *Engine) collect(ctx context.Context, query []float32, effort int) *roaring.Bitmap {
	candidates := roaring.New()

	pq := newTraversalQueue(e.forest.Len() * 2)
	for ti := range e.forest.Trees() {
		pq.push(traversalItem{Tree: ti, Node: 0, Margin: 0})
	}

	var pops int
	for pq.Len() > 0 && candidates.GetCardinality() < uint64(effort) {
		if pops&63 == 0 && ctx.Err() != nil {
			break // rank whatever was gathered so far
		}
		pops++

		it := pq.pop()
		t := e.forest.Tree(it.Tree)

		if t.IsLeaf(it.Node) {
			for _, idx := range t.Items(it.Node) {
				candidates.Add(idx)
			}
			continue
		}

		m := t.Margin(it.Node, query, e.dim)
		left, right := t.Children(it.Node)
		natural, other := left, right
		if m > 0 {
			natural, other = right, left
		}
		// The natural side keeps the path's priority; the other side pays
		// for crossing this hyperplane. Margins are monotone non-decreasing
		// from root to leaf.
		pq.push(traversalItem{Tree: it.Tree, Node: natural, Margin: it.Margin})
		pq.push(traversalItem{Tree: it.Tree, Node: other, Margin: math.Max(it.Margin, math.Abs(m))})
	}

	return candidates
}

// rank computes exact distances for every candidate and returns the best k.
func (e *Engine) rank(query []float32, candidates *roaring.Bitmap, k int) []Result {
	results := make([]Result, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		idx := it.Next()
		results = append(results, Result{
			Index:    idx,
			ID:       e.vs.ID(idx),
			Distance: e.dist(query, e.vs.Vector(idx)),
		})
	}

	slices.SortFunc(results, func(a, b Result) int {
		if a.Distance != b.Distance {
			return cmp.Compare(a.Distance, b.Distance)
		}
		return strings.Compare(a.ID, b.ID)
	})

	if len(results) > k {
		results = results[:k:k]
	}
	return results
}
