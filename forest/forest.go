package forest

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/canopy/vectorspace"
)

// Options contains configuration options for a forest build.
type Options struct {
	// Trees is the number of independent partition trees.
	// More trees improve recall at the cost of build time and index size.
	Trees int

	// LeafCapacity is the maximum number of items per leaf before a tree
	// keeps splitting.
	LeafCapacity int

	// Seed is the global random seed. Each tree derives its own substream
	// from (Seed, tree index), so output is independent of scheduling.
	Seed int64

	// Concurrency bounds the number of trees built in parallel.
	// Defaults to GOMAXPROCS. Purely a performance choice; it never
	// affects the built forest.
	Concurrency int
}

// DefaultOptions contains the default configuration options for a forest
// build.
var DefaultOptions = Options{
	Trees:        100,
	LeafCapacity: 32,
	Seed:         42,
}

// TreeBuildError reports the failure of a single tree build. Any tree
// failure aborts the whole forest build.
type TreeBuildError struct {
	Tree int
	Err  error
}

func (e *TreeBuildError) Error() string {
	return fmt.Sprintf("tree %d build failed: %v", e.Tree, e.Err)
}

func (e *TreeBuildError) Unwrap() error { return e.Err }

// Forest is an ordered collection of independently built trees sharing one
// vector space. The tree order is assigned at build time and preserved
// through serialization.
type Forest struct {
	trees        []Tree
	leafCapacity int
}

// Build runs the configured number of independent tree builds over vs.
// The space is frozen before the first tree starts; builders share it
// read-only. If any tree build fails the whole build fails and no forest
// is returned.
func Build(ctx context.Context, vs *vectorspace.VectorSpace, optFns ...func(o *Options)) (*Forest, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Trees <= 0 {
		return nil, fmt.Errorf("invalid tree count: %d", opts.Trees)
	}
	if opts.LeafCapacity <= 0 {
		return nil, fmt.Errorf("invalid leaf capacity: %d", opts.LeafCapacity)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}

	vs.Freeze()

	trees := make([]Tree, opts.Trees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i := range trees {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(opts.Seed + int64(i)))
			t, err := buildTree(gctx, vs, opts.LeafCapacity, rng)
			if err != nil {
				return &TreeBuildError{Tree: i, Err: err}
			}
			trees[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Forest{trees: trees, leafCapacity: opts.LeafCapacity}, nil
}

// FromTrees reconstructs a forest around existing frozen trees, typically
// views into a memory-mapped index file.
func FromTrees(trees []Tree, leafCapacity int) *Forest {
	return &Forest{trees: trees, leafCapacity: leafCapacity}
}

// Len returns the number of trees.
func (f *Forest) Len() int {
	return len(f.trees)
}

// Tree returns the i-th tree in build order.
func (f *Forest) Tree(i int) Tree {
	return f.trees[i]
}

// Trees returns the trees in build order. The slice aliases internal
// storage.
func (f *Forest) Trees() []Tree {
	return f.trees
}

// LeafCapacity returns the leaf capacity the forest was built with.
func (f *Forest) LeafCapacity() int {
	return f.leafCapacity
}

// Validate checks the structural invariants of every tree: offsets in
// range, and each tree an exact partition of the item set (no gaps, no
// duplicates). Trees are validated in parallel.
func (f *Forest) Validate(ctx context.Context, dim int, itemCount uint64) error {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, t := range f.trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := t.Validate(dim, itemCount); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}
