package canopy

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/canopy/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Immutable(t *testing.T) {
	base := NewBuilder(4)

	euclidean := base.Euclidean()
	wide := base.Trees(500)

	// Deriving configurations leaves the base untouched.
	assert.NotEqual(t, base.metric, euclidean.metric)
	assert.Equal(t, 100, base.trees)
	assert.Equal(t, 500, wide.trees)
}

func TestBuilder_Defaults(t *testing.T) {
	b := NewBuilder(128)

	assert.Equal(t, 128, b.dimension)
	assert.Equal(t, 100, b.trees)
	assert.Equal(t, 32, b.leafCapacity)
	assert.Equal(t, int64(42), b.seed)
}

func TestBuilder_NoItems(t *testing.T) {
	_, err := NewBuilder(4).Build(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoItems)

	_, err = NewBuilder(4).Build(context.Background(), []Item{})
	require.ErrorIs(t, err, ErrNoItems)
}

func TestBuilder_DuplicateID(t *testing.T) {
	items := []Item{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "a", Vector: []float32{0, 1}},
	}

	_, err := NewBuilder(2).Euclidean().Build(context.Background(), items)

	var dup *ErrDuplicateID
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.ID)
}

func TestBuilder_DimensionMismatch(t *testing.T) {
	items := []Item{
		{ID: "a", Vector: []float32{1, 0, 0}},
	}

	_, err := NewBuilder(2).Euclidean().Build(context.Background(), items)

	var mismatch *ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 2, mismatch.Expected)
	assert.Equal(t, 3, mismatch.Actual)
}

func TestBuilder_InvalidDimension(t *testing.T) {
	items := []Item{{ID: "a", Vector: nil}}

	_, err := NewBuilder(0).Build(context.Background(), items)

	var invalid *ErrInvalidDimension
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 0, invalid.Dimension)
}

func TestBuilder_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := testItems(t, 100, 8)
	_, err := NewBuilder(8).Euclidean().Build(ctx, items)
	require.ErrorIs(t, err, ErrBuildFailure)
}

func TestBuilder_WorkerSlots(t *testing.T) {
	items := testItems(t, 50, 8)
	ctrl := resource.NewController(resource.Config{MaxBuildWorkers: 1})
	b := NewBuilder(8).Euclidean().Trees(2).Resources(ctrl)

	// A held slot makes Build wait until the slot frees up.
	require.True(t, ctrl.TryAcquireBuildWorker())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := b.Build(ctx, items)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ctrl.ReleaseBuildWorker()

	db, err := b.Build(context.Background(), items)
	require.NoError(t, err)
	defer db.Close()

	// The slot is returned once the build finishes.
	require.True(t, ctrl.TryAcquireBuildWorker())
	ctrl.ReleaseBuildWorker()
}

func TestBuilder_DeterministicBuilds(t *testing.T) {
	ctx := context.Background()
	items := testItems(t, 100, 8)

	build := func(concurrency int) *DB {
		db, err := NewBuilder(8).
			Euclidean().
			Trees(4).
			Seed(1234).
			Concurrency(concurrency).
			Build(ctx, items)
		require.NoError(t, err)
		return db
	}

	a := build(1)
	defer a.Close()
	b := build(8)
	defer b.Close()

	query := items[0].Vector
	ra, err := a.Search(query).KNN(20).Execute(ctx)
	require.NoError(t, err)
	rb, err := b.Search(query).KNN(20).Execute(ctx)
	require.NoError(t, err)

	assert.Equal(t, ra, rb)
}
