package canopy

import (
	"errors"
	"fmt"

	"github.com/hupe1980/canopy/forest"
	"github.com/hupe1980/canopy/persistence"
	"github.com/hupe1980/canopy/searcher"
	"github.com/hupe1980/canopy/vectorspace"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrClosed is returned when operating on a closed index.
	ErrClosed = errors.New("index is closed")

	// ErrBuildFailure is returned when any tree of a forest build fails.
	ErrBuildFailure = errors.New("forest build failed")

	// ErrCorruptIndex is returned when a persisted index fails structural
	// or checksum validation.
	ErrCorruptIndex = persistence.ErrCorruptIndex

	// ErrNoItems is returned when building an index from an empty item set.
	ErrNoItems = errors.New("no items to index")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrDuplicateID indicates an item ID that is already present.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDuplicateID struct {
	ID    string
	cause error
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %q", e.ID)
}

func (e *ErrDuplicateID) Unwrap() error { return e.cause }

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
	cause     error
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

func (e *ErrInvalidDimension) Unwrap() error { return e.cause }

// translateError normalizes subpackage errors into the public surface.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *vectorspace.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var dup *vectorspace.ErrDuplicateID
	if errors.As(err, &dup) {
		return &ErrDuplicateID{ID: dup.ID, cause: err}
	}
	var id *vectorspace.ErrInvalidDimension
	if errors.As(err, &id) {
		return &ErrInvalidDimension{Dimension: id.Dimension, cause: err}
	}

	if errors.Is(err, searcher.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}

	var tbe *forest.TreeBuildError
	if errors.As(err, &tbe) {
		return fmt.Errorf("%w: %w", ErrBuildFailure, err)
	}

	return err
}
