// Package vectorspace provides typed, validated storage of fixed-dimension
// vectors keyed by an opaque item identifier.
//
// Vectors are stored in one contiguous float32 arena so the whole space can
// be written as a single raw section and mapped back without per-item
// pointer fix-up. A space built through Add is mutable until a forest build
// starts; a space reconstructed from a mapped index file is frozen.
package vectorspace

import (
	"errors"
	"fmt"

	"github.com/hupe1980/canopy/distance"
)

// ErrFrozen is returned when inserting into a read-only space.
var ErrFrozen = errors.New("vector space is frozen")

// ErrDimensionMismatch indicates a vector whose length differs from the
// space's configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrDuplicateID indicates an insert with an identifier that is already
// present. The first insert wins; the space is left unchanged.
type ErrDuplicateID struct {
	ID string
}

func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %q", e.ID)
}

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// VectorSpace stores items as (id, vector, optional payload) triples and
// assigns each a dense internal index in insertion order.
type VectorSpace struct {
	dim    int
	metric distance.Metric

	data     []float32 // contiguous, count*dim
	ids      []string
	payloads [][]byte // nil when no item carries a payload

	byID   map[string]uint32
	frozen bool
}

// New creates an empty vector space with the given dimensionality and metric.
func New(dim int, metric distance.Metric) (*VectorSpace, error) {
	if dim <= 0 {
		return nil, &ErrInvalidDimension{Dimension: dim}
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("unsupported metric: %v", metric)
	}
	return &VectorSpace{
		dim:    dim,
		metric: metric,
		byID:   make(map[string]uint32),
	}, nil
}

// FromParts reconstructs a frozen space around existing storage, typically
// views into a memory-mapped index file. The data slice must hold
// len(ids)*dim float32 values and must stay valid for the lifetime of the
// space; it is not copied.
func FromParts(dim int, metric distance.Metric, data []float32, ids []string, payloads [][]byte) (*VectorSpace, error) {
	if dim <= 0 {
		return nil, &ErrInvalidDimension{Dimension: dim}
	}
	if !metric.Valid() {
		return nil, fmt.Errorf("unsupported metric: %v", metric)
	}
	if len(data) != len(ids)*dim {
		return nil, fmt.Errorf("vector data length %d does not match %d items of dimension %d", len(data), len(ids), dim)
	}
	if payloads != nil && len(payloads) != len(ids) {
		return nil, fmt.Errorf("payload count %d does not match item count %d", len(payloads), len(ids))
	}
	return &VectorSpace{
		dim:      dim,
		metric:   metric,
		data:     data,
		ids:      ids,
		payloads: payloads,
		frozen:   true,
	}, nil
}

// Add stores a vector under id and returns the item's internal index.
// The vector is copied; callers keep ownership of vec.
func (s *VectorSpace) Add(id string, vec []float32) (uint32, error) {
	return s.AddWithPayload(id, vec, nil)
}

// AddWithPayload stores a vector with an optional small payload, typically
// a key into an external display-record store.
func (s *VectorSpace) AddWithPayload(id string, vec []float32, payload []byte) (uint32, error) {
	if s.frozen {
		return 0, ErrFrozen
	}
	if len(vec) != s.dim {
		return 0, &ErrDimensionMismatch{Expected: s.dim, Actual: len(vec)}
	}
	if _, ok := s.byID[id]; ok {
		return 0, &ErrDuplicateID{ID: id}
	}

	idx := uint32(len(s.ids))
	s.data = append(s.data, vec...)
	s.ids = append(s.ids, id)
	s.byID[id] = idx

	if payload != nil && s.payloads == nil {
		s.payloads = make([][]byte, idx)
	}
	if s.payloads != nil {
		s.payloads = append(s.payloads, append([]byte(nil), payload...))
	}

	return idx, nil
}

// Freeze marks the space read-only. Freezing is idempotent.
func (s *VectorSpace) Freeze() {
	s.frozen = true
}

// Frozen reports whether the space rejects further inserts.
func (s *VectorSpace) Frozen() bool {
	return s.frozen
}

// Len returns the number of stored items.
func (s *VectorSpace) Len() int {
	return len(s.ids)
}

// Dimension returns the fixed vector dimensionality D.
func (s *VectorSpace) Dimension() int {
	return s.dim
}

// Metric returns the distance metric fixed at construction.
func (s *VectorSpace) Metric() distance.Metric {
	return s.metric
}

// Vector returns the stored vector at the given internal index.
// The returned slice aliases internal storage; callers read, never mutate.
func (s *VectorSpace) Vector(i uint32) []float32 {
	off := int(i) * s.dim
	return s.data[off : off+s.dim : off+s.dim]
}

// ID returns the identifier of the item at the given internal index.
func (s *VectorSpace) ID(i uint32) string {
	return s.ids[i]
}

// IDs returns the identifiers in internal-index order.
// The returned slice aliases internal storage.
func (s *VectorSpace) IDs() []string {
	return s.ids
}

// Payload returns the payload of the item at the given internal index,
// or nil if none was stored.
func (s *VectorSpace) Payload(i uint32) []byte {
	if s.payloads == nil || int(i) >= len(s.payloads) {
		return nil
	}
	return s.payloads[i]
}

// Payloads returns the per-item payloads, or nil if no item has one.
func (s *VectorSpace) Payloads() [][]byte {
	return s.payloads
}

// Contains reports whether an item with the given id exists.
// Only available on spaces built through Add.
func (s *VectorSpace) Contains(id string) bool {
	if s.byID == nil {
		return false
	}
	_, ok := s.byID[id]
	return ok
}

// Data returns the raw contiguous vector storage in internal-index order.
// The returned slice aliases internal storage.
func (s *VectorSpace) Data() []float32 {
	return s.data
}
