package forest

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/canopy/internal/math32"
)

// Frozen node layout, little-endian, offsets relative to the tree blob.
// The blob must be 8-byte aligned so the float64 hyperplane offset and the
// float32/uint32 arrays can be read in place.
//
//	internal: tag u8 | pad[3] | left u32 | right u32 | pad[4] |
//	          offset f64 | normal dim*f32 | pad to 8
//	leaf:     tag u8 | pad[3] | count u32 | items count*u32 | pad to 8
const (
	tagLeaf     = 0x00
	tagInternal = 0x01

	internalFixedSize = 24 // bytes before the normal vector
	leafFixedSize     = 8  // bytes before the item indices
)

// Tree is a frozen partition tree: a flat byte blob of pre-order nodes.
// It is immutable and safe for concurrent readers. The blob may alias a
// memory-mapped file region.
type Tree struct {
	data []byte
}

// TreeFromBytes wraps an existing frozen blob. The blob is not copied and
// must stay valid (and 8-byte aligned) for the tree's lifetime.
func TreeFromBytes(data []byte) Tree {
	return Tree{data: data}
}

// Bytes returns the frozen blob. The slice aliases internal storage.
func (t Tree) Bytes() []byte {
	return t.data
}

// Root returns the byte offset of the root node.
func (t Tree) Root() uint32 {
	return 0
}

// IsLeaf reports whether the node at off is a leaf.
func (t Tree) IsLeaf(off uint32) bool {
	return t.data[off] == tagLeaf
}

// Children returns the byte offsets of the left and right child of the
// internal node at off.
func (t Tree) Children(off uint32) (left, right uint32) {
	left = binary.LittleEndian.Uint32(t.data[off+4:])
	right = binary.LittleEndian.Uint32(t.data[off+8:])
	return left, right
}

// PlaneOffset returns the hyperplane offset of the internal node at off.
func (t Tree) PlaneOffset(off uint32) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(t.data[off+16:]))
}

// Normal returns the hyperplane normal of the internal node at off.
// The slice aliases the blob.
func (t Tree) Normal(off uint32, dim int) []float32 {
	p := unsafe.Pointer(&t.data[off+internalFixedSize])
	return unsafe.Slice((*float32)(p), dim)
}

// Items returns the item indices of the leaf node at off.
// The slice aliases the blob.
func (t Tree) Items(off uint32) []uint32 {
	n := binary.LittleEndian.Uint32(t.data[off+4:])
	if n == 0 {
		return nil
	}
	p := unsafe.Pointer(&t.data[off+leafFixedSize])
	return unsafe.Slice((*uint32)(p), n)
}

// Margin returns the signed distance proxy of query to the splitting
// hyperplane of the internal node at off: dot(normal, query) - offset.
func (t Tree) Margin(off uint32, query []float32, dim int) float64 {
	return float64(math32.Dot(t.Normal(off, dim), query)) - t.PlaneOffset(off)
}

// Side returns 0 for the left child and 1 for the right child of the
// internal node at off, for the given query. Exact-zero margins resolve
// to the left side.
func (t Tree) Side(off uint32, query []float32, dim int) int {
	if t.Margin(off, query, dim) > 0 {
		return 1
	}
	return 0
}

func internalNodeSize(dim int) int {
	return align8(internalFixedSize + 4*dim)
}

func leafNodeSize(count int) int {
	return align8(leafFixedSize + 4*count)
}

func align8(n int) int {
	return (n + 7) &^ 7
}

// Validate walks the tree and checks its structural invariants: every
// child offset stays inside the blob, every leaf item index is below
// itemCount, and every item appears in exactly one leaf. It returns the
// set of covered items so callers can compare forests tree by tree.
func (t Tree) Validate(dim int, itemCount uint64) (*roaring.Bitmap, error) {
	if len(t.data) == 0 {
		return nil, fmt.Errorf("empty tree blob")
	}
	if len(t.data)%8 != 0 {
		return nil, fmt.Errorf("tree blob length %d is not 8-byte aligned", len(t.data))
	}

	seen := roaring.New()
	var total uint64

	// Iterative DFS; frozen offsets are trusted only after bounds checks.
	stack := []uint32{t.Root()}
	for len(stack) > 0 {
		off := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if int(off)+leafFixedSize > len(t.data) {
			return nil, fmt.Errorf("node offset %d out of range", off)
		}
		switch t.data[off] {
		case tagLeaf:
			n := binary.LittleEndian.Uint32(t.data[off+4:])
			if int(off)+leafNodeSize(int(n)) > len(t.data) {
				return nil, fmt.Errorf("leaf at %d overflows blob", off)
			}
			for _, it := range t.Items(off) {
				if uint64(it) >= itemCount {
					return nil, fmt.Errorf("leaf at %d references item %d beyond item count %d", off, it, itemCount)
				}
				if seen.Contains(it) {
					return nil, fmt.Errorf("item %d appears in more than one leaf", it)
				}
				seen.Add(it)
			}
			total += uint64(n)
		case tagInternal:
			if int(off)+internalNodeSize(dim) > len(t.data) {
				return nil, fmt.Errorf("internal node at %d overflows blob", off)
			}
			left, right := t.Children(off)
			if left <= off || right <= off {
				return nil, fmt.Errorf("internal node at %d has non-forward child offsets", off)
			}
			stack = append(stack, right, left)
		default:
			return nil, fmt.Errorf("unknown node tag 0x%02x at offset %d", t.data[off], off)
		}
	}

	if total != itemCount {
		return nil, fmt.Errorf("tree covers %d items, want %d", total, itemCount)
	}
	return seen, nil
}
