package forest

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/hupe1980/canopy/distance"
	"github.com/hupe1980/canopy/vectorspace"
)

// buildNode is the mutable arena form of a node. Children are arena
// indices; freeze converts them to byte offsets.
type buildNode struct {
	leaf   bool
	normal []float32
	offset float64
	left   int32
	right  int32
	items  []uint32
}

// treeBuilder recursively partitions an item set into a binary tree.
// One builder serves one tree and owns one random substream.
type treeBuilder struct {
	vs           *vectorspace.VectorSpace
	sp           *splitter
	leafCapacity int
	arena        []buildNode
}

// buildTree builds a single frozen tree over the full item set of vs.
// The rng must be a substream private to this tree.
func buildTree(ctx context.Context, vs *vectorspace.VectorSpace, leafCapacity int, rng *rand.Rand) (Tree, error) {
	b := &treeBuilder{
		vs:           vs,
		sp:           &splitter{vs: vs, rng: rng, angular: vs.Metric() == distance.MetricAngular},
		leafCapacity: leafCapacity,
	}

	items := make([]uint32, vs.Len())
	for i := range items {
		items[i] = uint32(i)
	}

	root, err := b.build(ctx, items)
	if err != nil {
		return Tree{}, err
	}
	return TreeFromBytes(b.freeze(root)), nil
}

// build partitions items and returns the arena index of the subtree root.
func (b *treeBuilder) build(ctx context.Context, items []uint32) (int32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if len(items) <= b.leafCapacity {
		return b.emitLeaf(items), nil
	}

	for attempt := 0; attempt < maxDegenerateRetries; attempt++ {
		h, ok := b.sp.plane(items)
		if !ok {
			// Non-splittable: a cluster of identical vectors.
			break
		}

		var left, right []uint32
		for _, it := range items {
			if h.side(b.vs.Vector(it)) == 0 {
				left = append(left, it)
			} else {
				right = append(right, it)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			continue // degenerate split, retry with a fresh hyperplane
		}

		li, err := b.build(ctx, left)
		if err != nil {
			return 0, err
		}
		ri, err := b.build(ctx, right)
		if err != nil {
			return 0, err
		}
		idx := int32(len(b.arena))
		b.arena = append(b.arena, buildNode{
			normal: h.normal,
			offset: h.offset,
			left:   li,
			right:  ri,
		})
		return idx, nil
	}

	// Oversized leaf: bounds recursion depth on near-duplicate clusters.
	return b.emitLeaf(items), nil
}

func (b *treeBuilder) emitLeaf(items []uint32) int32 {
	idx := int32(len(b.arena))
	b.arena = append(b.arena, buildNode{leaf: true, items: items})
	return idx
}

// freeze encodes the arena rooted at root into the flat pre-order layout
// shared by the file format and the query path.
func (b *treeBuilder) freeze(root int32) []byte {
	buf := make([]byte, b.frozenSize(root))
	b.encode(buf, root, 0)
	return buf
}

func (b *treeBuilder) frozenSize(idx int32) int {
	n := &b.arena[idx]
	if n.leaf {
		return leafNodeSize(len(n.items))
	}
	return internalNodeSize(b.vs.Dimension()) + b.frozenSize(n.left) + b.frozenSize(n.right)
}

// encode writes the subtree at idx to buf starting at off and returns the
// offset one past its last byte.
func (b *treeBuilder) encode(buf []byte, idx int32, off int) int {
	n := &b.arena[idx]

	if n.leaf {
		buf[off] = tagLeaf
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(len(n.items)))
		p := off + leafFixedSize
		for _, it := range n.items {
			binary.LittleEndian.PutUint32(buf[p:], it)
			p += 4
		}
		return off + leafNodeSize(len(n.items))
	}

	dim := b.vs.Dimension()
	left := off + internalNodeSize(dim)
	right := b.encode(buf, n.left, left)
	end := b.encode(buf, n.right, right)

	buf[off] = tagInternal
	binary.LittleEndian.PutUint32(buf[off+4:], uint32(left))
	binary.LittleEndian.PutUint32(buf[off+8:], uint32(right))
	binary.LittleEndian.PutUint64(buf[off+16:], math.Float64bits(n.offset))
	p := off + internalFixedSize
	for _, x := range n.normal {
		binary.LittleEndian.PutUint32(buf[p:], math.Float32bits(x))
		p += 4
	}
	return end
}
