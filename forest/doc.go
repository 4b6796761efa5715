// Package forest builds and represents a forest of randomized partition
// trees over a shared vector space.
//
// Each tree is built by recursively splitting the full item set with random
// hyperplanes until leaves hold at most LeafCapacity items. Trees are built
// independently from per-tree random substreams, so a forest is reproducible
// for a fixed seed regardless of build concurrency.
//
// A finished tree is frozen into a flat byte layout with index-based child
// references. The same bytes are written verbatim to the index file and
// queried directly after a memory-mapped load, so there is no pointer
// fix-up on either path.
package forest
