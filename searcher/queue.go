package searcher

import "container/heap"

// Compile time check to ensure traversalQueue satisfies the heap interface.
var _ heap.Interface = (*traversalQueue)(nil)

// traversalItem is a pending tree node in the forest traversal.
type traversalItem struct {
	Tree   int     // Tree is the tree's position in build order.
	Node   uint32  // Node is the byte offset of the node within its tree.
	Margin float64 // Margin is the priority; lower margins are explored first.
}

// traversalQueue is a min-heap of traversal items ordered by margin.
// Equal margins break ties on (tree, node) so traversal order, and with it
// the candidate set under a fixed budget, is fully deterministic.
type traversalQueue struct {
	items []traversalItem
}

func newTraversalQueue(capacity int) *traversalQueue {
	return &traversalQueue{items: make([]traversalItem, 0, capacity)}
}

func (q *traversalQueue) Len() int { return len(q.items) }

func (q *traversalQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.Margin != b.Margin {
		return a.Margin < b.Margin
	}
	if a.Tree != b.Tree {
		return a.Tree < b.Tree
	}
	return a.Node < b.Node
}

func (q *traversalQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *traversalQueue) Push(x any) {
	q.items = append(q.items, x.(traversalItem))
}

func (q *traversalQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// push adds an item preserving the heap order.
func (q *traversalQueue) push(it traversalItem) {
	heap.Push(q, it)
}

// pop removes and returns the lowest-margin item.
func (q *traversalQueue) pop() traversalItem {
	return heap.Pop(q).(traversalItem)
}
