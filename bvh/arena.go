package bvh

import (
	"math"

	"github.com/aukilabs/spatial/geometry"
)

const none = uint32(math.MaxUint32)

type nodeKind uint8

const (
	freeNode nodeKind = iota
	leafNode
	subtreeNode
)

func (k nodeKind) String() string {
	switch k {
	case leafNode:
		return "leaf"
	case subtreeNode:
		return "subtree"
	default:
		return "free"
	}
}

// A tree node. Leaves hold a key, subtrees hold the index of their first
// child. Children of a subtree are chained through prev and next.
type node[T any] struct {
	parent uint32
	prev   uint32
	next   uint32

	kind       nodeKind
	firstChild uint32
	key        T

	aabb   geometry.AABB
	weight int32

	generation uint32
}

// A node store addressed by index. Released indexes are kept in a free list
// and handed out again in priority.
type arena[T any] struct {
	nodes []node[T]
	free  []uint32
}

func (a *arena[T]) allocate(n node[T]) uint32 {
	if l := len(a.free); l != 0 {
		index := a.free[l-1]
		a.free = a.free[:l-1]

		n.generation = a.nodes[index].generation
		a.nodes[index] = n
		return index
	}

	n.generation = 1
	a.nodes = append(a.nodes, n)
	return uint32(len(a.nodes) - 1)
}

// release frees the slot at index and returns the key it held. The slot
// generation is bumped so that handles pointing to it become stale.
func (a *arena[T]) release(index uint32) T {
	var zero T

	n := &a.nodes[index]
	key := n.key

	n.key = zero
	n.kind = freeNode
	n.parent, n.prev, n.next, n.firstChild = none, none, none, none
	n.generation++
	if n.generation == 0 {
		n.generation = 1
	}

	a.free = append(a.free, index)
	return key
}

// at returns the node at index. The pointer must not be kept across a call
// to allocate since the backing slice may grow.
func (a *arena[T]) at(index uint32) *node[T] {
	return &a.nodes[index]
}

func (a *arena[T]) live() int {
	return len(a.nodes) - len(a.free)
}

// reset releases every slot. Slots are kept, with their generation bumped,
// so that handles issued before the reset stay detectable.
func (a *arena[T]) reset() {
	a.free = a.free[:0]

	for i := len(a.nodes) - 1; i >= 0; i-- {
		if a.nodes[i].kind == freeNode {
			a.free = append(a.free, uint32(i))
			continue
		}
		a.release(uint32(i))
	}
}
