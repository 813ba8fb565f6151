package bvh

import (
	"iter"

	"github.com/aukilabs/spatial/geometry"
)

// Iterator walks the keys whose stored bounds overlap a filter. Subtrees whose
// bounds do not overlap the filter are skipped entirely. It needs no
// allocation beyond itself: the walk climbs back through parent links.
//
// The tree must not be modified while an iterator is in use.
type Iterator[T any] struct {
	tree   *Tree[T]
	filter geometry.Overlapper

	index   uint32
	current uint32
	exit    bool
}

// Query returns an iterator over the keys whose stored bounds overlap filter.
func (t *Tree[T]) Query(filter geometry.Overlapper) *Iterator[T] {
	return &Iterator[T]{
		tree:    t,
		filter:  filter,
		index:   t.root,
		current: none,
	}
}

// Next advances to the next matching key and reports whether there is one.
func (it *Iterator[T]) Next() bool {
	nodes := &it.tree.nodes

	for it.index != none {
		n := nodes.at(it.index)

		if it.exit || !it.filter.Overlap(n.aabb, it.tree.epsilon) {
			if n.next == none {
				it.index = n.parent
				it.exit = true
			} else {
				it.index = n.next
				it.exit = false
			}
			continue
		}

		if n.kind == leafNode {
			it.current = it.index
			it.exit = true
			return true
		}

		it.index = n.firstChild
		it.exit = false
	}

	it.current = none
	return false
}

// Key returns the key found by the last call to Next. Key, Handle and AABB
// are only valid after Next returned true. Otherwise they panic with an
// error of type ErrTypeUnpositionedIterator.
func (it *Iterator[T]) Key() T {
	return it.node().key
}

// Handle returns the handle of the key found by the last call to Next.
func (it *Iterator[T]) Handle() Handle {
	return newHandle(it.current, it.node().generation)
}

// AABB returns the stored bounds of the key found by the last call to Next.
func (it *Iterator[T]) AABB() geometry.AABB {
	return it.node().aabb
}

func (it *Iterator[T]) node() *node[T] {
	if it.current == none {
		panic(unpositionedIteratorError())
	}
	return it.tree.nodes.at(it.current)
}

// Reset restarts the walk from the root.
func (it *Iterator[T]) Reset() {
	it.index = it.tree.root
	it.current = none
	it.exit = false
}

// Keys returns a sequence of the keys whose stored bounds overlap filter.
func (t *Tree[T]) Keys(filter geometry.Overlapper) iter.Seq[T] {
	return func(yield func(T) bool) {
		it := t.Query(filter)
		for it.Next() {
			if !yield(it.Key()) {
				return
			}
		}
	}
}

// All returns a sequence of the handles and keys whose stored bounds overlap
// filter.
func (t *Tree[T]) All(filter geometry.Overlapper) iter.Seq2[Handle, T] {
	return func(yield func(Handle, T) bool) {
		it := t.Query(filter)
		for it.Next() {
			if !yield(it.Handle(), it.Key()) {
				return
			}
		}
	}
}

// Everything matches any box. It can be used as a filter to walk a whole tree.
var Everything geometry.Overlapper = everything{}

type everything struct{}

func (everything) Overlap(geometry.AABB, float32) bool {
	return true
}
