package bvh

import (
	"math"

	"github.com/aukilabs/spatial/geometry"
)

// remove unlinks the node at index and releases it. A subtree hands its
// children over to its own parent. A parent left with a single child is
// collapsed the same way.
func (t *Tree[T]) remove(index uint32) T {
	n := t.nodes.at(index)
	parent, prev, next := n.parent, n.prev, n.next

	switch n.kind {
	case leafNode:
		t.replace(index, next, prev)

	case subtreeNode:
		first := n.firstChild
		last := first
		for {
			child := t.nodes.at(last)
			child.parent = parent
			if child.next == none {
				break
			}
			last = child.next
		}

		t.nodes.at(first).prev = prev
		t.nodes.at(last).next = next
		t.replace(index, first, last)
	}

	if parent != none {
		p := t.nodes.at(parent)
		if p.kind == subtreeNode && t.nodes.at(p.firstChild).next == none {
			t.remove(parent)
		} else {
			t.recalculate(parent)
			t.rebalance(parent)
		}
	}

	return t.nodes.release(index)
}

// replace substitutes the node at index with the chain of siblings going from
// first to last. The links of the replaced node itself are left untouched.
func (t *Tree[T]) replace(index, first, last uint32) {
	n := t.nodes.at(index)
	parent, prev, next := n.parent, n.prev, n.next

	if t.root == index {
		t.root = first
	}

	if next != none {
		t.nodes.at(next).prev = last
	}

	if prev != none {
		t.nodes.at(prev).next = first
	} else if parent != none {
		t.nodes.at(parent).firstChild = first
	}
}

// extend wraps the node at index into a new subtree that takes its place and
// returns the subtree index.
func (t *Tree[T]) extend(index uint32) uint32 {
	n := *t.nodes.at(index)

	wrapper := t.nodes.allocate(node[T]{
		parent:     n.parent,
		prev:       n.prev,
		next:       n.next,
		kind:       subtreeNode,
		firstChild: index,
		aabb:       n.aabb,
		weight:     n.weight,
	})
	t.replace(index, wrapper, wrapper)

	n2 := t.nodes.at(index)
	n2.parent = wrapper
	n2.prev = none
	n2.next = none
	return wrapper
}

// insertAfter links the node at index right after sibling and grows the
// common parent accordingly.
func (t *Tree[T]) insertAfter(index, sibling uint32) {
	s := t.nodes.at(sibling)
	parent, next := s.parent, s.next

	n := t.nodes.at(index)
	n.parent = parent
	n.prev = sibling
	n.next = next

	s.next = index
	if next != none {
		t.nodes.at(next).prev = index
	}

	if parent != none {
		p := t.nodes.at(parent)
		p.aabb.Extend(n.aabb)
		p.weight += n.weight
	}
}

// recalculate recomputes the bounds and weight of a subtree from its
// children.
func (t *Tree[T]) recalculate(index uint32) {
	n := t.nodes.at(index)
	if n.kind != subtreeNode {
		return
	}

	aabb := geometry.EmptyAABB()
	weight := int32(0)
	for child := n.firstChild; child != none; {
		c := t.nodes.at(child)
		aabb.Extend(c.aabb)
		weight += c.weight
		child = c.next
	}

	n.aabb = aabb
	n.weight = weight
}

// rebalance walks from index up to the root, rotating every node that has a
// child heavier than twice all of its other children together, and
// recalculates the ancestors on the way.
//
// A rotated node moves under its heavy child and is checked again before the
// walk goes on. Every rotation lowers the sum of the subtree weights, so the
// walk ends.
func (t *Tree[T]) rebalance(index uint32) {
	rotations := 0

	for {
		heavy := t.heaviestChild(index)
		light := none
		if heavy != none {
			light = t.lightestChild(heavy)
		}

		if heavy != none && light != none {
			t.rotate(index, heavy, light)
			rotations++
			continue
		}

		index = t.nodes.at(index).parent
		if index == none {
			break
		}
		t.recalculate(index)
	}

	instrumentRotations(t.name, rotations)
}

// rotate swaps the positions of index and its heavy child, the light child of
// heavy taking the place heavy had under index:
//
//	  index            heavy
//	 /     \          /     \
//	heavy   ...  =>  index   ...
//	 /   \           /   \
//	light ...      light  ...
//
// The light grandchild moves under index in place of heavy.
func (t *Tree[T]) rotate(index, heavy, light uint32) {
	t.replace(heavy, light, light)
	t.replace(index, heavy, heavy)
	t.replace(light, index, index)

	n := t.nodes.at(index)
	h := t.nodes.at(heavy)
	l := t.nodes.at(light)

	lparent, lnext, lprev := l.parent, l.next, l.prev

	l.parent, l.next, l.prev = h.parent, h.next, h.prev
	h.parent, h.next, h.prev = n.parent, n.next, n.prev
	n.parent, n.next, n.prev = lparent, lnext, lprev

	t.recalculate(index)
	h.aabb = h.aabb.Union(n.aabb)
	h.weight += n.weight - l.weight
}

// heaviestChild returns the child of index holding the most leaves when it
// holds more than twice as many leaves as its siblings together.
func (t *Tree[T]) heaviestChild(index uint32) uint32 {
	n := t.nodes.at(index)
	if n.kind != subtreeNode {
		return none
	}

	heaviest := none
	weight := int32(0)
	for child := n.firstChild; child != none; {
		c := t.nodes.at(child)
		if c.weight > weight {
			weight = c.weight
			heaviest = child
		}
		child = c.next
	}

	if weight > 2*(n.weight-weight) {
		return heaviest
	}
	return none
}

func (t *Tree[T]) lightestChild(index uint32) uint32 {
	n := t.nodes.at(index)
	if n.kind != subtreeNode {
		return none
	}

	lightest := none
	weight := int32(math.MaxInt32)
	for child := n.firstChild; child != none; {
		c := t.nodes.at(child)
		if c.weight < weight {
			weight = c.weight
			lightest = child
		}
		child = c.next
	}
	return lightest
}

// descend returns the child of parent the box should be inserted next to,
// or parent itself when wrapping it with the box is cheaper than going any
// deeper. The cost of a candidate is the surface area it would gain plus the
// area its ancestors inherit.
func (t *Tree[T]) descend(parent uint32, aabb geometry.AABB) uint32 {
	p := t.nodes.at(parent)
	if p.kind != subtreeNode {
		return parent
	}

	area := aabb.Union(p.aabb).SurfaceArea()
	inherited := 2 * (area - p.aabb.SurfaceArea())

	best := parent
	bestCost := 2 * area

	for child := p.firstChild; child != none; {
		c := t.nodes.at(child)

		cost := inherited + c.aabb.Union(aabb).SurfaceArea()
		if c.kind == subtreeNode {
			cost -= c.aabb.SurfaceArea()
		}

		if bestCost >= cost {
			bestCost = cost
			best = child
		}
		child = c.next
	}
	return best
}
