package bvh

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/spatial/geometry"
)

// Stats describes the shape of a tree.
type Stats struct {
	Leaves    int `json:"leaves"`
	Subtrees  int `json:"subtrees"`
	Nodes     int `json:"nodes"`
	FreeSlots int `json:"free_slots"`
	Depth     int `json:"depth"`

	// The union of every stored box, zero for an empty tree.
	Bounds geometry.AABB `json:"bounds"`
}

func (t *Tree[T]) Stats() Stats {
	s := Stats{
		Nodes:     t.nodes.live(),
		FreeSlots: len(t.nodes.free),
	}

	if t.root == none {
		return s
	}
	s.Bounds = t.Bounds()

	type frame struct {
		index uint32
		depth int
	}

	stack := []frame{{index: t.root, depth: 1}}
	for len(stack) != 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		s.Depth = max(s.Depth, f.depth)

		n := t.nodes.at(f.index)
		if n.kind == leafNode {
			s.Leaves++
			continue
		}

		s.Subtrees++
		for child := n.firstChild; child != none; child = t.nodes.at(child).next {
			stack = append(stack, frame{index: child, depth: f.depth + 1})
		}
	}
	return s
}

// Validate walks the whole tree and returns an error of type
// ErrTypeCorruptedTree when a structural property does not hold:
//   - sibling and parent links are consistent,
//   - every subtree has at least two children,
//   - subtree bounds and weights match the aggregate of their children,
//   - every live node is reachable exactly once from the root.
func (t *Tree[T]) Validate() error {
	if t.root == none {
		if live := t.nodes.live(); live != 0 {
			return errors.New("empty tree has live nodes").
				WithType(ErrTypeCorruptedTree).
				WithTag("live", live)
		}
		if t.leaves != 0 {
			return errors.New("empty tree has leaves").
				WithType(ErrTypeCorruptedTree).
				WithTag("leaves", t.leaves)
		}
		return nil
	}

	if root := t.nodes.at(t.root); root.parent != none || root.prev != none || root.next != none {
		return corruptedTreeError("root is linked", t.root, root.kind)
	}

	visited := make(map[uint32]struct{}, t.nodes.live())
	leaves := 0

	stack := []uint32{t.root}
	for len(stack) != 0 {
		index := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := visited[index]; ok {
			return corruptedTreeError("node visited twice", index, t.nodes.at(index).kind)
		}
		visited[index] = struct{}{}

		n := t.nodes.at(index)
		switch n.kind {
		case freeNode:
			return corruptedTreeError("free node is linked", index, n.kind)

		case leafNode:
			leaves++
			if n.weight != 1 {
				return corruptedTreeError("leaf weight is not 1", index, n.kind)
			}
			continue
		}

		aabb := geometry.EmptyAABB()
		weight := int32(0)
		children := 0
		prev := none

		for child := n.firstChild; child != none; {
			c := t.nodes.at(child)
			if c.parent != index {
				return corruptedTreeError("child does not point to its parent", child, c.kind)
			}
			if c.prev != prev {
				return corruptedTreeError("broken sibling link", child, c.kind)
			}

			aabb.Extend(c.aabb)
			weight += c.weight
			children++
			stack = append(stack, child)

			if children > len(t.nodes.nodes) {
				return corruptedTreeError("sibling cycle", index, n.kind)
			}

			prev = child
			child = c.next
		}

		if children < 2 {
			return corruptedTreeError("subtree has less than two children", index, n.kind)
		}
		if weight != n.weight {
			return corruptedTreeError("subtree weight mismatch", index, n.kind)
		}
		if !aabb.RelativeEqual(n.aabb, t.epsilon) {
			return corruptedTreeError("subtree bounds mismatch", index, n.kind)
		}
	}

	if len(visited) != t.nodes.live() {
		return errors.New("unreachable live nodes").
			WithType(ErrTypeCorruptedTree).
			WithTag("reachable", len(visited)).
			WithTag("live", t.nodes.live())
	}
	if leaves != t.leaves {
		return errors.New("leaf count mismatch").
			WithType(ErrTypeCorruptedTree).
			WithTag("counted", leaves).
			WithTag("expected", t.leaves)
	}
	return nil
}
