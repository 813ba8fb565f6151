// Package bvh implements a dynamic bounding volume hierarchy: an n-ary tree
// of axis-aligned bounding boxes that supports insertion, update and removal
// of keyed boxes and overlap queries in sub-linear time.
//
// Nodes live in a flat arena and reference each other by index. A subtree
// stores the exact union of its children boxes and its weight, the number of
// leaves beneath it. Insertion descends using a surface area heuristic and a
// weight based rotation keeps heavy branches from dominating their parent.
//
// A Tree is not safe for concurrent use. Mutations must not overlap with
// queries.
package bvh

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/spatial/geometry"
)

// Handle identifies a key stored in a tree. It is only valid until the key is
// removed or reinserted by Update. Using a stale handle panics with an error
// of type ErrTypeStaleHandle.
//
// The zero Handle is never valid.
type Handle uint64

func newHandle(index, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index))
}

func (h Handle) index() uint32 {
	return uint32(h)
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

type config struct {
	capacity int
	epsilon  float32
	name     string
}

// Option configures a tree.
type Option func(*config)

// WithCapacity preallocates room for n nodes.
func WithCapacity(n int) Option {
	return func(c *config) {
		c.capacity = n
	}
}

// WithEpsilon sets the tolerance used by containment and overlap tests.
// Defaults to geometry.Epsilon.
func WithEpsilon(epsilon float32) Option {
	return func(c *config) {
		c.epsilon = epsilon
	}
}

// WithName sets the name the tree is reported under in metrics.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// Tree is a dynamic bounding volume hierarchy of keys of type T.
type Tree[T any] struct {
	root    uint32
	nodes   arena[T]
	leaves  int
	epsilon float32
	name    string
}

func New[T any](options ...Option) *Tree[T] {
	c := config{
		epsilon: geometry.Epsilon,
		name:    "default",
	}
	for _, o := range options {
		o(&c)
	}

	return &Tree[T]{
		root: none,
		nodes: arena[T]{
			nodes: make([]node[T], 0, c.capacity),
		},
		epsilon: c.epsilon,
		name:    c.name,
	}
}

func (t *Tree[T]) IsEmpty() bool {
	return t.root == none
}

// Len returns the number of stored keys.
func (t *Tree[T]) Len() int {
	return t.leaves
}

// Clear removes every key. Handles issued before are stale afterwards.
func (t *Tree[T]) Clear() {
	t.nodes.reset()
	t.root = none
	t.leaves = 0
}

// Insert stores key with the given bounds inflated by padding and returns the
// handle to use for updating or removing it.
//
// The padding lets small moves of the object be absorbed by Update without
// touching the tree.
func (t *Tree[T]) Insert(key T, aabb geometry.AABB, padding float32) Handle {
	aabb = aabb.Inflate(padding)

	index := t.nodes.allocate(node[T]{
		parent:     none,
		prev:       none,
		next:       none,
		kind:       leafNode,
		firstChild: none,
		key:        key,
		aabb:       aabb,
		weight:     1,
	})

	if t.root == none {
		t.root = index
	} else {
		sibling := t.root
		for {
			next := t.descend(sibling, aabb)
			if next == sibling {
				break
			}
			sibling = next
		}

		parent := t.extend(sibling)
		t.insertAfter(index, sibling)
		t.rebalance(parent)
	}

	t.leaves++
	instrumentInsertion(t.name)
	return newHandle(index, t.nodes.at(index).generation)
}

// Update moves the key referenced by h to the given bounds. When the stored
// padded bounds still contain aabb nothing changes and h is returned.
// Otherwise the key is reinserted and a new handle is returned: callers must
// always replace h with the returned handle.
func (t *Tree[T]) Update(h Handle, aabb geometry.AABB, padding float32) Handle {
	index := t.resolve(h)

	if t.nodes.at(index).aabb.Contains(aabb, t.epsilon) {
		instrumentUpdate(t.name, false)
		return h
	}

	instrumentUpdate(t.name, true)
	key := t.Remove(h)
	return t.Insert(key, aabb, padding)
}

// Remove deletes the key referenced by h and returns it.
func (t *Tree[T]) Remove(h Handle) T {
	index := t.resolve(h)
	key := t.remove(index)

	t.leaves--
	instrumentRemoval(t.name)
	return key
}

// Contains reports whether h refers to a stored key.
func (t *Tree[T]) Contains(h Handle) bool {
	_, err := t.lookup(h)
	return err == nil
}

// Get returns the key referenced by h and its stored, padded, bounds.
func (t *Tree[T]) Get(h Handle) (T, geometry.AABB) {
	n := t.nodes.at(t.resolve(h))
	return n.key, n.aabb
}

// Bounds returns the union of every stored box.
func (t *Tree[T]) Bounds() geometry.AABB {
	if t.root == none {
		return geometry.EmptyAABB()
	}
	return t.nodes.at(t.root).aabb
}

func (t *Tree[T]) lookup(h Handle) (uint32, error) {
	index := h.index()

	if int(index) >= len(t.nodes.nodes) {
		return none, staleHandleError(h, "index out of range")
	}

	n := t.nodes.at(index)
	if n.generation != h.generation() {
		return none, staleHandleError(h, "generation mismatch")
	}
	if n.kind != leafNode {
		return none, staleHandleError(h, "not a leaf")
	}
	return index, nil
}

// resolve returns the index of the leaf referenced by h, panicking when h is
// stale.
func (t *Tree[T]) resolve(h Handle) uint32 {
	index, err := t.lookup(h)
	if err != nil {
		panic(err)
	}
	return index
}

// IsStaleHandle reports whether v, typically a recovered panic value, is
// the error raised when a stale handle is used.
func IsStaleHandle(v any) bool {
	err, ok := v.(error)
	return ok && errors.IsType(err, ErrTypeStaleHandle)
}
