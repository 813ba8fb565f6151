package bvh

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

const (
	// Error type of the panic raised when a handle that does not refer to a
	// stored key is used.
	ErrTypeStaleHandle = "bvh_stale_handle"

	// Error type returned by Validate.
	ErrTypeCorruptedTree = "bvh_corrupted_tree"

	// Error type of the panic raised when an iterator is read while it is not
	// positioned on a key.
	ErrTypeUnpositionedIterator = "bvh_unpositioned_iterator"
)

func staleHandleError(h Handle, reason string) error {
	return errors.New("stale bvh handle").
		WithType(ErrTypeStaleHandle).
		WithTag("handle", uint64(h)).
		WithTag("index", h.index()).
		WithTag("generation", h.generation()).
		WithTag("reason", reason)
}

func corruptedTreeError(msg string, index uint32, kind nodeKind) error {
	return errors.New(msg).
		WithType(ErrTypeCorruptedTree).
		WithTag("index", index).
		WithTag("kind", kind.String())
}

func unpositionedIteratorError() error {
	return errors.New("iterator is not positioned on a key").
		WithType(ErrTypeUnpositionedIterator)
}
