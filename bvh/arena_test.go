package bvh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArenaAllocate(t *testing.T) {
	var a arena[string]

	i := a.allocate(node[string]{kind: leafNode, key: "a"})
	j := a.allocate(node[string]{kind: leafNode, key: "b"})
	require.Equal(t, uint32(0), i)
	require.Equal(t, uint32(1), j)
	require.Equal(t, uint32(1), a.at(i).generation)
	require.Equal(t, 2, a.live())
}

func TestArenaRelease(t *testing.T) {
	var a arena[string]

	i := a.allocate(node[string]{kind: leafNode, key: "a"})
	require.Equal(t, "a", a.release(i))
	require.Equal(t, freeNode, a.at(i).kind)
	require.Empty(t, a.at(i).key)
	require.Equal(t, uint32(2), a.at(i).generation)
	require.Zero(t, a.live())

	j := a.allocate(node[string]{kind: leafNode, key: "b"})
	require.Equal(t, i, j)
	require.Equal(t, uint32(2), a.at(j).generation)
	require.Len(t, a.nodes, 1)
}

func TestArenaReset(t *testing.T) {
	var a arena[string]

	a.allocate(node[string]{kind: leafNode, key: "a"})
	b := a.allocate(node[string]{kind: leafNode, key: "b"})
	a.allocate(node[string]{kind: leafNode, key: "c"})
	a.release(b)

	a.reset()
	require.Zero(t, a.live())
	require.Len(t, a.nodes, 3)

	for i := range a.nodes {
		require.Equal(t, freeNode, a.nodes[i].kind)
		require.Equal(t, uint32(2), a.nodes[i].generation)
	}

	require.Equal(t, uint32(0), a.allocate(node[string]{kind: leafNode}))
}

func TestNodeKindString(t *testing.T) {
	require.Equal(t, "leaf", leafNode.String())
	require.Equal(t, "subtree", subtreeNode.String())
	require.Equal(t, "free", freeNode.String())
}
