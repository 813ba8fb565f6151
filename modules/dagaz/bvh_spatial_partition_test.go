package dagaz

import (
	"testing"

	"github.com/aukilabs/spatial/geometry"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestBVHPartitionCreation(t *testing.T) {
	p := NewBVHPartition(true)

	info := p.GetDebugInfo()
	require.Zero(t, info.PlaneCount)
	require.Zero(t, info.MergeCount)
	require.Equal(t, mgl32.Vec3{}, info.MinPoint)
	require.Equal(t, mgl32.Vec3{}, info.MaxPoint)
	require.Empty(t, p.GetRegion(mgl32.Vec3{-100, 0, -100}, mgl32.Vec3{100, 0, 100}))
	require.NoError(t, p.Validate())
}

func TestBVHPartitionQuadInsertion(t *testing.T) {
	p := NewBVHPartition(true)
	quad := NewQuad(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 1})

	p.InsertQuad(quad)
	info := p.GetDebugInfo()
	require.Equal(t, uint32(1), info.PlaneCount)
	require.Zero(t, info.MergeCount)
	require.Equal(t, mgl32.Vec3{-1, 0, -1}, info.MinPoint)
	require.Equal(t, mgl32.Vec3{1, 0, 1}, info.MaxPoint)

	// verify insertion of same quad is merged:
	p.InsertQuad(quad)
	info = p.GetDebugInfo()
	require.Equal(t, uint32(1), info.PlaneCount)
	require.Equal(t, uint32(1), info.MergeCount)

	// verify insertion of distinct quad:
	p.InsertQuad(NewQuad(mgl32.Vec3{2, 0, 0}, mgl32.Vec3{0.1, 0, 0.1}))
	info = p.GetDebugInfo()
	require.Equal(t, uint32(2), info.PlaneCount)
	require.Equal(t, uint32(1), info.MergeCount)
	require.Equal(t, mgl32.Vec3{-1, 0, -1}, info.MinPoint)
	require.True(t, info.MaxPoint.ApproxEqualThreshold(mgl32.Vec3{2.1, 0, 1}, 0.0001))
	require.NoError(t, p.Validate())
}

func TestBVHPartitionMerge(t *testing.T) {
	t.Run("close quad is merged", func(t *testing.T) {
		p := NewBVHPartition(true)
		p.InsertQuad(NewQuad(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 1}))
		p.InsertQuad(NewQuad(mgl32.Vec3{0, 0.5, 0}, mgl32.Vec3{1, 0, 1}))

		quads := p.GetRegion(mgl32.Vec3{-1, 0, -1}, mgl32.Vec3{1, 0, 1})
		require.Len(t, quads, 1)
		require.InDelta(t, 0.1, quads[0].Center[1], 0.0001)
		require.Equal(t, uint32(1), quads[0].MergeCount)
		require.NoError(t, p.Validate())
	})

	t.Run("lower quad is merged", func(t *testing.T) {
		p := NewBVHPartition(true)
		p.InsertQuad(NewQuad(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 1}))
		p.InsertQuad(NewQuad(mgl32.Vec3{0, -0.5, 0}, mgl32.Vec3{1, 0, 1}))

		info := p.GetDebugInfo()
		require.Equal(t, uint32(1), info.PlaneCount)
		require.Equal(t, uint32(1), info.MergeCount)
	})

	t.Run("distant quad is not merged", func(t *testing.T) {
		p := NewBVHPartition(true)
		p.InsertQuad(NewQuad(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 1}))
		p.InsertQuad(NewQuad(mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 1}))

		info := p.GetDebugInfo()
		require.Equal(t, uint32(2), info.PlaneCount)
		require.Zero(t, info.MergeCount)
	})

	t.Run("merging disabled", func(t *testing.T) {
		p := NewBVHPartition(false)
		quad := NewQuad(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 1})
		p.InsertQuad(quad)
		p.InsertQuad(quad)

		info := p.GetDebugInfo()
		require.Equal(t, uint32(2), info.PlaneCount)
		require.Zero(t, info.MergeCount)
	})

	t.Run("many samples", func(t *testing.T) {
		p := NewBVHPartition(true)
		for i := 0; i < 100; i++ {
			x := float32(i%10) * 3
			z := float32(i/10) * 3
			p.InsertQuad(NewQuad(mgl32.Vec3{x, 0, z}, mgl32.Vec3{1, 0, 1}))
			p.InsertQuad(NewQuad(mgl32.Vec3{x, 0.1, z}, mgl32.Vec3{1, 0, 1}))
		}

		info := p.GetDebugInfo()
		require.Equal(t, uint32(100), info.PlaneCount)
		require.Equal(t, uint32(100), info.MergeCount)
		require.NoError(t, p.Validate())
	})
}

func TestBVHPartitionQuadIntersection(t *testing.T) {
	quad := NewQuad(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 1})

	p := NewBVHPartition(true)
	p.InsertQuad(quad)
	p.InsertQuad(NewQuad(mgl32.Vec3{0, -5, 0}, mgl32.Vec3{1, 0, 1}))

	t.Run("hit", func(t *testing.T) {
		q, at, hit := p.IntersectQuad(geometry.Segment{
			From: mgl32.Vec3{0, 1, 0},
			To:   mgl32.Vec3{0, -1, 0},
		})
		require.True(t, hit)
		require.Equal(t, quad, q)
		require.InDelta(t, 0.5, at, 0.0001)
	})

	t.Run("closest hit", func(t *testing.T) {
		q, _, hit := p.IntersectQuad(geometry.Segment{
			From: mgl32.Vec3{0, 10, 0},
			To:   mgl32.Vec3{0, -10, 0},
		})
		require.True(t, hit)
		require.Equal(t, quad, q)
	})

	t.Run("miss", func(t *testing.T) {
		q, at, hit := p.IntersectQuad(geometry.Segment{
			From: mgl32.Vec3{5, 1, 0},
			To:   mgl32.Vec3{5, -1, 0},
		})
		require.False(t, hit)
		require.Equal(t, Quad{}, q)
		require.Equal(t, float32(-1), at)
	})
}

func TestBVHPartitionGetRegion(t *testing.T) {
	p := NewBVHPartition(true)
	p.InsertQuad(NewQuad(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 1}))
	p.InsertQuad(NewQuad(mgl32.Vec3{10, 0, 0}, mgl32.Vec3{1, 0, 1}))
	p.InsertQuad(NewQuad(mgl32.Vec3{0, 5, 10}, mgl32.Vec3{1, 0, 1}))

	quads := p.GetRegion(mgl32.Vec3{-2, 0, -2}, mgl32.Vec3{2, 0, 2})
	require.Len(t, quads, 1)
	require.Equal(t, mgl32.Vec3{0, 0, 0}, quads[0].Center)

	quads = p.GetRegion(mgl32.Vec3{-2, 0, -2}, mgl32.Vec3{12, 0, 2})
	require.Len(t, quads, 2)

	// y is ignored:
	quads = p.GetRegion(mgl32.Vec3{-2, 0, 9}, mgl32.Vec3{2, 0, 11})
	require.Len(t, quads, 1)
	require.Equal(t, mgl32.Vec3{0, 5, 10}, quads[0].Center)

	require.Empty(t, p.GetRegion(mgl32.Vec3{50, 0, 50}, mgl32.Vec3{60, 0, 60}))
}
