package dagaz

import (
	"math"
	"sync"

	"github.com/aukilabs/spatial/bvh"
	"github.com/aukilabs/spatial/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

// Bounding Volume Hierarchy Spatial Partition
//
// Quads are stored in a dynamic bounding volume hierarchy keyed by quad.
// Compared to a regular grid, there is no resolution to pick and no cells to
// grow when samples land outside of the covered area.
//
// Region queries only consider the x and z axes: quads are horizontal planes
// and a region selects a floor area.

const MergeEpsilon = float32(0.6)

// The distance each quad moves toward a quad merged into it.
const mergeFactor = float32(0.2)

type BVHPartition struct {
	mutex      sync.RWMutex
	tree       *bvh.Tree[*Quad]
	handles    map[*Quad]bvh.Handle
	planeCount uint32
	mergeCount uint32
	noMerge    bool
}

// NewBVHPartition returns an empty partition. When merge is false, quads are
// always inserted as new planes.
func NewBVHPartition(merge bool) *BVHPartition {
	return &BVHPartition{
		tree:    bvh.New[*Quad](bvh.WithName("planes")),
		handles: make(map[*Quad]bvh.Handle),
		noMerge: !merge,
	}
}

// InsertQuad inserts q, or merges it into an existing quad located right
// above or below its center.
//
// Merging loop:
//  1. find closest plane (in y)
//  2. if needs merging?
//  3. merge into that one
//  4. make the merged plane the quad we are merging and go to 1
func (p *BVHPartition) InsertQuad(q Quad) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if q.Normal == (mgl32.Vec3{}) {
		q.Normal = calculateNormal(q.Extents)
	}

	quadToMerge := &q
	stored := false

	for !p.noMerge {
		hit := p.closestVerticalHit(quadToMerge)
		if hit == nil {
			break
		}

		if !geometry.EqualWithEpsilon(hit.Center[1], quadToMerge.Center[1], MergeEpsilon) ||
			!doHorizontalPlanesOverlap(*hit, *quadToMerge) {
			break
		}

		p.mergeQuads(hit, quadToMerge)
		if stored {
			p.remove(quadToMerge)
		}

		quadToMerge = hit
		stored = true
	}

	if !stored {
		p.handles[quadToMerge] = p.tree.Insert(quadToMerge, quadToMerge.AABB(), 0)
		p.planeCount++
	}
}

// closestVerticalHit returns the closest quad crossed by a vertical segment
// going through the center of q, q excluded.
func (p *BVHPartition) closestVerticalHit(q *Quad) *Quad {
	reach := mgl32.Vec3{0, MergeEpsilon + 1, 0}

	// +y:
	hitUp, tUp := p.intersect(geometry.Segment{
		From: q.Center,
		To:   q.Center.Add(reach),
	}, q)

	// -y:
	hitDown, tDown := p.intersect(geometry.Segment{
		From: q.Center,
		To:   q.Center.Sub(reach),
	}, q)

	switch {
	case hitUp == nil:
		return hitDown
	case hitDown == nil:
		return hitUp
	case tDown < tUp:
		return hitDown
	default:
		return hitUp
	}
}

func (p *BVHPartition) intersect(s geometry.Segment, exclude *Quad) (*Quad, float32) {
	var result *Quad
	tMin := float32(math.Inf(1))

	for q := range p.tree.Keys(s) {
		if q == exclude {
			continue
		}

		if hit, t := IntersectQuad(s, *q); hit && t < tMin {
			tMin = t
			result = q
		}
	}

	if result == nil {
		return nil, -1
	}
	return result, tMin
}

func (p *BVHPartition) mergeQuads(existingQuad *Quad, newQuad *Quad) {
	centerDiff := newQuad.Center.Sub(existingQuad.Center)
	extentsDiff := newQuad.Extents.Sub(existingQuad.Extents)
	existingQuad.Center = existingQuad.Center.Add(centerDiff.Mul(mergeFactor))
	existingQuad.Extents = existingQuad.Extents.Add(extentsDiff.Mul(mergeFactor))
	existingQuad.MergeCount++
	p.mergeCount++

	h := p.handles[existingQuad]
	p.handles[existingQuad] = p.tree.Update(h, existingQuad.AABB(), 0)
}

func (p *BVHPartition) remove(q *Quad) {
	h, ok := p.handles[q]
	if !ok {
		return
	}

	p.tree.Remove(h)
	delete(p.handles, q)
	p.planeCount--
}

// IntersectQuad returns the first quad crossed by s and where along s it is
// crossed.
func (p *BVHPartition) IntersectQuad(s geometry.Segment) (Quad, float32, bool) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	q, t := p.intersect(s, nil)
	if q == nil {
		return Quad{}, -1, false
	}
	return *q, t, true
}

// GetRegion returns the quads overlapping the floor area going from min to
// max. The y coordinates are ignored.
func (p *BVHPartition) GetRegion(min mgl32.Vec3, max mgl32.Vec3) []Quad {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	region := geometry.FromMinMax(
		mgl32.Vec3{min[0], -math.MaxFloat32, min[2]},
		mgl32.Vec3{max[0], math.MaxFloat32, max[2]},
	)

	var quads []Quad
	for q := range p.tree.Keys(region) {
		if q.AABB().Overlap(region, geometry.Epsilon) {
			quads = append(quads, *q)
		}
	}
	return quads
}

func (p *BVHPartition) GetDebugInfo() SpatialDebugInfo {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	stats := p.tree.Stats()
	return SpatialDebugInfo{
		PlaneCount: p.planeCount,
		MergeCount: p.mergeCount,
		MinPoint:   stats.Bounds.Min,
		MaxPoint:   stats.Bounds.Max,
		Depth:      stats.Depth,
		Nodes:      stats.Nodes,
	}
}

// Validate checks the consistency of the underlying tree.
func (p *BVHPartition) Validate() error {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	return p.tree.Validate()
}
