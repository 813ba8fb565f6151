package dagaz

import (
	"github.com/aukilabs/spatial/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

// Tolerance used to check whether a hit point lies within a quad.
const quadBoundsEpsilon = float32(0.0001)

// Quad is a rectangular plane sample.
type Quad struct {
	Center  mgl32.Vec3 `json:"center"`
	Extents mgl32.Vec3 `json:"extents"` // Half-Extents!

	// implicit
	Normal mgl32.Vec3 `json:"-"`

	MergeCount uint32 `json:"merge_count"`
}

// NewQuad returns a quad with its normal computed from its extents.
func NewQuad(center, extents mgl32.Vec3) Quad {
	return Quad{
		Center:  center,
		Extents: extents,
		Normal:  calculateNormal(extents),
	}
}

func (q Quad) Min() mgl32.Vec3 {
	return q.Center.Sub(q.Extents)
}

func (q Quad) Max() mgl32.Vec3 {
	return q.Center.Add(q.Extents)
}

// AABB returns the bounds of the quad. Horizontal quads have flat bounds.
func (q Quad) AABB() geometry.AABB {
	return geometry.FromMinMax(
		geometry.MinVec(q.Min(), q.Max()),
		geometry.MaxVec(q.Min(), q.Max()),
	)
}

func doHorizontalPlanesOverlap(a Quad, b Quad) bool {
	minA, maxA := a.Min(), a.Max()
	minB, maxB := b.Min(), b.Max()

	if minA[0] >= maxB[0] {
		return false
	}
	if maxA[0] <= minB[0] {
		return false
	}
	if minA[2] >= maxB[2] {
		return false
	}
	if maxA[2] <= minB[2] {
		return false
	}

	// overlap on both axes -> must overlap
	return true
}

func calculateNormal(e mgl32.Vec3) mgl32.Vec3 {
	vectorA := mgl32.Vec3{e[0], e[1], 0}
	vectorB := mgl32.Vec3{0, e[1], e[2]}

	normal := vectorB.Cross(vectorA)
	if l := normal.Len(); l != 0 {
		normal = normal.Mul(1 / l)
	}
	return normal
}

// IntersectQuad returns where along s the segment crosses q, as a parameter
// in [0, 1].
func IntersectQuad(s geometry.Segment, q Quad) (bool, float32) {
	dir := s.To.Sub(s.From)

	denominator := q.Normal.Dot(dir)
	if denominator == 0 {
		return false, -1
	}

	t := (q.Normal.Dot(q.Center) - q.Normal.Dot(s.From)) / denominator
	if t < 0 || t > 1 {
		return false, -1
	}

	// check hitPoint is in bounds:
	hitPoint := s.From.Add(dir.Mul(t))
	bounds := q.AABB()
	for i := 0; i < 3; i++ {
		if !geometry.InRangeWithEpsilon(hitPoint[i], bounds.Min[i], bounds.Max[i], quadBoundsEpsilon) {
			return false, -1
		}
	}
	return true, t
}
