package geometry

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Overlapper is implemented by any query volume that can tell whether it
// overlaps an axis-aligned bounding box.
type Overlapper interface {
	Overlap(box AABB, epsilon float32) bool
}

// AABB is an axis-aligned bounding box.
//
// Min is componentwise lesser or equal than Max, except for the empty box
// returned by EmptyAABB.
type AABB struct {
	Min mgl32.Vec3 `json:"min"`
	Max mgl32.Vec3 `json:"max"`
}

// EmptyAABB returns a box with Min set to +Inf and Max set to -Inf. Its union
// with any other box is that other box.
func EmptyAABB() AABB {
	return AABB{
		Min: mgl32.Vec3{posInf, posInf, posInf},
		Max: mgl32.Vec3{negInf, negInf, negInf},
	}
}

func FromMinMax(min, max mgl32.Vec3) AABB {
	return AABB{Min: min, Max: max}
}

// FromPoint returns a zero sized box located at p.
func FromPoint(p mgl32.Vec3) AABB {
	return AABB{Min: p, Max: p}
}

// Union returns the smallest box containing both a and b.
func (a AABB) Union(b AABB) AABB {
	return AABB{
		Min: MinVec(a.Min, b.Min),
		Max: MaxVec(a.Max, b.Max),
	}
}

// Extend grows a in place so that it contains b.
func (a *AABB) Extend(b AABB) {
	a.Min = MinVec(a.Min, b.Min)
	a.Max = MaxVec(a.Max, b.Max)
}

// ExtendPoint grows a in place so that it contains p.
func (a *AABB) ExtendPoint(p mgl32.Vec3) {
	a.Min = MinVec(a.Min, p)
	a.Max = MaxVec(a.Max, p)
}

// Inflate returns a copy of a padded by padding on every axis, in both
// directions.
func (a AABB) Inflate(padding float32) AABB {
	pad := mgl32.Vec3{padding, padding, padding}
	return AABB{
		Min: a.Min.Sub(pad),
		Max: a.Max.Add(pad),
	}
}

// Contains reports whether b lies inside a.
func (a AABB) Contains(b AABB, epsilon float32) bool {
	return a.Min[0]-b.Min[0] < epsilon && b.Max[0]-a.Max[0] < epsilon &&
		a.Min[1]-b.Min[1] < epsilon && b.Max[1]-a.Max[1] < epsilon &&
		a.Min[2]-b.Min[2] < epsilon && b.Max[2]-a.Max[2] < epsilon
}

func (a AABB) ContainsPoint(p mgl32.Vec3, epsilon float32) bool {
	return p[0]-a.Min[0] > -epsilon && p[0]-a.Max[0] < epsilon &&
		p[1]-a.Min[1] > -epsilon && p[1]-a.Max[1] < epsilon &&
		p[2]-a.Min[2] > -epsilon && p[2]-a.Max[2] < epsilon
}

// Overlap reports whether a and b intersect. Touching boxes overlap.
func (a AABB) Overlap(b AABB, epsilon float32) bool {
	return a.Min[0]-b.Max[0] < epsilon && b.Min[0]-a.Max[0] < epsilon &&
		a.Min[1]-b.Max[1] < epsilon && b.Min[1]-a.Max[1] < epsilon &&
		a.Min[2]-b.Max[2] < epsilon && b.Min[2]-a.Max[2] < epsilon
}

func (a AABB) Size() mgl32.Vec3 {
	return a.Max.Sub(a.Min)
}

func (a AABB) Center() mgl32.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}

// SurfaceArea is used as the cost of storing a box in the hierarchy.
func (a AABB) SurfaceArea() float32 {
	s := a.Size()
	return 2 * (s[0]*s[1] + s[0]*s[2] + s[1]*s[2])
}

func (a AABB) Volume() float32 {
	s := a.Size()
	return s[0] * s[1] * s[2]
}

// MaxAxis returns the index of the longest axis: 0 for x, 1 for y and 2 for z.
func (a AABB) MaxAxis() int {
	s := a.Size()
	switch {
	case s[0] > s[1] && s[0] > s[2]:
		return 0
	case s[1] > s[2]:
		return 1
	default:
		return 2
	}
}

func (a AABB) IsEmpty() bool {
	return a.Min[0] > a.Max[0] || a.Min[1] > a.Max[1] || a.Min[2] > a.Max[2]
}

// RelativeEqual reports whether every corner component of a and b differs by
// less than epsilon. Two empty boxes are equal.
func (a AABB) RelativeEqual(b AABB, epsilon float32) bool {
	for i := 0; i < 3; i++ {
		if !componentEqual(a.Min[i], b.Min[i], epsilon) ||
			!componentEqual(a.Max[i], b.Max[i], epsilon) {
			return false
		}
	}
	return true
}

func componentEqual(a, b, epsilon float32) bool {
	if a == b {
		return true
	}
	return abs(a-b) < epsilon
}
