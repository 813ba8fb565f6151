package geometry

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Sphere is a bounding sphere.
type Sphere struct {
	Origin mgl32.Vec3
	Radius float32
}

// AABB returns the world box of the sphere once transformed by m. The box
// extents are the radius scaled by the length of each transform axis, which
// bounds the ellipsoid a non-uniform scale produces.
func (s Sphere) AABB(m mgl32.Mat4) AABB {
	origin := mgl32.TransformCoordinate(s.Origin, m)
	extents := axisScale(m).Mul(s.Radius)

	return AABB{
		Min: origin.Sub(extents),
		Max: origin.Add(extents),
	}
}

// Transform returns the sphere in world space. The radius is scaled by the
// largest axis scale of m.
func (s Sphere) Transform(m mgl32.Mat4) Sphere {
	scale := axisScale(m)
	return Sphere{
		Origin: mgl32.TransformCoordinate(s.Origin, m),
		Radius: s.Radius * max(scale[0], scale[1], scale[2]),
	}
}

// Overlap reports whether the sphere intersects box.
func (s Sphere) Overlap(box AABB, epsilon float32) bool {
	closest := MaxVec(box.Min, MinVec(s.Origin, box.Max))
	d := closest.Sub(s.Origin)
	return d.Dot(d) < s.Radius*s.Radius+epsilon
}

func axisScale(m mgl32.Mat4) mgl32.Vec3 {
	return mgl32.Vec3{
		m.Col(0).Vec3().Len(),
		m.Col(1).Vec3().Len(),
		m.Col(2).Vec3().Len(),
	}
}
