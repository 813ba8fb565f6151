package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Hit describes where a ray meets a surface.
type Hit struct {
	Distance float32
	Position mgl32.Vec3
	Normal   mgl32.Vec3
}

// Ray is a half-line starting at Origin. Direction is expected to be
// normalized, NewRay takes care of it.
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

func NewRay(origin, direction mgl32.Vec3) Ray {
	return Ray{
		Origin:    origin,
		Direction: normalize(direction),
	}
}

// Transform returns the ray expressed in the space described by m.
func (r Ray) Transform(m mgl32.Mat4) Ray {
	return Ray{
		Origin:    mgl32.TransformCoordinate(r.Origin, m),
		Direction: normalize(mgl32.TransformNormal(r.Direction, m)),
	}
}

// At returns the point located at distance t along the ray.
func (r Ray) At(t float32) mgl32.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Overlap reports whether the ray crosses box in front of its origin.
func (r Ray) Overlap(box AABB, epsilon float32) bool {
	_, far, ok := slab(r.Origin, r.Direction, box, epsilon)
	return ok && far >= -epsilon
}

// IntersectSphere returns the closest hit of the ray with s. A ray starting
// inside the sphere hits its far side.
func (r Ray) IntersectSphere(s Sphere) (Hit, bool) {
	delta := s.Origin.Sub(r.Origin)
	t := delta.Dot(r.Direction)
	d2 := s.Radius*s.Radius - (delta.Dot(delta) - t*t)
	if d2 < 0 {
		return Hit{}, false
	}

	half := float32(math.Sqrt(float64(d2)))
	near := t - half
	far := t + half

	distance := near
	if near < 0 {
		distance = far
	}
	if distance < 0 {
		return Hit{}, false
	}

	position := r.At(distance)
	return Hit{
		Distance: distance,
		Position: position,
		Normal:   normalize(position.Sub(s.Origin)),
	}, true
}

// IntersectPlane returns the hit of the ray with p. Rays parallel to the plane
// or pointing away from it miss.
func (r Ray) IntersectPlane(p Plane) (Hit, bool) {
	dot := r.Direction.Dot(p.Normal)
	if abs(dot) <= Epsilon {
		return Hit{}, false
	}

	distance := p.Normal.Dot(p.Origin.Sub(r.Origin)) / dot
	if distance <= 0 {
		return Hit{}, false
	}

	return Hit{
		Distance: distance,
		Position: r.At(distance),
		Normal:   p.Normal,
	}, true
}

// Segment is the part of a line going from From to To.
type Segment struct {
	From mgl32.Vec3
	To   mgl32.Vec3
}

// Overlap reports whether the segment crosses box.
func (s Segment) Overlap(box AABB, epsilon float32) bool {
	near, far, ok := slab(s.From, s.To.Sub(s.From), box, epsilon)
	return ok && far >= -epsilon && near <= 1+epsilon
}

// Plane is an infinite plane going through Origin.
type Plane struct {
	Origin mgl32.Vec3
	Normal mgl32.Vec3
}

// slab clips the parametric line origin + t*dir against box and returns the
// entry and exit parameters. Axes along which dir is null only check that the
// origin lies within the box bounds, which keeps flat boxes hittable.
func slab(origin, dir mgl32.Vec3, box AABB, epsilon float32) (near, far float32, ok bool) {
	near, far = negInf, posInf

	for i := 0; i < 3; i++ {
		if dir[i] == 0 {
			if origin[i] < box.Min[i]-epsilon || origin[i] > box.Max[i]+epsilon {
				return 0, 0, false
			}
			continue
		}

		inv := 1 / dir[i]
		t0 := (box.Min[i] - origin[i]) * inv
		t1 := (box.Max[i] - origin[i]) * inv
		if t0 > t1 {
			t0, t1 = t1, t0
		}

		near = max(near, t0)
		far = min(far, t1)
	}

	return near, far, near <= far+epsilon
}

func normalize(v mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Mul(1 / l)
}
