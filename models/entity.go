package models

import (
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/spatial/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

// Entity is an object of a session that can be found by region queries and
// raycasts through its bounding sphere.
type Entity struct {
	ID uint32

	mutex  sync.RWMutex
	pose   Pose
	bounds geometry.Sphere
	hidden bool
	dirty  bool
}

// NewEntity returns an entity located at pose and bounded by a sphere of the
// given radius centered on its origin.
func NewEntity(id uint32, pose Pose, radius float32) (*Entity, error) {
	e := &Entity{
		ID:    id,
		pose:  pose,
		dirty: true,
	}
	if err := e.SetBounds(geometry.Sphere{Radius: radius}); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Entity) SetPose(v Pose) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.pose = v
	e.dirty = true
}

func (e *Entity) Pose() Pose {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.pose
}

// SetBounds sets the bounding sphere of the entity, expressed in the entity
// local space.
func (e *Entity) SetBounds(v geometry.Sphere) error {
	if v.Radius < 0 {
		return errors.New("negative bounding sphere radius").
			WithType(ErrTypeInvalidEntity).
			WithTag("entity_id", e.ID).
			WithTag("radius", v.Radius)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.bounds = v
	e.dirty = true
	return nil
}

func (e *Entity) Bounds() geometry.Sphere {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.bounds
}

// SetHidden sets whether the entity is excluded from queries.
func (e *Entity) SetHidden(v bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.hidden != v {
		e.hidden = v
		e.dirty = true
	}
}

func (e *Entity) Hidden() bool {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.hidden
}

func (e *Entity) markDirty() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.dirty = true
}

// snapshot returns the state of the entity as seen by the entity index and
// clears its dirty flag. ok is false when nothing changed since the previous
// snapshot.
func (e *Entity) snapshot() (s entitySnapshot, ok bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if !e.dirty {
		return entitySnapshot{}, false
	}
	e.dirty = false

	return entitySnapshot{
		id:        e.ID,
		transform: e.pose.Matrix(),
		bounds:    e.bounds,
		hidden:    e.hidden,
	}, true
}

type entitySnapshot struct {
	id        uint32
	transform mgl32.Mat4
	bounds    geometry.Sphere
	hidden    bool
}

// Pose is a position and a rotation quaternion.
type Pose struct {
	PX float32 `json:"px"`
	PY float32 `json:"py"`
	PZ float32 `json:"pz"`
	RX float32 `json:"rx"`
	RY float32 `json:"ry"`
	RZ float32 `json:"rz"`
	RW float32 `json:"rw"`
}

// IdentityPose returns a pose at the origin, without rotation.
func IdentityPose() Pose {
	return Pose{RW: 1}
}

func (p Pose) Position() mgl32.Vec3 {
	return mgl32.Vec3{p.PX, p.PY, p.PZ}
}

// Rotation returns the normalized rotation. A zero quaternion is read as no
// rotation.
func (p Pose) Rotation() mgl32.Quat {
	q := mgl32.Quat{W: p.RW, V: mgl32.Vec3{p.RX, p.RY, p.RZ}}
	if q.Len() == 0 {
		return mgl32.QuatIdent()
	}
	return q.Normalize()
}

// Matrix returns the local to world transform described by the pose.
func (p Pose) Matrix() mgl32.Mat4 {
	return mgl32.Translate3D(p.PX, p.PY, p.PZ).Mul4(p.Rotation().Mat4())
}
