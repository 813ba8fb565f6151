package models

import (
	"math"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/spatial/geometry"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestNewEntity(t *testing.T) {
	t.Run("valid entity is dirty", func(t *testing.T) {
		e, err := NewEntity(1, IdentityPose(), 2)
		require.NoError(t, err)
		require.Equal(t, uint32(1), e.ID)
		require.Equal(t, geometry.Sphere{Radius: 2}, e.Bounds())

		_, ok := e.snapshot()
		require.True(t, ok)
		_, ok = e.snapshot()
		require.False(t, ok)
	})

	t.Run("negative radius is rejected", func(t *testing.T) {
		_, err := NewEntity(1, IdentityPose(), -1)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeInvalidEntity))
	})
}

func TestEntitySetters(t *testing.T) {
	e, err := NewEntity(1, IdentityPose(), 1)
	require.NoError(t, err)
	e.snapshot()

	t.Run("set pose", func(t *testing.T) {
		pose := Pose{PX: 1, PY: 2, PZ: 3, RW: 1}
		e.SetPose(pose)
		require.Equal(t, pose, e.Pose())

		s, ok := e.snapshot()
		require.True(t, ok)
		require.Equal(t, mgl32.Translate3D(1, 2, 3), s.transform)
	})

	t.Run("set bounds", func(t *testing.T) {
		require.NoError(t, e.SetBounds(geometry.Sphere{Origin: mgl32.Vec3{0, 1, 0}, Radius: 3}))
		s, ok := e.snapshot()
		require.True(t, ok)
		require.Equal(t, float32(3), s.bounds.Radius)

		require.Error(t, e.SetBounds(geometry.Sphere{Radius: -3}))
		_, ok = e.snapshot()
		require.False(t, ok)
	})

	t.Run("set hidden", func(t *testing.T) {
		e.SetHidden(false)
		_, ok := e.snapshot()
		require.False(t, ok)

		e.SetHidden(true)
		require.True(t, e.Hidden())
		s, ok := e.snapshot()
		require.True(t, ok)
		require.True(t, s.hidden)
	})
}

func TestPoseMatrix(t *testing.T) {
	t.Run("zero rotation is identity", func(t *testing.T) {
		p := Pose{PX: 1, PY: 2, PZ: 3}
		require.Equal(t, mgl32.Translate3D(1, 2, 3), p.Matrix())
	})

	t.Run("rotation then translation", func(t *testing.T) {
		half := float32(math.Sqrt2 / 2)
		p := Pose{PX: 10, RY: half, RW: half}

		v := mgl32.TransformCoordinate(mgl32.Vec3{1, 0, 0}, p.Matrix())
		require.InDelta(t, 10, v[0], 1e-5)
		require.InDelta(t, 0, v[1], 1e-5)
		require.InDelta(t, -1, v[2], 1e-5)
	})

	t.Run("rotation is normalized", func(t *testing.T) {
		p := Pose{RW: 2}
		require.Equal(t, mgl32.QuatIdent(), p.Rotation())
	})
}
