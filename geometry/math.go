package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Epsilon is the float32 machine epsilon, the default tolerance of every
// comparison in this package.
const Epsilon = float32(1.1920929e-07)

var (
	posInf = float32(math.Inf(1))
	negInf = float32(math.Inf(-1))
)

func EqualWithEpsilon(a, b, epsilon float32) bool {
	return abs(a-b) <= epsilon
}

func InRangeWithEpsilon(value, min, max, epsilon float32) bool {
	return value+epsilon >= min && value-epsilon <= max
}

// MinVec returns the componentwise minimum of a and b.
func MinVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		min(a[0], b[0]),
		min(a[1], b[1]),
		min(a[2], b[2]),
	}
}

// MaxVec returns the componentwise maximum of a and b.
func MaxVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		max(a[0], b[0]),
		max(a[1], b[1]),
		max(a[2], b[2]),
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
