package dagaz

import (
	"github.com/aukilabs/spatial/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

type SpatialDebugInfo struct {
	PlaneCount uint32     `json:"plane_count"`
	MergeCount uint32     `json:"merge_count"`
	MinPoint   mgl32.Vec3 `json:"min_point"`
	MaxPoint   mgl32.Vec3 `json:"max_point"`
	Depth      int        `json:"depth"`
	Nodes      int        `json:"nodes"`
}

type SpatialPartition interface {
	InsertQuad(q Quad)
	IntersectQuad(s geometry.Segment) (Quad, float32, bool)
	GetRegion(min mgl32.Vec3, max mgl32.Vec3) []Quad

	// debug stuff:
	GetDebugInfo() SpatialDebugInfo
}
