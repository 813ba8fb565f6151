package dagaz

import (
	"context"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/spatial/geometry"
	"github.com/aukilabs/spatial/models"
	"github.com/aukilabs/spatial/modules"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	MsgTypeQuadSample     = "quad_sample"
	MsgTypeGetGroundPlane = "get_ground_plane"
	MsgTypeGetRegion      = "get_region"
	MsgTypeGetDebugInfo   = "get_debug_info"
)

// Error type returned when a session was not initialized with the module.
const ErrTypeStateNotFound = "dagaz_state_not_found"

// State is the per session module state.
type State struct {
	SpatialPartition SpatialPartition
}

type Module struct {
	// Disables merging of quads sampled at about the same position.
	DisableMerge bool
}

func (m *Module) Name() string {
	return "dagaz"
}

func (m *Module) Init(s *models.Session) {
	if _, ok := s.ModuleState(m.Name()); ok {
		return
	}

	s.SetModuleState(m.Name(), &State{
		SpatialPartition: NewBVHPartition(!m.DisableMerge),
	})
}

func (m *Module) HandleMsg(ctx context.Context, s *models.Session, msg modules.Msg) (any, error) {
	state, err := m.state(s)
	if err != nil {
		return nil, err
	}

	switch msg.Type {
	case MsgTypeQuadSample:
		return m.HandleDagazQuadSample(ctx, state, msg)

	case MsgTypeGetGroundPlane:
		return m.HandleDagazGetGroundPlane(ctx, state, msg)

	case MsgTypeGetRegion:
		return m.HandleDagazGetRegion(ctx, state, msg)

	case MsgTypeGetDebugInfo:
		return state.SpatialPartition.GetDebugInfo(), nil

	default:
		return nil, modules.SkipMsg(m, msg)
	}
}

func (m *Module) state(s *models.Session) (*State, error) {
	v, ok := s.ModuleState(m.Name())
	if !ok {
		return nil, errors.New("dagaz state not found").
			WithType(ErrTypeStateNotFound).
			WithTag("session_id", s.ID)
	}
	return v.(*State), nil
}

type QuadSample struct {
	Samples []Quad `json:"samples"`
}

type QuadSampleResponse struct {
	PlaneCount uint32 `json:"plane_count"`
}

func (m *Module) HandleDagazQuadSample(ctx context.Context, state *State, msg modules.Msg) (any, error) {
	var sample QuadSample
	if err := msg.DataTo(&sample); err != nil {
		return nil, err
	}

	for _, q := range sample.Samples {
		state.SpatialPartition.InsertQuad(NewQuad(q.Center, q.Extents))
	}

	return QuadSampleResponse{
		PlaneCount: state.SpatialPartition.GetDebugInfo().PlaneCount,
	}, nil
}

type GetGroundPlaneRequest struct {
	From mgl32.Vec3 `json:"from"`
	To   mgl32.Vec3 `json:"to"`
}

type GetGroundPlaneResponse struct {
	Ground Quad    `json:"ground"`
	Hit    bool    `json:"hit"`
	T      float32 `json:"t"`
}

// HandleDagazGetGroundPlane returns the first quad crossed by the requested
// segment. An invalid zero quad is returned when nothing is crossed.
func (m *Module) HandleDagazGetGroundPlane(ctx context.Context, state *State, msg modules.Msg) (any, error) {
	var req GetGroundPlaneRequest
	if err := msg.DataTo(&req); err != nil {
		return nil, err
	}

	ground, t, hit := state.SpatialPartition.IntersectQuad(geometry.Segment{
		From: req.From,
		To:   req.To,
	})

	return GetGroundPlaneResponse{
		Ground: ground,
		Hit:    hit,
		T:      t,
	}, nil
}

type GetRegionRequest struct {
	Min mgl32.Vec3 `json:"min"`
	Max mgl32.Vec3 `json:"max"`
}

type GetRegionResponse struct {
	Quads []Quad `json:"quads"`
}

func (m *Module) HandleDagazGetRegion(ctx context.Context, state *State, msg modules.Msg) (any, error) {
	var req GetRegionRequest
	if err := msg.DataTo(&req); err != nil {
		return nil, err
	}

	quads := state.SpatialPartition.GetRegion(req.Min, req.Max)
	if quads == nil {
		quads = []Quad{}
	}
	return GetRegionResponse{Quads: quads}, nil
}
