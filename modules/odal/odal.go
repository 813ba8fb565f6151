package odal

import (
	"context"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/spatial/geometry"
	"github.com/aukilabs/spatial/models"
	"github.com/aukilabs/spatial/modules"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	MsgTypeAssetInstanceAdd    = "asset_instance_add"
	MsgTypeAssetInstanceDelete = "asset_instance_delete"
	MsgTypeAssetInstanceList   = "asset_instance_list"
	MsgTypeAssetInstanceRegion = "asset_instance_region"
)

// Error type returned when a session was not initialized with the module.
const ErrTypeStateNotFound = "odal_state_not_found"

type Module struct{}

func (m *Module) Name() string {
	return "odal"
}

func (m *Module) Init(s *models.Session) {
	if _, ok := s.ModuleState(m.Name()); ok {
		return
	}
	s.SetModuleState(m.Name(), &State{})
}

func (m *Module) HandleMsg(ctx context.Context, s *models.Session, msg modules.Msg) (any, error) {
	v, ok := s.ModuleState(m.Name())
	if !ok {
		return nil, errors.New("odal state not found").
			WithType(ErrTypeStateNotFound).
			WithTag("session_id", s.ID)
	}
	state := v.(*State)

	switch msg.Type {
	case MsgTypeAssetInstanceAdd:
		return m.handleAssetInstanceAdd(s, state, msg)

	case MsgTypeAssetInstanceDelete:
		return m.handleAssetInstanceDelete(s, state, msg)

	case MsgTypeAssetInstanceList:
		return AssetInstancesResponse{
			AssetInstances: m.liveAssetInstances(s, state),
		}, nil

	case MsgTypeAssetInstanceRegion:
		return m.handleAssetInstanceRegion(s, state, msg)

	default:
		return nil, modules.SkipMsg(m, msg)
	}
}

type AssetInstanceAddRequest struct {
	EntityID uint32 `json:"entity_id"`
	AssetID  string `json:"asset_id"`
}

type AssetInstanceAddResponse struct {
	AssetInstanceID uint32 `json:"asset_instance_id"`
}

func (m *Module) handleAssetInstanceAdd(s *models.Session, state *State, msg modules.Msg) (any, error) {
	var req AssetInstanceAddRequest
	if err := msg.DataTo(&req); err != nil {
		return nil, err
	}

	if req.AssetID == "" {
		return nil, errors.New("asset id is empty").
			WithType(modules.ErrTypeBadMsg).
			WithTag("msg_type", msg.Type)
	}

	entity, err := s.Entity(req.EntityID)
	if err != nil {
		return nil, err
	}

	assetInstance := AssetInstance{
		ID:       state.NewAssetInstanceID(),
		AssetID:  req.AssetID,
		EntityID: entity.ID,
	}
	state.SetAssetInstance(assetInstance)

	return AssetInstanceAddResponse{AssetInstanceID: assetInstance.ID}, nil
}

type AssetInstanceDeleteRequest struct {
	EntityID uint32 `json:"entity_id"`
}

func (m *Module) handleAssetInstanceDelete(s *models.Session, state *State, msg modules.Msg) (any, error) {
	var req AssetInstanceDeleteRequest
	if err := msg.DataTo(&req); err != nil {
		return nil, err
	}

	state.RemoveAssetInstance(req.EntityID)
	return AssetInstancesResponse{
		AssetInstances: m.liveAssetInstances(s, state),
	}, nil
}

type AssetInstancesResponse struct {
	AssetInstances []AssetInstance `json:"asset_instances"`
}

type AssetInstanceRegionRequest struct {
	Min mgl32.Vec3 `json:"min"`
	Max mgl32.Vec3 `json:"max"`
}

// handleAssetInstanceRegion returns the asset instances attached to the
// entities found in a region of the session entity index.
func (m *Module) handleAssetInstanceRegion(s *models.Session, state *State, msg modules.Msg) (any, error) {
	var req AssetInstanceRegionRequest
	if err := msg.DataTo(&req); err != nil {
		return nil, err
	}

	entityIDs := s.QueryRegion(geometry.FromMinMax(
		geometry.MinVec(req.Min, req.Max),
		geometry.MaxVec(req.Min, req.Max),
	))

	assetInstances := make([]AssetInstance, 0, len(entityIDs))
	for _, id := range entityIDs {
		if ai, ok := state.AssetInstance(id); ok {
			assetInstances = append(assetInstances, ai)
		}
	}
	return AssetInstancesResponse{AssetInstances: assetInstances}, nil
}

// liveAssetInstances returns the asset instances, after removing the ones
// whose entity was removed from the session.
func (m *Module) liveAssetInstances(s *models.Session, state *State) []AssetInstance {
	assetInstances := state.AssetInstances()

	live := assetInstances[:0]
	for _, ai := range assetInstances {
		if _, ok := s.EntityByID(ai.EntityID); !ok {
			state.RemoveAssetInstance(ai.EntityID)
			continue
		}
		live = append(live, ai)
	}
	return live
}
