package odal

import (
	"cmp"
	"slices"
	"sync"

	"github.com/aukilabs/spatial/models"
)

// AssetInstance is an asset attached to an entity.
type AssetInstance struct {
	ID       uint32 `json:"id"`
	AssetID  string `json:"asset_id"`
	EntityID uint32 `json:"entity_id"`
}

// State represents a state that keeps track of assets instances.
type State struct {
	assetMutex       sync.RWMutex
	assetInstanceIDs models.SequentialIDGenerator
	assetInstances   map[uint32]AssetInstance
}

func (s *State) NewAssetInstanceID() uint32 {
	return s.assetInstanceIDs.New()
}

// SetAssetInstance attaches ai to its entity, replacing the asset instance
// previously attached.
func (s *State) SetAssetInstance(ai AssetInstance) {
	s.assetMutex.Lock()
	defer s.assetMutex.Unlock()

	if s.assetInstances == nil {
		s.assetInstances = make(map[uint32]AssetInstance)
	}

	if prev, ok := s.assetInstances[ai.EntityID]; ok && prev.ID != ai.ID {
		s.assetInstanceIDs.Reuse(prev.ID)
	}
	s.assetInstances[ai.EntityID] = ai
}

func (s *State) RemoveAssetInstance(entityID uint32) {
	s.assetMutex.Lock()
	defer s.assetMutex.Unlock()

	if ai, ok := s.assetInstances[entityID]; ok {
		s.assetInstanceIDs.Reuse(ai.ID)
		delete(s.assetInstances, entityID)
	}
}

func (s *State) AssetInstance(entityID uint32) (AssetInstance, bool) {
	s.assetMutex.RLock()
	defer s.assetMutex.RUnlock()

	ai, ok := s.assetInstances[entityID]
	return ai, ok
}

// AssetInstances returns the asset instances ordered by id.
func (s *State) AssetInstances() []AssetInstance {
	s.assetMutex.RLock()
	defer s.assetMutex.RUnlock()

	assetInstances := make([]AssetInstance, 0, len(s.assetInstances))
	for _, ai := range s.assetInstances {
		assetInstances = append(assetInstances, ai)
	}

	slices.SortFunc(assetInstances, func(a, b AssetInstance) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return assetInstances
}
