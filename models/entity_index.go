package models

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/aukilabs/spatial/bvh"
	"github.com/aukilabs/spatial/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

// RaycastHit is an entity hit by a ray.
type RaycastHit struct {
	EntityID uint32     `json:"entity_id"`
	Distance float32    `json:"distance"`
	Position mgl32.Vec3 `json:"position"`
	Normal   mgl32.Vec3 `json:"normal"`
}

// RefreshResult reports what a refresh changed in an entity index.
type RefreshResult struct {
	Inserted int
	Updated  int
	Removed  int
}

// EntityIndex is a bounding volume hierarchy of the entities of a session.
//
// Refresh is the only writer. Queries can run concurrently with each other
// and block while a refresh is in progress.
type EntityIndex struct {
	padding float32

	mutex   sync.RWMutex
	tree    *bvh.Tree[uint32]
	handles map[uint32]bvh.Handle
	targets map[uint32]raycastTarget
}

type raycastTarget struct {
	transform mgl32.Mat4
	inverse   mgl32.Mat4
	bounds    geometry.Sphere
}

// NewEntityIndex returns an empty index. Entity bounds are stored inflated by
// padding so that small moves do not restructure the tree.
func NewEntityIndex(padding float32) *EntityIndex {
	return &EntityIndex{
		padding: padding,
		tree:    bvh.New[uint32](bvh.WithName("entities")),
		handles: make(map[uint32]bvh.Handle),
		targets: make(map[uint32]raycastTarget),
	}
}

// Refresh removes the given entity ids from the index, then inserts or
// updates the changed entities. Hidden entities are removed.
func (idx *EntityIndex) Refresh(changed []*Entity, removed []uint32) RefreshResult {
	start := time.Now()

	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	var res RefreshResult

	for _, id := range removed {
		if idx.remove(id) {
			res.Removed++
		}
	}

	for _, e := range changed {
		s, ok := e.snapshot()
		if !ok {
			continue
		}

		if s.hidden {
			if idx.remove(s.id) {
				res.Removed++
			}
			continue
		}

		aabb := s.bounds.AABB(s.transform)
		idx.targets[s.id] = raycastTarget{
			transform: s.transform,
			inverse:   s.transform.Inv(),
			bounds:    s.bounds,
		}

		if h, ok := idx.handles[s.id]; ok {
			idx.handles[s.id] = idx.tree.Update(h, aabb, idx.padding)
			res.Updated++
			continue
		}

		idx.handles[s.id] = idx.tree.Insert(s.id, aabb, idx.padding)
		res.Inserted++
	}

	instrumentIndexRefresh(res, time.Since(start))
	return res
}

func (idx *EntityIndex) remove(id uint32) bool {
	h, ok := idx.handles[id]
	if !ok {
		return false
	}

	idx.tree.Remove(h)
	delete(idx.handles, id)
	delete(idx.targets, id)
	return true
}

// Clear removes every entity from the index.
func (idx *EntityIndex) Clear() {
	idx.mutex.Lock()
	defer idx.mutex.Unlock()

	idx.tree.Clear()
	clear(idx.handles)
	clear(idx.targets)
}

// Contains reports whether the entity with the given id is indexed.
func (idx *EntityIndex) Contains(id uint32) bool {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	_, ok := idx.handles[id]
	return ok
}

// Query returns the sorted ids of the entities whose padded bounds overlap
// filter.
func (idx *EntityIndex) Query(filter geometry.Overlapper) []uint32 {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	ids := slices.Collect(idx.tree.Keys(filter))
	slices.Sort(ids)
	return ids
}

// Raycast returns the entities whose bounding sphere is hit by ray, closest
// first.
func (idx *EntityIndex) Raycast(ray geometry.Ray) []RaycastHit {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	var hits []RaycastHit

	for id := range idx.tree.Keys(ray) {
		target, ok := idx.targets[id]
		if !ok {
			continue
		}

		hit, ok := ray.Transform(target.inverse).IntersectSphere(target.bounds)
		if !ok {
			continue
		}

		position := mgl32.TransformCoordinate(hit.Position, target.transform)
		normal := mgl32.TransformNormal(hit.Normal, target.transform)
		if l := normal.Len(); l != 0 {
			normal = normal.Mul(1 / l)
		}

		hits = append(hits, RaycastHit{
			EntityID: id,
			Distance: position.Sub(ray.Origin).Len(),
			Position: position,
			Normal:   normal,
		})
	}

	slices.SortFunc(hits, func(a, b RaycastHit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.EntityID, b.EntityID)
	})
	return hits
}

// Stats returns the shape of the underlying tree.
func (idx *EntityIndex) Stats() bvh.Stats {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	return idx.tree.Stats()
}

// Validate checks the consistency of the underlying tree.
func (idx *EntityIndex) Validate() error {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()

	return idx.tree.Validate()
}
