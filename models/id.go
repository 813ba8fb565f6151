package models

import (
	"slices"
	"sync"
)

// A sequential id generator. Released ids are handed out again, smallest
// first, before new ones are created.
type SequentialIDGenerator struct {
	mutex       sync.Mutex
	currentID   uint32
	reusableIDs []uint32
}

// New returns a sequental id.
func (g *SequentialIDGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.reusableIDs) != 0 {
		id := g.reusableIDs[0]
		g.reusableIDs = g.reusableIDs[1:]
		return id
	}

	g.currentID++
	return g.currentID
}

// Reuse marks the given id as reusable. Ids that were never returned by New
// and ids already marked are ignored.
func (g *SequentialIDGenerator) Reuse(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id == 0 || id > g.currentID {
		return
	}

	i, found := slices.BinarySearch(g.reusableIDs, id)
	if found {
		return
	}
	g.reusableIDs = slices.Insert(g.reusableIDs, i, id)
}
