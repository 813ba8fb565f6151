package models

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/spatial/bvh"
	"github.com/aukilabs/spatial/geometry"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SessionConfig holds the settings of a session.
type SessionConfig struct {
	// The interval between two frames. Defaults to DefaultFrameDuration.
	FrameDuration time.Duration

	// The margin added around entity bounds in the entity index.
	EntityPadding float32

	// The clock driving frames. Defaults to the wall clock.
	Clock clock.Clock
}

const DefaultFrameDuration = 15 * time.Millisecond

// Session represents a session that contains entities located in a shared
// space.
//
// Entity changes are applied to the session entity index once per frame,
// before frame handlers run. Queries only see entities as they were at the
// last frame.
type Session struct {
	ID          uint32
	SessionUUID string

	entityIDs     SequentialIDGenerator
	entityMutex   sync.RWMutex
	entities      map[uint32]*Entity
	removedIDs    []uint32
	entityIndex   *EntityIndex
	frameDuration time.Duration

	moduleStates map[string]any
	moduleMutex  sync.RWMutex

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *clock.Ticker
	frameHandlerIDs SequentialIDGenerator
	frameHandlers   map[uint32]func()
	frameMutex      sync.RWMutex
	frameCount      uint64
	dispatchMutex   sync.Mutex

	closeOnce sync.Once
}

func NewSession(id uint32, conf SessionConfig) *Session {
	if conf.Clock == nil {
		conf.Clock = clock.New()
	}
	if conf.FrameDuration <= 0 {
		conf.FrameDuration = DefaultFrameDuration
	}

	return &Session{
		ID:             id,
		SessionUUID:    uuid.New().String(),
		entities:       make(map[uint32]*Entity),
		entityIndex:    NewEntityIndex(conf.EntityPadding),
		frameDuration:  conf.FrameDuration,
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    conf.Clock.Ticker(conf.FrameDuration),
		moduleStates:   make(map[string]any),
		frameHandlers:  make(map[uint32]func()),
	}
}

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.frameTicker.Stop()
		s.closeFrameChan <- struct{}{}

		s.dispatchMutex.Lock()
		defer s.dispatchMutex.Unlock()

		s.entityMutex.Lock()
		instrumentEntityGauge(-len(s.entities))
		clear(s.entities)
		s.removedIDs = nil
		s.entityMutex.Unlock()

		s.entityIndex.Clear()
	})
}

func (s *Session) NewEntityID() uint32 {
	return s.entityIDs.New()
}

// AddEntity adds an entity to the session. It is indexed on the next frame.
func (s *Session) AddEntity(e *Entity) {
	s.entityMutex.Lock()
	defer s.entityMutex.Unlock()

	if _, ok := s.entities[e.ID]; !ok {
		instrumentEntityGauge(1)
	}
	s.entities[e.ID] = e
	e.markDirty()
}

// CreateEntity creates an entity with a new id and adds it to the session.
func (s *Session) CreateEntity(pose Pose, radius float32) (*Entity, error) {
	e, err := NewEntity(0, pose, radius)
	if err != nil {
		return nil, err
	}

	e.ID = s.NewEntityID()
	s.AddEntity(e)
	return e, nil
}

// RemoveEntity removes an entity from the session. It is removed from the
// index on the next frame and its id becomes reusable.
func (s *Session) RemoveEntity(e *Entity) {
	s.entityMutex.Lock()
	defer s.entityMutex.Unlock()

	if _, ok := s.entities[e.ID]; !ok {
		return
	}

	delete(s.entities, e.ID)
	s.removedIDs = append(s.removedIDs, e.ID)
	s.entityIDs.Reuse(e.ID)
	instrumentEntityGauge(-1)
}

func (s *Session) EntityByID(id uint32) (*Entity, bool) {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	e, ok := s.entities[id]
	return e, ok
}

// Entity returns the entity with the given id or an error of type
// ErrTypeEntityNotFound.
func (s *Session) Entity(id uint32) (*Entity, error) {
	e, ok := s.EntityByID(id)
	if !ok {
		return nil, errors.New("entity not found").
			WithType(ErrTypeEntityNotFound).
			WithTag("session_id", s.ID).
			WithTag("entity_id", id)
	}
	return e, nil
}

func (s *Session) Entities() []*Entity {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	entities := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}
	return entities
}

func (s *Session) EntityCount() int {
	s.entityMutex.RLock()
	defer s.entityMutex.RUnlock()

	return len(s.entities)
}

func (s *Session) SetModuleState(moduleName string, state any) {
	s.moduleMutex.Lock()
	defer s.moduleMutex.Unlock()

	s.moduleStates[moduleName] = state
}

func (s *Session) ModuleState(moduleName string) (any, bool) {
	s.moduleMutex.RLock()
	defer s.moduleMutex.RUnlock()

	state, ok := s.moduleStates[moduleName]
	return state, ok
}

// HandleFrame registers a function called on every frame, after the entity
// index is refreshed.
func (s *Session) HandleFrame(h func()) (cancel func()) {
	s.frameMutex.Lock()
	defer s.frameMutex.Unlock()

	id := s.frameHandlerIDs.New()
	s.frameHandlers[id] = h

	return func() {
		s.frameMutex.Lock()
		defer s.frameMutex.Unlock()

		delete(s.frameHandlers, id)
		s.frameHandlerIDs.Reuse(id)
	}
}

// StartDispatchFrames dispatches a frame on every tick until the session is
// closed.
func (s *Session) StartDispatchFrames() {
	s.startFrameOnce.Do(func() {
		for {
			select {
			case <-s.closeFrameChan:
				return

			case <-s.frameTicker.C:
				s.DispatchFrame()
			}
		}
	})
}

// DispatchFrame refreshes the entity index with the entity changes made since
// the previous frame, then calls the frame handlers.
func (s *Session) DispatchFrame() {
	s.dispatchMutex.Lock()
	defer s.dispatchMutex.Unlock()

	changed, removed := s.collectEntityChanges()
	res := s.entityIndex.Refresh(changed, removed)

	if res.Inserted+res.Updated+res.Removed != 0 {
		logs.WithTag("session_id", s.ID).
			WithTag("inserted", res.Inserted).
			WithTag("updated", res.Updated).
			WithTag("removed", res.Removed).
			Debug("entity index refreshed")
	}

	s.frameMutex.Lock()
	s.frameCount++
	s.frameMutex.Unlock()

	s.frameMutex.RLock()
	for _, h := range s.frameHandlers {
		h()
	}
	s.frameMutex.RUnlock()
}

// FrameCount returns the number of frames dispatched so far.
func (s *Session) FrameCount() uint64 {
	s.frameMutex.RLock()
	defer s.frameMutex.RUnlock()

	return s.frameCount
}

// FrameDuration returns the interval between two frames.
func (s *Session) FrameDuration() time.Duration {
	return s.frameDuration
}

func (s *Session) collectEntityChanges() ([]*Entity, []uint32) {
	s.entityMutex.Lock()
	defer s.entityMutex.Unlock()

	removed := s.removedIDs
	s.removedIDs = nil

	changed := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		changed = append(changed, e)
	}
	return changed, removed
}

// QueryRegion returns the sorted ids of the entities whose padded bounds
// overlap the given box.
func (s *Session) QueryRegion(region geometry.AABB) []uint32 {
	return s.entityIndex.Query(region)
}

// Raycast returns the entities hit by ray, closest first.
func (s *Session) Raycast(ray geometry.Ray) []RaycastHit {
	return s.entityIndex.Raycast(ray)
}

// RaycastAll casts the given rays concurrently. Hits are returned in the
// order of the rays.
func (s *Session) RaycastAll(ctx context.Context, rays []geometry.Ray) ([][]RaycastHit, error) {
	hits := make([][]RaycastHit, len(rays))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, ray := range rays {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return errors.New("raycast canceled").
					WithTag("session_id", s.ID).
					WithTag("ray", i).
					Wrap(err)
			}

			hits[i] = s.entityIndex.Raycast(ray)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hits, nil
}

// IndexStats returns the shape of the entity index.
func (s *Session) IndexStats() bvh.Stats {
	return s.entityIndex.Stats()
}

// ValidateIndex checks the consistency of the entity index.
func (s *Session) ValidateIndex() error {
	return s.entityIndex.Validate()
}

type SessionStore struct {
	// The session discovery service where sessions are registered.
	DiscoveryService SessionDiscoveryService

	initOnce sync.Once
	mutex    sync.RWMutex
	sessions map[string]*Session
	ids      SequentialIDGenerator
}

func (s *SessionStore) init() {
	s.sessions = map[string]*Session{}

	if s.DiscoveryService == nil {
		s.DiscoveryService = defaultSessionDiscoveryService{}
	}
}

func (s *SessionStore) NewID() uint32 {
	return s.ids.New()
}

func (s *SessionStore) Add(ctx context.Context, session *Session) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	globalID := s.GlobalSessionID(session.ID)
	if _, ok := s.sessions[globalID]; ok {
		return errors.New("session already added").
			WithTag("session_id", globalID)
	}
	s.sessions[globalID] = session

	instrumentIncreaseSessionGauge()
	instrumentCountSession()
	return nil
}

func (s *SessionStore) Remove(ctx context.Context, session *Session) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	globalID := s.GlobalSessionID(session.ID)
	if _, ok := s.sessions[globalID]; !ok {
		return
	}

	delete(s.sessions, globalID)
	session.Close()

	s.ids.Reuse(session.ID)

	instrumentDecreaseSessionGauge()
}

// RemoveAll removes and closes every session.
func (s *SessionStore) RemoveAll(ctx context.Context) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mutex.RUnlock()

	for _, session := range sessions {
		s.Remove(ctx, session)
	}
}

func (s *SessionStore) GetByGlobalID(v string) (*Session, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	session, ok := s.sessions[v]
	return session, ok
}

// Get returns the session with the given global id or an error of type
// ErrTypeSessionNotFound.
func (s *SessionStore) Get(globalID string) (*Session, error) {
	session, ok := s.GetByGlobalID(globalID)
	if !ok {
		return nil, errors.New("session not found").
			WithType(ErrTypeSessionNotFound).
			WithTag("session_id", globalID)
	}
	return session, nil
}

func (s *SessionStore) Count() int {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.sessions)
}

func (s *SessionStore) GlobalSessionID(sessionID uint32) string {
	s.initOnce.Do(s.init)
	return fmt.Sprintf("%sx%x", s.DiscoveryService.ServerID(), sessionID)
}

// SessionDiscoveryService is the interface to communicate with a session
// discovery service.
type SessionDiscoveryService interface {
	// Returns the id attributed to the current server.
	ServerID() string
}

type defaultSessionDiscoveryService struct{}

func (s defaultSessionDiscoveryService) ServerID() string {
	return "ted"
}

// StaticDiscoveryService is a session discovery service with a fixed server
// id.
type StaticDiscoveryService string

func (s StaticDiscoveryService) ServerID() string {
	return string(s)
}
