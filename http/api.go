package http

import (
	"io"
	"net/http"
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/spatial/featureflag"
	"github.com/aukilabs/spatial/geometry"
	"github.com/aukilabs/spatial/models"
	"github.com/aukilabs/spatial/modules"
	"github.com/go-gl/mathgl/mgl32"
)

// API serves the session, entity index and module routes.
type API struct {
	// The store where sessions are registered.
	Sessions *models.SessionStore

	// The modules initialized with each session.
	Modules []modules.Module

	FeatureFlags featureflag.FeatureFlag

	// The settings of created sessions.
	SessionConfig models.SessionConfig

	// Starts dispatching frames of created sessions. When false, frames must
	// be dispatched by calling DispatchFrame.
	DispatchFrames bool

	// The access token required on session routes. Empty disables
	// authentication.
	AuthToken string
}

// Register registers the API routes on the given mux.
func (a *API) Register(mux *http.ServeMux) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, HandleWithRecovery(VerifyAuthTokenHandler(a.AuthToken, h)))
	}

	handle("POST /sessions", a.HandleSessionCreate)
	handle("GET /sessions/{session_id}", a.HandleSessionGet)
	handle("DELETE /sessions/{session_id}", a.HandleSessionDelete)

	handle("POST /sessions/{session_id}/entities", a.HandleEntityAdd)
	handle("GET /sessions/{session_id}/entities/{entity_id}", a.HandleEntityGet)
	handle("PUT /sessions/{session_id}/entities/{entity_id}", a.HandleEntityUpdate)
	handle("DELETE /sessions/{session_id}/entities/{entity_id}", a.HandleEntityDelete)

	handle("POST /sessions/{session_id}/raycast", a.HandleRaycast)
	handle("POST /sessions/{session_id}/region", a.HandleRegion)
	handle("GET /sessions/{session_id}/index", a.HandleIndexStats)
	handle("POST /sessions/{session_id}/index/validate", a.HandleIndexValidate)

	handle("POST /sessions/{session_id}/modules/{module}/{msg_type}", a.HandleWithModule)
}

type SessionResponse struct {
	SessionID   string `json:"session_id"`
	SessionUUID string `json:"session_uuid"`
	EntityCount int    `json:"entity_count"`
	FrameCount  uint64 `json:"frame_count"`
}

func (a *API) HandleSessionCreate(w http.ResponseWriter, r *http.Request) {
	session := models.NewSession(a.Sessions.NewID(), a.SessionConfig)
	if err := a.Sessions.Add(r.Context(), session); err != nil {
		session.Close()
		writeError(w, err)
		return
	}

	for _, m := range a.Modules {
		m.Init(session)
	}

	if a.DispatchFrames {
		go session.StartDispatchFrames()
	}

	globalID := a.Sessions.GlobalSessionID(session.ID)
	logs.WithTag("session_id", globalID).
		WithTag("session_uuid", session.SessionUUID).
		Info("session created")

	writeJSON(w, http.StatusCreated, a.sessionResponse(session))
}

func (a *API) HandleSessionGet(w http.ResponseWriter, r *http.Request) {
	session, err := a.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, a.sessionResponse(session))
}

func (a *API) HandleSessionDelete(w http.ResponseWriter, r *http.Request) {
	session, err := a.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	a.Sessions.Remove(r.Context(), session)

	logs.WithTag("session_id", r.PathValue("session_id")).
		WithTag("session_uuid", session.SessionUUID).
		Info("session deleted")

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) sessionResponse(s *models.Session) SessionResponse {
	return SessionResponse{
		SessionID:   a.Sessions.GlobalSessionID(s.ID),
		SessionUUID: s.SessionUUID,
		EntityCount: s.EntityCount(),
		FrameCount:  s.FrameCount(),
	}
}

type EntityRequest struct {
	Pose   *models.Pose `json:"pose"`
	Radius *float32     `json:"radius"`
	Hidden *bool        `json:"hidden"`
}

type EntityResponse struct {
	EntityID uint32      `json:"entity_id"`
	Pose     models.Pose `json:"pose"`
	Radius   float32     `json:"radius"`
	Hidden   bool        `json:"hidden"`
}

func newEntityResponse(e *models.Entity) EntityResponse {
	return EntityResponse{
		EntityID: e.ID,
		Pose:     e.Pose(),
		Radius:   e.Bounds().Radius,
		Hidden:   e.Hidden(),
	}
}

func (a *API) HandleEntityAdd(w http.ResponseWriter, r *http.Request) {
	session, err := a.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req EntityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	pose := models.IdentityPose()
	if req.Pose != nil {
		pose = *req.Pose
	}

	var radius float32
	if req.Radius != nil {
		radius = *req.Radius
	}

	entity, err := session.CreateEntity(pose, radius)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Hidden != nil {
		entity.SetHidden(*req.Hidden)
	}

	writeJSON(w, http.StatusCreated, newEntityResponse(entity))
}

func (a *API) HandleEntityGet(w http.ResponseWriter, r *http.Request) {
	_, entity, err := a.entity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newEntityResponse(entity))
}

func (a *API) HandleEntityUpdate(w http.ResponseWriter, r *http.Request) {
	_, entity, err := a.entity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req EntityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Radius != nil {
		if err := entity.SetBounds(geometry.Sphere{Radius: *req.Radius}); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Pose != nil {
		entity.SetPose(*req.Pose)
	}
	if req.Hidden != nil {
		entity.SetHidden(*req.Hidden)
	}

	writeJSON(w, http.StatusOK, newEntityResponse(entity))
}

func (a *API) HandleEntityDelete(w http.ResponseWriter, r *http.Request) {
	session, entity, err := a.entity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	session.RemoveEntity(entity)
	w.WriteHeader(http.StatusNoContent)
}

type RayRequest struct {
	Origin    mgl32.Vec3 `json:"origin"`
	Direction mgl32.Vec3 `json:"direction"`
}

type RaycastRequest struct {
	Rays []RayRequest `json:"rays"`
}

type RaycastResponse struct {
	Hits [][]models.RaycastHit `json:"hits"`
}

func (a *API) HandleRaycast(w http.ResponseWriter, r *http.Request) {
	if err := a.checkFeature(featureflag.FlagDisableRaycast); err != nil {
		writeError(w, err)
		return
	}

	session, err := a.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req RaycastRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	rays := make([]geometry.Ray, len(req.Rays))
	for i, ray := range req.Rays {
		if ray.Direction.Len() == 0 {
			writeError(w, errors.New("ray direction is zero").
				WithType(ErrTypeBadRequest).
				WithTag("ray", i))
			return
		}
		rays[i] = geometry.NewRay(ray.Origin, ray.Direction)
	}

	hits, err := session.RaycastAll(r.Context(), rays)
	if err != nil {
		writeError(w, err)
		return
	}

	for i := range hits {
		if hits[i] == nil {
			hits[i] = []models.RaycastHit{}
		}
	}
	writeJSON(w, http.StatusOK, RaycastResponse{Hits: hits})
}

type RegionRequest struct {
	Min mgl32.Vec3 `json:"min"`
	Max mgl32.Vec3 `json:"max"`
}

type RegionResponse struct {
	EntityIDs []uint32 `json:"entity_ids"`
}

func (a *API) HandleRegion(w http.ResponseWriter, r *http.Request) {
	if err := a.checkFeature(featureflag.FlagDisableRegionQuery); err != nil {
		writeError(w, err)
		return
	}

	session, err := a.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req RegionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ids := session.QueryRegion(geometry.FromMinMax(
		geometry.MinVec(req.Min, req.Max),
		geometry.MaxVec(req.Min, req.Max),
	))
	if ids == nil {
		ids = []uint32{}
	}
	writeJSON(w, http.StatusOK, RegionResponse{EntityIDs: ids})
}

func (a *API) HandleIndexStats(w http.ResponseWriter, r *http.Request) {
	session, err := a.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session.IndexStats())
}

type ValidateResponse struct {
	Valid bool `json:"valid"`
}

func (a *API) HandleIndexValidate(w http.ResponseWriter, r *http.Request) {
	if err := a.checkFeature(featureflag.FlagDisableIndexValidation); err != nil {
		writeError(w, err)
		return
	}

	session, err := a.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := session.ValidateIndex(); err != nil {
		writeError(w, errors.New("entity index is corrupted").
			WithType(ErrTypeInternal).
			WithTag("session_id", r.PathValue("session_id")).
			Wrap(err))
		return
	}

	writeJSON(w, http.StatusOK, ValidateResponse{Valid: true})
}

func (a *API) HandleWithModule(w http.ResponseWriter, r *http.Request) {
	if err := a.checkFeature(featureflag.FlagDisableModules); err != nil {
		writeError(w, err)
		return
	}

	session, err := a.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	name := r.PathValue("module")
	module, ok := modules.Find(a.Modules, name)
	if !ok {
		writeError(w, errors.New("module not found").
			WithType(ErrTypeModuleNotFound).
			WithTag("module", name))
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, errors.New("reading body failed").
			WithType(ErrTypeBadRequest).
			Wrap(err))
		return
	}

	res, err := module.HandleMsg(r.Context(), session, modules.Msg{
		Type: r.PathValue("msg_type"),
		Data: data,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (a *API) session(r *http.Request) (*models.Session, error) {
	return a.Sessions.Get(r.PathValue("session_id"))
}

func (a *API) entity(r *http.Request) (*models.Session, *models.Entity, error) {
	session, err := a.session(r)
	if err != nil {
		return nil, nil, err
	}

	v := r.PathValue("entity_id")
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return nil, nil, errors.New("invalid entity id").
			WithType(ErrTypeBadRequest).
			WithTag("entity_id", v).
			Wrap(err)
	}

	entity, err := session.Entity(uint32(id))
	if err != nil {
		return nil, nil, err
	}
	return session, entity, nil
}

func (a *API) checkFeature(flag featureflag.Flag) error {
	if a.FeatureFlags.IsSet(flag) {
		return errors.New("feature disabled").
			WithType(ErrTypeFeatureDisabled).
			WithTag("feature_flag", flag)
	}
	return nil
}
