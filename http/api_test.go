package http

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aukilabs/spatial/bvh"
	"github.com/aukilabs/spatial/featureflag"
	"github.com/aukilabs/spatial/models"
	"github.com/aukilabs/spatial/modules"
	"github.com/aukilabs/spatial/modules/dagaz"
	"github.com/aukilabs/spatial/modules/odal"
	"github.com/benbjohnson/clock"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T, flags ...string) (*API, *httptest.Server) {
	api := &API{
		Sessions: &models.SessionStore{
			DiscoveryService: models.StaticDiscoveryService("test"),
		},
		Modules:       []modules.Module{&dagaz.Module{}, &odal.Module{}},
		FeatureFlags:  featureflag.New(flags),
		SessionConfig: models.SessionConfig{Clock: clock.NewMock()},
	}

	var mux http.ServeMux
	api.Register(&mux)

	server := httptest.NewServer(&mux)
	t.Cleanup(server.Close)
	return api, server
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		b, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	if out != nil && len(b) != 0 {
		require.NoError(t, json.Unmarshal(b, out), string(b))
	}
	return res.StatusCode
}

func createTestSession(t *testing.T, server *httptest.Server) string {
	var res SessionResponse
	code := doJSON(t, http.MethodPost, server.URL+"/sessions", nil, &res)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, res.SessionID)
	return res.SessionID
}

func createTestEntity(t *testing.T, server *httptest.Server, sessionID string, x, y, z, radius float32) uint32 {
	var res EntityResponse
	code := doJSON(t, http.MethodPost, server.URL+"/sessions/"+sessionID+"/entities", EntityRequest{
		Pose:   &models.Pose{PX: x, PY: y, PZ: z, RW: 1},
		Radius: &radius,
	}, &res)
	require.Equal(t, http.StatusCreated, code)
	return res.EntityID
}

func dispatchFrame(t *testing.T, api *API, sessionID string) {
	session, err := api.Sessions.Get(sessionID)
	require.NoError(t, err)
	session.DispatchFrame()
}

func TestSessionRoutes(t *testing.T) {
	api, server := newTestAPI(t)

	sessionID := createTestSession(t, server)
	require.Equal(t, "testx1", sessionID)
	require.Equal(t, 1, api.Sessions.Count())

	session, err := api.Sessions.Get(sessionID)
	require.NoError(t, err)
	_, ok := session.ModuleState("dagaz")
	require.True(t, ok)

	var res SessionResponse
	code := doJSON(t, http.MethodGet, server.URL+"/sessions/"+sessionID, nil, &res)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, sessionID, res.SessionID)
	require.Equal(t, session.SessionUUID, res.SessionUUID)

	code = doJSON(t, http.MethodDelete, server.URL+"/sessions/"+sessionID, nil, nil)
	require.Equal(t, http.StatusNoContent, code)
	require.Zero(t, api.Sessions.Count())

	var errRes errorResponse
	code = doJSON(t, http.MethodGet, server.URL+"/sessions/"+sessionID, nil, &errRes)
	require.Equal(t, http.StatusNotFound, code)
	require.NotEmpty(t, errRes.Error)

	code = doJSON(t, http.MethodDelete, server.URL+"/sessions/"+sessionID, nil, nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestEntityRoutes(t *testing.T) {
	_, server := newTestAPI(t)
	sessionID := createTestSession(t, server)
	entitiesURL := server.URL + "/sessions/" + sessionID + "/entities"

	entityID := createTestEntity(t, server, sessionID, 1, 2, 3, 0.5)
	require.Equal(t, uint32(1), entityID)

	t.Run("get", func(t *testing.T) {
		var res EntityResponse
		code := doJSON(t, http.MethodGet, entitiesURL+"/1", nil, &res)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, EntityResponse{
			EntityID: 1,
			Pose:     models.Pose{PX: 1, PY: 2, PZ: 3, RW: 1},
			Radius:   0.5,
		}, res)
	})

	t.Run("add with defaults", func(t *testing.T) {
		var res EntityResponse
		code := doJSON(t, http.MethodPost, entitiesURL, `{}`, &res)
		require.Equal(t, http.StatusCreated, code)
		require.Equal(t, models.IdentityPose(), res.Pose)
		require.Zero(t, res.Radius)

		code = doJSON(t, http.MethodDelete, entitiesURL+"/2", nil, nil)
		require.Equal(t, http.StatusNoContent, code)
	})

	t.Run("add invalid entity", func(t *testing.T) {
		code := doJSON(t, http.MethodPost, entitiesURL, `{"radius":-1}`, nil)
		require.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("add with bad body", func(t *testing.T) {
		code := doJSON(t, http.MethodPost, entitiesURL, `{"radius":`, nil)
		require.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("update", func(t *testing.T) {
		var res EntityResponse
		code := doJSON(t, http.MethodPut, entitiesURL+"/1", `{"pose":{"px":10,"rw":1},"hidden":true}`, &res)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, float32(10), res.Pose.PX)
		require.Equal(t, float32(0.5), res.Radius)
		require.True(t, res.Hidden)

		code = doJSON(t, http.MethodPut, entitiesURL+"/1", `{"radius":-2}`, nil)
		require.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("unknown entity", func(t *testing.T) {
		code := doJSON(t, http.MethodGet, entitiesURL+"/42", nil, nil)
		require.Equal(t, http.StatusNotFound, code)
	})

	t.Run("invalid entity id", func(t *testing.T) {
		code := doJSON(t, http.MethodGet, entitiesURL+"/abc", nil, nil)
		require.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("unknown session", func(t *testing.T) {
		code := doJSON(t, http.MethodPost, server.URL+"/sessions/testx42/entities", `{}`, nil)
		require.Equal(t, http.StatusNotFound, code)
	})

	t.Run("delete", func(t *testing.T) {
		code := doJSON(t, http.MethodDelete, entitiesURL+"/1", nil, nil)
		require.Equal(t, http.StatusNoContent, code)

		code = doJSON(t, http.MethodDelete, entitiesURL+"/1", nil, nil)
		require.Equal(t, http.StatusNotFound, code)
	})
}

func TestQueryRoutes(t *testing.T) {
	api, server := newTestAPI(t)
	sessionID := createTestSession(t, server)
	sessionURL := server.URL + "/sessions/" + sessionID

	a := createTestEntity(t, server, sessionID, 0, 0, 0, 1)
	b := createTestEntity(t, server, sessionID, 10, 0, 0, 1)

	t.Run("queries see the last frame", func(t *testing.T) {
		var res RegionResponse
		code := doJSON(t, http.MethodPost, sessionURL+"/region", RegionRequest{
			Min: [3]float32{-100, -100, -100},
			Max: [3]float32{100, 100, 100},
		}, &res)
		require.Equal(t, http.StatusOK, code)
		require.NotNil(t, res.EntityIDs)
		require.Empty(t, res.EntityIDs)
	})

	dispatchFrame(t, api, sessionID)

	t.Run("region", func(t *testing.T) {
		var res RegionResponse
		code := doJSON(t, http.MethodPost, sessionURL+"/region", RegionRequest{
			Min: [3]float32{-2, -2, -2},
			Max: [3]float32{2, 2, 2},
		}, &res)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, []uint32{a}, res.EntityIDs)

		// min and max are reordered:
		code = doJSON(t, http.MethodPost, sessionURL+"/region", RegionRequest{
			Min: [3]float32{12, 2, 2},
			Max: [3]float32{-2, -2, -2},
		}, &res)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, []uint32{a, b}, res.EntityIDs)
	})

	t.Run("raycast", func(t *testing.T) {
		var res RaycastResponse
		code := doJSON(t, http.MethodPost, sessionURL+"/raycast", RaycastRequest{
			Rays: []RayRequest{
				{Origin: [3]float32{-5, 0, 0}, Direction: [3]float32{1, 0, 0}},
				{Origin: [3]float32{-5, 50, 0}, Direction: [3]float32{1, 0, 0}},
			},
		}, &res)
		require.Equal(t, http.StatusOK, code)
		require.Len(t, res.Hits, 2)

		require.Len(t, res.Hits[0], 2)
		require.Equal(t, a, res.Hits[0][0].EntityID)
		require.InDelta(t, 4, res.Hits[0][0].Distance, 0.001)
		require.Equal(t, b, res.Hits[0][1].EntityID)
		require.InDelta(t, 14, res.Hits[0][1].Distance, 0.001)

		require.NotNil(t, res.Hits[1])
		require.Empty(t, res.Hits[1])
	})

	t.Run("raycast with zero direction", func(t *testing.T) {
		code := doJSON(t, http.MethodPost, sessionURL+"/raycast", RaycastRequest{
			Rays: []RayRequest{{}},
		}, nil)
		require.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("index stats", func(t *testing.T) {
		var res bvh.Stats
		code := doJSON(t, http.MethodGet, sessionURL+"/index", nil, &res)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, 2, res.Leaves)
		require.Equal(t, 1, res.Subtrees)
	})

	t.Run("index validate", func(t *testing.T) {
		var res ValidateResponse
		code := doJSON(t, http.MethodPost, sessionURL+"/index/validate", nil, &res)
		require.Equal(t, http.StatusOK, code)
		require.True(t, res.Valid)
	})
}

func TestDisabledFeatures(t *testing.T) {
	_, server := newTestAPI(t,
		string(featureflag.FlagDisableRaycast),
		string(featureflag.FlagDisableRegionQuery),
		string(featureflag.FlagDisableIndexValidation),
		string(featureflag.FlagDisableModules),
	)
	sessionURL := server.URL + "/sessions/" + createTestSession(t, server)

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "raycast", path: "/raycast", body: `{"rays":[]}`},
		{name: "region", path: "/region", body: `{}`},
		{name: "index validation", path: "/index/validate"},
		{name: "modules", path: "/modules/dagaz/get_debug_info"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var res errorResponse
			code := doJSON(t, http.MethodPost, sessionURL+test.path, test.body, &res)
			require.Equal(t, http.StatusNotFound, code)
			require.NotEmpty(t, res.Error)
		})
	}
}

func TestModuleRoutes(t *testing.T) {
	_, server := newTestAPI(t)
	modulesURL := server.URL + "/sessions/" + createTestSession(t, server) + "/modules"

	var sample dagaz.QuadSampleResponse
	code := doJSON(t, http.MethodPost, modulesURL+"/dagaz/quad_sample", `{"samples":[
		{"center":[0,0,0],"extents":[1,0,1]},
		{"center":[0,0.2,0],"extents":[1,0,1]}
	]}`, &sample)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, uint32(1), sample.PlaneCount)

	var ground dagaz.GetGroundPlaneResponse
	code = doJSON(t, http.MethodPost, modulesURL+"/dagaz/get_ground_plane", `{"from":[0,5,0],"to":[0,-5,0]}`, &ground)
	require.Equal(t, http.StatusOK, code)
	require.True(t, ground.Hit)

	var info dagaz.SpatialDebugInfo
	code = doJSON(t, http.MethodPost, modulesURL+"/dagaz/get_debug_info", nil, &info)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, uint32(1), info.PlaneCount)
	require.Equal(t, uint32(1), info.MergeCount)

	code = doJSON(t, http.MethodPost, modulesURL+"/dagaz/quad_sample", `{"samples":`, nil)
	require.Equal(t, http.StatusBadRequest, code)

	code = doJSON(t, http.MethodPost, modulesURL+"/dagaz/unknown", nil, nil)
	require.Equal(t, http.StatusNotFound, code)

	code = doJSON(t, http.MethodPost, modulesURL+"/unknown/get_debug_info", nil, nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestAssetInstanceRoutes(t *testing.T) {
	api, server := newTestAPI(t)
	sessionID := createTestSession(t, server)
	modulesURL := server.URL + "/sessions/" + sessionID + "/modules/odal"

	a := createTestEntity(t, server, sessionID, 0, 0, 0, 1)
	b := createTestEntity(t, server, sessionID, 20, 0, 0, 1)
	dispatchFrame(t, api, sessionID)

	var added odal.AssetInstanceAddResponse
	code := doJSON(t, http.MethodPost, modulesURL+"/asset_instance_add", odal.AssetInstanceAddRequest{
		EntityID: a,
		AssetID:  "chair",
	}, &added)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, uint32(1), added.AssetInstanceID)

	code = doJSON(t, http.MethodPost, modulesURL+"/asset_instance_add", odal.AssetInstanceAddRequest{
		EntityID: b,
		AssetID:  "table",
	}, &added)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, uint32(2), added.AssetInstanceID)

	var region odal.AssetInstancesResponse
	code = doJSON(t, http.MethodPost, modulesURL+"/asset_instance_region", odal.AssetInstanceRegionRequest{
		Min: mgl32.Vec3{15, -5, -5},
		Max: mgl32.Vec3{25, 5, 5},
	}, &region)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []odal.AssetInstance{
		{ID: 2, AssetID: "table", EntityID: b},
	}, region.AssetInstances)

	code = doJSON(t, http.MethodPost, modulesURL+"/asset_instance_add", odal.AssetInstanceAddRequest{
		EntityID: 42,
		AssetID:  "lamp",
	}, nil)
	require.Equal(t, http.StatusNotFound, code)

	code = doJSON(t, http.MethodPost, modulesURL+"/asset_instance_add", odal.AssetInstanceAddRequest{
		EntityID: a,
	}, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestAuthenticatedRoutes(t *testing.T) {
	api := &API{
		Sessions:      &models.SessionStore{},
		SessionConfig: models.SessionConfig{Clock: clock.NewMock()},
		AuthToken:     "secret",
	}

	var mux http.ServeMux
	api.Register(&mux)

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sessions", nil))
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/sessions", nil)
		r.Header.Set("Authorization", "Bearer secret")

		w := httptest.NewRecorder()
		mux.ServeHTTP(w, r)
		require.Equal(t, http.StatusCreated, w.Code)

		var res SessionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))

		session, err := api.Sessions.Get(res.SessionID)
		require.NoError(t, err)
		api.Sessions.Remove(r.Context(), session)
	})
}
