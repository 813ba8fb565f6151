package smoketest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	spatialhttp "github.com/aukilabs/spatial/http"
	"github.com/aukilabs/spatial/models"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, token string) (*httptest.Server, *models.SessionStore) {
	sessions := &models.SessionStore{}
	api := spatialhttp.API{
		Sessions: sessions,
		SessionConfig: models.SessionConfig{
			FrameDuration: time.Millisecond,
			EntityPadding: 0.1,
		},
		DispatchFrames: true,
		AuthToken:      token,
	}

	var mux http.ServeMux
	api.Register(&mux)

	server := httptest.NewServer(&mux)
	t.Cleanup(server.Close)
	return server, sessions
}

func TestSmokeTest(t *testing.T) {
	t.Run("smoke test success", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		server, sessions := newTestServer(t, "secret")

		h := HandleSmokeTest(ctx, Options{
			Endpoint:  server.URL,
			AuthToken: "secret",
			UserAgent: "spatial test",
		})

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewBufferString(`{"entities":20,"seed":42}`)))
		require.Equal(t, http.StatusOK, w.Code)

		var res Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		require.True(t, res.Success, res.String())
		require.Equal(t, 20, res.Entities)
		require.Equal(t, 1+20+20, res.Queries)
		require.Equal(t, server.URL, res.Endpoint)

		// the smoke test session is deleted:
		require.Zero(t, sessions.Count())
	})

	t.Run("smoke test with default request", func(t *testing.T) {
		server, _ := newTestServer(t, "")

		res, err := Run(context.Background(), Options{}, Request{
			Endpoint: server.URL,
			Timeout:  5 * time.Second,
		})
		require.NoError(t, err)
		require.True(t, res.Success)
		require.Equal(t, defaultEntityCount, res.Entities)
	})

	t.Run("smoke test failure", func(t *testing.T) {
		server, _ := newTestServer(t, "secret")

		res, err := Run(context.Background(), Options{}, Request{
			Endpoint: server.URL,
			Token:    "wrong",
			Entities: 4,
		})
		require.Error(t, err)
		require.False(t, res.Success)
		require.NotEmpty(t, res.Error)
		require.Contains(t, res.String(), server.URL)
	})

	t.Run("bad request", func(t *testing.T) {
		h := HandleSmokeTest(context.Background(), Options{})

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewBufferString(`{"entities":`)))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}
