package smoketest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"slices"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	spatialhttp "github.com/aukilabs/spatial/http"
	"github.com/aukilabs/spatial/models"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/segmentio/encoding/json"
)

const (
	// The distance between two smoke test entities.
	entitySpacing = 10

	entityRadius = 1

	defaultEntityCount = 64
	defaultTimeout     = 10 * time.Second
	pollInterval       = 10 * time.Millisecond
)

type Options struct {
	// The endpoint tested when a request does not specify one.
	Endpoint string

	UserAgent string

	// The bearer token sent to the tested endpoint.
	AuthToken string

	Transport http.RoundTripper
}

// Request is a smoke test request.
type Request struct {
	Endpoint string        `json:"endpoint"`
	Token    string        `json:"token"`
	Entities int           `json:"entities"`
	Seed     int64         `json:"seed"`
	Timeout  time.Duration `json:"timeout"`
}

// Result is the outcome of a smoke test.
type Result struct {
	Endpoint string        `json:"endpoint"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Entities int           `json:"entities"`
	Queries  int           `json:"queries"`
	Duration time.Duration `json:"duration"`
}

// HandleSmokeTest runs a smoke test against the requested endpoint and
// responds with its result.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "reading body failed", http.StatusInternalServerError)
			return
		}

		var req Request
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
		}
		if req.Endpoint == "" {
			req.Endpoint = opts.Endpoint
			req.Token = opts.AuthToken
		}

		res, err := Run(ctx, opts, req)
		if err != nil {
			logs.WithTag("from_endpoint", opts.Endpoint).
				WithTag("to_endpoint", req.Endpoint).
				Warn(err)
		}

		b, err = json.Marshal(res)
		if err != nil {
			http.Error(w, "encoding result failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(b)
	}
}

// Run creates a session on the requested endpoint, fills it with entities,
// then checks region queries and raycasts against the expected entities. The
// session is deleted before returning.
func Run(ctx context.Context, opts Options, req Request) (Result, error) {
	start := time.Now()

	if req.Entities <= 0 {
		req.Entities = defaultEntityCount
	}
	if req.Timeout <= 0 {
		req.Timeout = defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	c := client{
		endpoint:  req.Endpoint,
		token:     req.Token,
		userAgent: opts.UserAgent,
		http:      &http.Client{Transport: opts.Transport},
	}

	res := Result{
		Endpoint: req.Endpoint,
		Entities: req.Entities,
	}

	queries, err := run(ctx, c, req)
	res.Queries = queries
	res.Duration = time.Since(start)
	if err != nil {
		err = errors.New("smoke test failed").
			WithTag("endpoint", req.Endpoint).
			Wrap(err)
		res.Error = err.Error()
		return res, err
	}

	res.Success = true
	logs.WithTag("endpoint", req.Endpoint).
		WithTag("entities", res.Entities).
		WithTag("queries", res.Queries).
		WithTag("duration", res.Duration).
		Info("smoke test succeeded")
	return res, nil
}

type testEntity struct {
	id       uint32
	position mgl32.Vec3
}

func run(ctx context.Context, c client, req Request) (int, error) {
	var session spatialhttp.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/sessions", nil, &session); err != nil {
		return 0, err
	}
	sessionPath := "/sessions/" + session.SessionID
	defer c.do(context.Background(), http.MethodDelete, sessionPath, nil, nil)

	entities := make([]testEntity, req.Entities)
	rng := rand.New(rand.NewSource(req.Seed))
	side := 1
	for side*side < req.Entities {
		side++
	}

	for i, cell := range rng.Perm(side * side)[:req.Entities] {
		position := mgl32.Vec3{
			float32(cell%side)*entitySpacing + rng.Float32()*2 - 1,
			rng.Float32()*2 - 1,
			float32(cell/side)*entitySpacing + rng.Float32()*2 - 1,
		}

		radius := float32(entityRadius)
		var res spatialhttp.EntityResponse
		err := c.do(ctx, http.MethodPost, sessionPath+"/entities", spatialhttp.EntityRequest{
			Pose: &models.Pose{
				PX: position[0],
				PY: position[1],
				PZ: position[2],
				RW: 1,
			},
			Radius: &radius,
		}, &res)
		if err != nil {
			return 0, err
		}

		entities[i] = testEntity{id: res.EntityID, position: position}
	}

	if err := waitForIndex(ctx, c, sessionPath, req.Entities); err != nil {
		return 0, err
	}

	queries := 0

	// Every entity is within the bounds of all entities:
	expected := make([]uint32, len(entities))
	for i, e := range entities {
		expected[i] = e.id
	}
	slices.Sort(expected)

	var region spatialhttp.RegionResponse
	err := c.do(ctx, http.MethodPost, sessionPath+"/region", spatialhttp.RegionRequest{
		Min: mgl32.Vec3{-entitySpacing, -entitySpacing, -entitySpacing},
		Max: mgl32.Vec3{float32(side) * entitySpacing, entitySpacing, float32(side) * entitySpacing},
	}, &region)
	if err != nil {
		return queries, err
	}
	queries++

	if !slices.Equal(expected, region.EntityIDs) {
		return queries, errors.New("unexpected region query result").
			WithTag("expected", expected).
			WithTag("result", region.EntityIDs)
	}

	rays := make([]spatialhttp.RayRequest, len(entities))
	for i, e := range entities {
		// Each entity is checked alone by a small region around its center
		// and by a ray going down through it.
		err := c.do(ctx, http.MethodPost, sessionPath+"/region", spatialhttp.RegionRequest{
			Min: e.position.Sub(mgl32.Vec3{0.1, 0.1, 0.1}),
			Max: e.position.Add(mgl32.Vec3{0.1, 0.1, 0.1}),
		}, &region)
		if err != nil {
			return queries, err
		}
		queries++

		if !slices.Equal([]uint32{e.id}, region.EntityIDs) {
			return queries, errors.New("unexpected entity region query result").
				WithTag("entity_id", e.id).
				WithTag("result", region.EntityIDs)
		}

		rays[i] = spatialhttp.RayRequest{
			Origin:    e.position.Add(mgl32.Vec3{0, entitySpacing, 0}),
			Direction: mgl32.Vec3{0, -1, 0},
		}
	}

	var raycast spatialhttp.RaycastResponse
	err = c.do(ctx, http.MethodPost, sessionPath+"/raycast", spatialhttp.RaycastRequest{
		Rays: rays,
	}, &raycast)
	if err != nil {
		return queries, err
	}
	queries += len(rays)

	if len(raycast.Hits) != len(entities) {
		return queries, errors.New("unexpected raycast result count").
			WithTag("expected", len(entities)).
			WithTag("result", len(raycast.Hits))
	}

	for i, e := range entities {
		hits := raycast.Hits[i]
		if len(hits) != 1 || hits[0].EntityID != e.id {
			return queries, errors.New("unexpected raycast result").
				WithTag("entity_id", e.id).
				WithTag("result", hits)
		}

		if d := hits[0].Distance; d < entitySpacing-entityRadius-0.01 || d > entitySpacing-entityRadius+0.01 {
			return queries, errors.New("unexpected raycast distance").
				WithTag("entity_id", e.id).
				WithTag("distance", d)
		}
	}

	var valid spatialhttp.ValidateResponse
	if err := c.do(ctx, http.MethodPost, sessionPath+"/index/validate", nil, &valid); err != nil {
		return queries, err
	}
	return queries, nil
}

func waitForIndex(ctx context.Context, c client, sessionPath string, leaves int) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		var stats struct {
			Leaves int `json:"leaves"`
		}
		if err := c.do(ctx, http.MethodGet, sessionPath+"/index", nil, &stats); err != nil {
			return err
		}
		if stats.Leaves == leaves {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.New("waiting for the entity index failed").
				WithTag("expected_leaves", leaves).
				WithTag("leaves", stats.Leaves).
				Wrap(ctx.Err())

		case <-ticker.C:
		}
	}
}

type client struct {
	endpoint  string
	token     string
	userAgent string
	http      *http.Client
}

func (c client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.New("encoding request failed").Wrap(err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, body)
	if err != nil {
		return errors.New("creating request failed").Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.Header.Set("Authorization", httpcmn.MakeAuthorizationHeader(c.token))
	}

	res, err := c.http.Do(req)
	if err != nil {
		return errors.New("sending request failed").
			WithTag("method", method).
			WithTag("path", path).
			Wrap(err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.New("reading response failed").Wrap(err)
	}

	if res.StatusCode >= http.StatusBadRequest {
		return errors.New("request failed").
			WithTag("method", method).
			WithTag("path", path).
			WithTag("status", res.StatusCode).
			WithTag("response", string(b))
	}

	if out != nil && len(b) != 0 {
		if err := json.Unmarshal(b, out); err != nil {
			return errors.New("decoding response failed").
				WithTag("path", path).
				Wrap(err)
		}
	}
	return nil
}

func (r Result) String() string {
	if r.Success {
		return fmt.Sprintf("%s: ok (%d queries in %v)", r.Endpoint, r.Queries, r.Duration)
	}
	return fmt.Sprintf("%s: %s", r.Endpoint, r.Error)
}
