package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// ListenAndServe starts the given servers and blocks until they are all
// stopped. Servers are shut down when ctx is done or when one of them stops
// with an error.
func ListenAndServe(ctx context.Context, servers ...*http.Server) {
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range servers {
		g.Go(func() error {
			logs.WithTag("addr", s.Addr).Info("starting server")

			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.New("server stopped").
					WithTag("addr", s.Addr).
					Wrap(err)
			}

			logs.WithTag("addr", s.Addr).Info("stopping server")
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		for _, s := range servers {
			if err := s.Shutdown(ctx); err != nil {
				logs.Warn(errors.New("shutting down the server failed").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logs.Warn(err)
	}
}

// MetricsPathFormatter returns the path with session and entity ids replaced
// by placeholders, or an empty string on HTTP 301, 400, 404 or 405
// statusCode.
func MetricsPathFormatter(statusCode int, path string) string {
	switch statusCode {
	case http.StatusMovedPermanently,
		http.StatusBadRequest,
		http.StatusNotFound,
		http.StatusMethodNotAllowed:
		return ""
	}

	segments := strings.Split(path, "/")
	for i := 1; i < len(segments); i++ {
		switch segments[i-1] {
		case "sessions":
			segments[i] = "{session_id}"

		case "entities":
			segments[i] = "{entity_id}"
		}
	}
	return strings.Join(segments, "/")
}
