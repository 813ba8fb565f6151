package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

func HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func HandleReadyCheck(readinessCheck func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !readinessCheck() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func HandleVersion(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(version))
	}
}

// HandleWithCORS allows the given handler to be called from any origin.
func HandleWithCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// HandleWithRecovery answers with an internal server error when the given
// handler panics. When the handler already started its response, the panic
// is only logged.
func HandleWithRecovery(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &recoveryWriter{ResponseWriter: w}

		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}

			err, ok := v.(error)
			if !ok {
				err = errors.Newf("%v", v)
			}

			err = errors.New("handler panicked").
				WithType(ErrTypeInternal).
				WithTag("method", r.Method).
				WithTag("path", r.URL.Path).
				WithTag("response_started", rw.wroteHeader).
				Wrap(err)

			logs.Error(err)
			instrumentRequestError(err, http.StatusInternalServerError)

			if rw.wroteHeader {
				return
			}
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error: err.Error(),
			})
		}()

		h.ServeHTTP(rw, r)
	})
}

// recoveryWriter records whether a response was started.
type recoveryWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (w *recoveryWriter) WriteHeader(statusCode int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *recoveryWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *recoveryWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
