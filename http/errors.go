package http

import (
	"context"
	goerrors "errors"
	"io"
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/spatial/models"
	"github.com/aukilabs/spatial/modules"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeBadRequest      = "bad_request"
	ErrTypeUnauthorized    = "unauthorized"
	ErrTypeFeatureDisabled = "feature_disabled"
	ErrTypeModuleNotFound  = "module_not_found"
	ErrTypeInternal        = "internal"
)

// The maximum size of a request body.
const maxBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// StatusCode returns the HTTP status code that matches the given error.
func StatusCode(err error) int {
	switch {
	case errors.IsType(err, ErrTypeBadRequest),
		errors.IsType(err, modules.ErrTypeBadMsg),
		errors.IsType(err, models.ErrTypeInvalidEntity):
		return http.StatusBadRequest

	case errors.IsType(err, ErrTypeUnauthorized):
		return http.StatusUnauthorized

	case errors.IsType(err, models.ErrTypeSessionNotFound),
		errors.IsType(err, models.ErrTypeEntityNotFound),
		errors.IsType(err, ErrTypeFeatureDisabled),
		errors.IsType(err, ErrTypeModuleNotFound),
		errors.IsType(err, modules.ErrTypeMsgSkip):
		return http.StatusNotFound

	case goerrors.Is(err, context.Canceled),
		goerrors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		logs.Error(err)
	} else {
		logs.WithTag("status", code).Debug(err)
	}

	instrumentRequestError(err, code)
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.Error(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(b)
}

func decodeJSON(r *http.Request, v any) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return errors.New("reading body failed").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}

	if err := json.Unmarshal(b, v); err != nil {
		return errors.New("decoding body failed").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}
	return nil
}
