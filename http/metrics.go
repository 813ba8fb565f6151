package http

import (
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
	statusLabel  = "status"
)

var (
	httpRequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_request_errors",
		Help: "The errors that occured while handling a request.",
	}, []string{
		errTypeLabel,
		statusLabel,
	})
)

func instrumentRequestError(err error, code int) {
	httpRequestErrors.With(prometheus.Labels{
		errTypeLabel: errors.Type(err),
		statusLabel:  strconv.Itoa(code),
	}).Inc()
}
