package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/teilomillet/dispute/errors"
	"github.com/teilomillet/dispute/server/metrics"
)

// Stack returns the middleware applied to every route, outermost first.
// The request id comes first so every later layer, including the panic
// boundary, can attach it to logs and error bodies.
func Stack(logger *zap.Logger, m *metrics.Metrics) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		RequestID,
		Logging(logger),
		PrometheusMetrics(m),
		errors.ErrorHandler(logger),
	}
}
