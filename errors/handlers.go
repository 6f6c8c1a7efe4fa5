package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// ErrorHandler wraps an http.Handler and converts panics into a 500 internal
// error, keeping the process alive for subsequent requests.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					requestID := w.Header().Get("X-Request-ID")
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.ByteString("stacktrace", debug.Stack()),
						zap.String("request_id", requestID),
					)
					WriteError(w, NewInternalError(requestID, fmt.Errorf("panic: %v", rec)))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// LogError logs an error with its context. Client errors are logged at warn
// level, everything else at error level.
func LogError(logger *zap.Logger, err error, requestID string) {
	var disputeErr *DisputeError
	if !errors.As(err, &disputeErr) {
		logger.Error("unexpected error",
			zap.Error(err),
			zap.String("request_id", requestID),
		)
		return
	}

	fields := []zap.Field{
		zap.String("error_type", string(disputeErr.Type)),
		zap.String("message", disputeErr.Message),
		zap.Int("code", disputeErr.Code),
		zap.String("request_id", requestID),
	}
	if disputeErr.Details != "" {
		fields = append(fields, zap.String("details", disputeErr.Details))
	}
	if cause := disputeErr.Unwrap(); cause != nil {
		fields = append(fields, zap.NamedError("cause", cause))
	}

	if disputeErr.Code < http.StatusInternalServerError {
		logger.Warn("request error", fields...)
		return
	}
	logger.Error("request error", fields...)
}
