// Package handlers provides the HTTP handlers of the dispute letter service.
package handlers

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/teilomillet/dispute/errors"
	"github.com/teilomillet/dispute/server/metrics"
	"github.com/teilomillet/dispute/server/middleware"
	"github.com/teilomillet/dispute/server/processing"
	"github.com/teilomillet/dispute/server/provider"
	"github.com/teilomillet/dispute/server/validation"
)

// DisputeHandler serves POST /generate-dispute. Each request is handled
// independently: validate, build the prompt, call the provider once, and
// return either the letter or a single error body.
type DisputeHandler struct {
	processor    *processing.Processor
	extractor    *validation.Extractor
	maxBodyBytes int64
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewDisputeHandler creates the dispute handler. A maxBodyBytes of zero
// disables the body size bound.
func NewDisputeHandler(processor *processing.Processor, extractor *validation.Extractor, maxBodyBytes int64, m *metrics.Metrics, logger *zap.Logger) *DisputeHandler {
	return &DisputeHandler{
		processor:    processor,
		extractor:    extractor,
		maxBodyBytes: maxBodyBytes,
		metrics:      m,
		logger:       logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *DisputeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	logger := h.logger.With(
		zap.String("request_id", requestID),
		zap.String("shape", h.extractor.Shape()),
	)

	logger.Info("Dispute endpoint hit")

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.fail(w, errors.NewMethodNotAllowedError(requestID, r.Method))
		return
	}

	if !isJSON(r.Header.Get("Content-Type")) {
		logger.Warn("Request is not JSON", zap.String("content_type", r.Header.Get("Content-Type")))
		h.fail(w, errors.NewValidationError(requestID, validation.MsgNotJSON, nil))
		return
	}

	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, errors.NewValidationError(requestID, validation.MsgBodyTooLarge, err))
			return
		}
		h.fail(w, errors.NewValidationError(requestID, validation.MsgInvalidBody, err))
		return
	}

	dispute, err := h.extractor.Extract(data)
	if err != nil {
		h.fail(w, h.classify(requestID, err))
		return
	}
	logger.Debug("Request validated, calling provider",
		zap.Int("breach_details_length", len(dispute.BreachDetails)),
	)

	resp, err := h.processor.ProcessRequest(r.Context(), dispute)
	if err != nil {
		h.fail(w, h.classify(requestID, err))
		return
	}

	h.metrics.LettersGenerated.Inc()
	logger.Info("Dispute letter generated", zap.Int("letter_length", len(resp.DisputeLetter)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}

// classify maps a pipeline error to exactly one API error.
func (h *DisputeHandler) classify(requestID string, err error) *errors.DisputeError {
	var disputeErr *errors.DisputeError
	if errors.As(err, &disputeErr) {
		return disputeErr.WithRequestID(requestID)
	}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return errors.NewProviderError(requestID, apiErr.Message, err)
	}

	if errors.Is(err, provider.ErrMalformedResponse) {
		return errors.NewMalformedResponseError(requestID, err)
	}

	return errors.NewInternalError(requestID, err)
}

func (h *DisputeHandler) fail(w http.ResponseWriter, err *errors.DisputeError) {
	h.metrics.ErrorsTotal.WithLabelValues(string(err.Type)).Inc()
	errors.LogError(h.logger, err, err.RequestID)
	errors.WriteError(w, err)
}

// isJSON reports whether a Content-Type names a JSON media type.
func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
