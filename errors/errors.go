// Package errors provides the error model of the dispute letter service.
// It defines typed API errors, their JSON wire format, and helpers to write
// them to an http.ResponseWriter.
//
// Every error response body carries an "error" key so that a caller always
// receives either a dispute letter or an error message:
//
//	{"error": "Missing required fields", "type": "validation_error", "request_id": "..."}
//
// Basic usage:
//
//	errors.WriteError(w, errors.NewValidationError(requestID, "Missing required fields", nil))
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorType categorizes an API error. Each type maps to a single HTTP
// status code through its constructor.
type ErrorType string

const (
	// ValidationError represents bad or missing client input
	ValidationError ErrorType = "validation_error"
	// ProviderError represents an API-level failure reported by the text generation service
	ProviderError ErrorType = "provider_error"
	// MalformedResponseError represents a provider response without a usable completion
	MalformedResponseError ErrorType = "malformed_response"
	// InternalError represents any other unexpected failure
	InternalError ErrorType = "internal_error"
	// MethodNotAllowedError represents a request with an unsupported HTTP method
	MethodNotAllowedError ErrorType = "method_not_allowed"
	// NotFoundError represents a request for a path the service does not serve
	NotFoundError ErrorType = "not_found"
)

// DisputeError is the error type written to clients. The Message is exposed
// under the "error" key; the wrapped error never leaves the process.
type DisputeError struct {
	// Type categorizes the error for client handling
	Type ErrorType `json:"type"`

	// Message is the human-readable error description
	Message string `json:"error"`

	// Code is the HTTP status code (not exposed in JSON)
	Code int `json:"-"`

	// RequestID links the error to a specific request
	RequestID string `json:"request_id,omitempty"`

	// Details carries the provider's own message for provider errors
	Details string `json:"details,omitempty"`

	err error
}

func (e *DisputeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *DisputeError) Unwrap() error {
	return e.err
}

// Is matches on error type only, so errors.Is(err, &DisputeError{Type: ValidationError})
// works regardless of message or request id.
func (e *DisputeError) Is(target error) bool {
	t, ok := target.(*DisputeError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithRequestID returns a copy of the error bound to the given request id.
func (e *DisputeError) WithRequestID(requestID string) *DisputeError {
	cp := *e
	cp.RequestID = requestID
	return &cp
}

// WriteError writes err as a JSON response with its status code.
func WriteError(w http.ResponseWriter, err *DisputeError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
}

// ErrorWithType is a drop-in replacement for http.Error that writes a
// DisputeError of the given type. The request id is taken from the response
// headers when the request id middleware has set it.
func ErrorWithType(w http.ResponseWriter, message string, errType ErrorType, code int) {
	WriteError(w, &DisputeError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: w.Header().Get("X-Request-ID"),
	})
}
