package errors

import (
	"net/http"
)

// NewValidationError creates a 400 error for bad or missing client input.
// Validation errors never carry details.
//
// Example:
//
//	err := NewValidationError("req_123", "Missing required fields", nil)
func NewValidationError(requestID, message string, err error) *DisputeError {
	return &DisputeError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		err:       err,
	}
}

// NewProviderError creates a 500 error for an API-level failure of the text
// generation service. The provider's own message is always attached as details.
//
// Example:
//
//	err := NewProviderError("req_123", "invalid api key", providerErr)
func NewProviderError(requestID, providerMessage string, err error) *DisputeError {
	return &DisputeError{
		Type:      ProviderError,
		Message:   "Text generation provider error",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		Details:   providerMessage,
		err:       err,
	}
}

// NewMalformedResponseError creates a 500 error for a provider response that
// did not contain a usable completion.
func NewMalformedResponseError(requestID string, err error) *DisputeError {
	return &DisputeError{
		Type:      MalformedResponseError,
		Message:   "Text generation provider returned an unexpected response",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}

// NewInternalError creates a 500 error for unexpected failures: panics,
// network failures, encoding errors. The cause is logged, never returned.
func NewInternalError(requestID string, err error) *DisputeError {
	return &DisputeError{
		Type:      InternalError,
		Message:   "Internal Server Error",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}

// NewMethodNotAllowedError creates a 405 error.
func NewMethodNotAllowedError(requestID, method string) *DisputeError {
	return &DisputeError{
		Type:      MethodNotAllowedError,
		Message:   "Method " + method + " not allowed",
		Code:      http.StatusMethodNotAllowed,
		RequestID: requestID,
	}
}
