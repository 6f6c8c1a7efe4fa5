package provider

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse indicates the provider answered without a usable completion.
var ErrMalformedResponse = errors.New("provider returned no usable completion")

// APIError is an API-level failure reported by the text generation service:
// authentication, rate limit, quota, invalid model. Message carries the
// provider's own text. StatusCode is zero when the request never left the client.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s api error: %s", e.Provider, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// TransportError is a network-level failure (timeout, connection refused).
// Callers surface it as a generic failure, never with details.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
