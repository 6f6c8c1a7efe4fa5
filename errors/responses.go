// Package errors provides error response utilities.
package errors

import (
	"errors"
)

// ErrorResponse is the decoded form of an error body as seen by clients.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Type      ErrorType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// As is a wrapper around errors.As for better error type assertion
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is is a wrapper around errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}
