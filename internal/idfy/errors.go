package idfy

import (
	"errors"
	"fmt"
)

// ErrMissingRequestID is wrapped by APIError when a submission was accepted
// at the HTTP level but carried no request identifier.
var ErrMissingRequestID = errors.New("submission response has no request_id")

// APIError is a failure reported by the vendor in a submission response.
type APIError struct {
	StatusCode int
	Message    string
	Body       map[string]any
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("idfy api error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap supports errors.Is against ErrMissingRequestID.
func (e *APIError) Unwrap() error {
	return e.Err
}

// TransportError means the vendor could not be reached or answered with
// something that is not JSON.
type TransportError struct {
	Call string
	Err  error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("idfy %s: %v", e.Call, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
