package caseapi

import (
	"errors"
	"fmt"
)

// ErrTransport matches every TransportError via errors.Is.
var ErrTransport = errors.New("caseapi: transport error")

// ErrNotFound matches a TransportError carrying HTTP 404.
var ErrNotFound = errors.New("caseapi: case not found")

// TransportError is a failure talking to the remote case service: a network
// fault, a timeout, or a non-2xx response. StatusCode is zero when no response
// was received.
type TransportError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("caseapi: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("caseapi: %s: HTTP %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("caseapi: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("caseapi: %s: transport error", e.Op)
	}
}

// Unwrap returns the underlying network error, if any.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrTransport and, for 404 responses, ErrNotFound.
func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrNotFound:
		return e.StatusCode == 404
	}
	return false
}

// errorEnvelope is the error body the service returns on non-2xx responses.
type errorEnvelope struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}
