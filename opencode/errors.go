package opencode

import (
	"errors"
	"fmt"
)

// ErrNoPort indicates no free loopback port could be reserved for a local
// server spawn.
var ErrNoPort = errors.New("no available port")

// ErrNotInstalled indicates the server executable is not on PATH.
var ErrNotInstalled = errors.New("opencode binary not found")

// DecodeError indicates a stream frame that could not be decoded. Callers
// are expected to log it and keep reading; a bad frame never terminates the
// stream.
type DecodeError struct {
	Cause error
	Line  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// APIError represents a non-2xx response from the server API.
type APIError struct {
	Method string
	Path   string
	Body   string
	Status int
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// IsNotFound reports whether err is an APIError with a 404 status.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 404
}
