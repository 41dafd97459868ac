package finder

import (
	"context"
	"errors"
	"net/http"
)

// RequestError reports a failure to complete a request against the
// detection backend: the transport failed, the response status was not 2xx,
// or the body could not be read or decoded.
type RequestError struct {
	Op string
	// StatusCode is 0 when no response was received.
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return "finder: " + e.Op + ": " + e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Transient reports whether repeating the request might succeed. Callers
// decide whether to retry; the client never does.
func (e *RequestError) Transient() bool {
	if errors.Is(e.Err, context.Canceled) || errors.Is(e.Err, context.DeadlineExceeded) {
		return false
	}
	switch e.StatusCode {
	case 0,
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// BackendError is a logical failure reported by the backend in the response
// body's "error" field.
type BackendError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return "finder: " + e.Op + ": backend error: " + e.Message
}
