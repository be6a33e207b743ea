package canteen

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode int

const (
	Unknown ErrorCode = iota
	Unauthenticated
	Forbidden
	Validation
	NotFound
	Conflict
	RateLimited
	UpstreamTimeout
	UpstreamUnavailable
	ChaosUnavailable
	Internal
)

// Error is the service error surfaced at the HTTP boundary. Code selects the
// status; Err carries the human-readable detail for 4xx replies.
type Error struct {
	Code ErrorCode
	Err  error
}

func (e Error) Error() string {
	return fmt.Sprintf("error %d: %v", e.Code, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

// NewError wraps a detail message in a coded Error.
func NewError(code ErrorCode, format string, args ...interface{}) Error {
	return Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// HTTPStatus maps the error code to its boundary status code.
func (e Error) HTTPStatus() int {
	switch e.Code {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case UpstreamTimeout:
		return http.StatusGatewayTimeout
	case UpstreamUnavailable, ChaosUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Detail returns the client-visible detail text. 5xx details are sanitized
// to a generic message; 4xx details pass through.
func (e Error) Detail() string {
	if e.HTTPStatus() >= 500 && e.Code != ChaosUnavailable && e.Code != UpstreamUnavailable && e.Code != UpstreamTimeout {
		return "Internal server error."
	}
	return e.Err.Error()
}

// AsError extracts a coded Error from err, defaulting to Internal.
func AsError(err error) Error {
	var ce Error
	if errors.As(err, &ce) {
		return ce
	}
	return Error{Code: Internal, Err: err}
}
