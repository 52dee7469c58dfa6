package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnsupported is returned when the remote does not implement an operation
// for an entity kind. It is a programming error and must not be retried.
var ErrUnsupported = errors.New("canopy: operation not supported by transport")

// Error is a failed request/response exchange: a non-2xx status or a network
// fault. Message is human readable.
type Error struct {
	Method     string
	Path       string
	StatusCode int // 0 for network faults
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransport reports whether err carries a transport failure.
func IsTransport(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

func unsupported(method, path string, status int) error {
	return fmt.Errorf("%s %s: %w (%d %s)", method, path, ErrUnsupported, status, http.StatusText(status))
}
