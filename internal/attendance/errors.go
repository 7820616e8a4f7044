package attendance

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired is returned on 401; the session token is cleared
	ErrSessionExpired = errors.New("session expired, please login again")
	// ErrForbidden is returned on 403
	ErrForbidden = errors.New("access denied")
	// ErrNotFound is returned on 404
	ErrNotFound = errors.New("not found")
	// ErrNoToken is returned when a request needs a token and the session has none
	ErrNoToken = errors.New("no auth token in session")
)

// APIError is a non-2xx response from the attendance backend
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Unwrap maps auth and lookup statuses to their sentinel errors
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case 401:
		return ErrSessionExpired
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotFound
	default:
		return nil
	}
}

// retryable reports whether a request may succeed when sent again
func (e *APIError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}
