package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when upstream kept answering 429 after all retries.
	ErrRateLimited = errors.New("rate limited by upstream")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("upstream resource not found")
	// ErrAuth is returned when login did not yield a session.
	ErrAuth = errors.New("upstream authentication failed")
	// ErrMissingCredentials is a configuration error.
	ErrMissingCredentials = errors.New("upstream credentials are not configured")
)

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d for %s", e.StatusCode, e.URL)
}

// Is maps status codes onto the sentinel errors.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == 429
	case ErrNotFound:
		return e.StatusCode == 404
	}
	return false
}

// Retryable reports whether the request may succeed if repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
