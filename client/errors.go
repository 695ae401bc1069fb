package client

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed = errors.New("malformed message")
	ErrClosed    = errors.New("client closed")
)

// StatusError is returned for responses whose status is neither 200 nor 204.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// AuthError is returned by Connect when the server rejects the access token.
type AuthError struct {
	Status   int
	Resource string
	Body     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: status %d on %q: %s", e.Status, e.Resource, e.Body)
}

// IsTemporary reports whether err is a status error worth retrying (5xx, 429).
func IsTemporary(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Status >= 500 || se.Status == 429
}
