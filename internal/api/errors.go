package api

import (
	"errors"
	"fmt"
)

// AuthError means the server does not recognise the user.
type AuthError struct {
	Username string
	Status   int
}

func (e *AuthError) Error() string {
	if e.Username != "" {
		return fmt.Sprintf("user not found: %q", e.Username)
	}
	return fmt.Sprintf("unauthorized (status %d)", e.Status)
}

// NetworkError covers transport failures, unexpected statuses and bad payloads.
type NetworkError struct {
	Op     string
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsAuth reports whether err is (or wraps) an *AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNetwork reports whether err is (or wraps) a *NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
