package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when no credential is available for the tenant.
	// It is never retried.
	ErrNoSession = errors.New("provider: no session")

	// ErrUnauthorized indicates the provider rejected the access token (401).
	ErrUnauthorized = errors.New("provider: unauthorized")
)

// RequestError carries a failed provider call with its HTTP status intact.
type RequestError struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider: %s failed: status=%d: %v", e.Op, e.Status, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("provider: %s failed: status=%d body=%s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("provider: %s failed: status=%d", e.Op, e.Status)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func IsNoSession(err error) bool {
	return errors.Is(err, ErrNoSession)
}

// StatusOf returns the HTTP status of a provider failure, or 0.
func StatusOf(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Status
	}
	return 0
}
