// Package apierr defines the remote-call error type shared by the provider
// clients and the fast-service client, with retryability classified by
// status class: network failures and 5xx responses are retryable, 4xx are
// terminal.
package apierr

import (
	"errors"
	"fmt"
)

// StatusError is an error response (or transport failure) from a remote API.
// StatusCode 0 means the request never produced an HTTP response.
type StatusError struct {
	Service    string // "runpod", "vast", "fast_service"
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s: %s", e.Service, e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %s: status %d: %s", e.Service, e.Op, e.StatusCode, e.Message)
}

// Retryable reports whether the failure class permits a fallback attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// IsRetryable reports whether err is a retryable StatusError.
func IsRetryable(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Retryable()
}
