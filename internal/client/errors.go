package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ConflictError means an equivalent job is already in flight for the target.
// The caller adopts ExistingJobID instead of treating it as a failure.
type ConflictError struct {
	ExistingJobID string
	Message       string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("relay conflict: job %s already in flight: %s", e.ExistingJobID, e.Message)
}

// TransientError wraps timeouts, connection failures, 5xx and 429 responses.
// Pollers retry these silently.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("relay unavailable (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("relay unreachable: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// StatusError is a non-retryable relay response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay API error (status %d): %s", e.StatusCode, e.Body)
}

// IsTransient reports whether err should be retried on the next tick
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsCanceled reports whether err comes from the caller abandoning the request
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

func isTransientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}
