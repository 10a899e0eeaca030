package client

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the pre-streaming HTTP failure taxonomy
var (
	ErrUnauthorized = errors.New("authentication required or token rejected")
	ErrForbidden    = errors.New("access to this project is forbidden")
	ErrNotFound     = errors.New("resource not found")
)

// APIError is a non-2xx response that doesn't map to a sentinel
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.Status, e.Body)
}

// statusError maps an HTTP status to the error taxonomy
func statusError(status int, body string) error {
	switch status {
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotFound
	default:
		return &APIError{Status: status, Body: body}
	}
}

// IsRetryable reports whether a REST call is worth retrying. Gate and
// history calls retry transient server trouble, never auth failures.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case 429, 502, 503, 504:
			return true
		}
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// transport-level failures (connection refused, reset, DNS) arrive as
	// wrapped net errors
	return err != nil
}
