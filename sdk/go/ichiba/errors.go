// Package ichiba provides a Go client for the Ichiba market data and
// analysis API.
package ichiba

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error represents an error from the Ichiba API with the HTTP status code
// and the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string

	// RequestID is the server-assigned ID of the failed request, when the
	// error response carried one. Quote it when reporting problems.
	RequestID uuid.UUID
}

func (e *Error) Error() string {
	return fmt.Sprintf("ichiba: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsInvalidInput returns true if the error is a 400.
func IsInvalidInput(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 400
	}
	return false
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 404
	}
	return false
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsForbidden returns true if the error is a 403.
func IsForbidden(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 403
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}

// IsUpstreamError returns true if the error is a 502, 503, or 504 — the
// statuses the server uses when a data provider or the model endpoint is
// the thing that failed. These are usually worth retrying later.
func IsUpstreamError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 502 || e.StatusCode == 503 || e.StatusCode == 504
	}
	return false
}
