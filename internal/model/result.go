// Package model defines the core domain types shared across Ichiba:
// provider results, market data shapes, conversation messages, and the
// HTTP API envelopes.
package model

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a provider, tool, or model failure.
type FailureKind string

const (
	// KindRateLimited means an upstream or the local limiter refused the call.
	KindRateLimited FailureKind = "RateLimited"
	// KindTimeout means the operation exceeded its deadline.
	KindTimeout FailureKind = "Timeout"
	// KindUpstreamUnavailable covers network errors and 5xx responses.
	KindUpstreamUnavailable FailureKind = "UpstreamUnavailable"
	// KindInvalidUpstreamResponse means the upstream payload failed normalization.
	KindInvalidUpstreamResponse FailureKind = "InvalidUpstreamResponse"
	// KindInvalidArguments means tool input failed schema validation.
	KindInvalidArguments FailureKind = "InvalidArguments"
	// KindModelUnavailable means the language-model call itself failed.
	KindModelUnavailable FailureKind = "ModelUnavailable"
)

// Failure is a typed failure value. Provider adapters, the cache layer, and
// the tool registry return these instead of letting raw errors cross their
// boundaries.
type Failure struct {
	Kind      FailureKind `json:"kind"`
	Message   string      `json:"message"`
	Retriable bool        `json:"retriable"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// NewFailure constructs a Failure with a formatted message.
func NewFailure(kind FailureKind, retriable bool, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...), Retriable: retriable}
}

// AsFailure extracts a *Failure from an error chain. Errors that are not
// typed failures are wrapped as non-retriable UpstreamUnavailable so callers
// always see the taxonomy, never a bare error string.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: KindUpstreamUnavailable, Message: err.Error()}
}

// Result is the tagged outcome of one provider-level fetch: either a payload
// with its fetch time, or a failure. Never both.
type Result struct {
	Payload   any       `json:"payload,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	Failure   *Failure  `json:"failure,omitempty"`
}

// Ok reports whether the result carries a payload.
func (r Result) Ok() bool { return r.Failure == nil }

// Succeed builds a success Result.
func Succeed(payload any, fetchedAt time.Time) Result {
	return Result{Payload: payload, FetchedAt: fetchedAt}
}

// Fail builds a failure Result from any error, coercing through AsFailure.
func Fail(err error) Result {
	return Result{Failure: AsFailure(err)}
}
