package ichiba

import (
	"context"
	"net/http"
)

// ModelClient executes one chat completion per call.
// When provided via WithModelClient, replaces the built-in OpenAI-compatible
// client for both the chat agent and analysis generation. Implementations
// must not retry internally — the agent loop owns the retry policy.
type ModelClient interface {
	Complete(ctx context.Context, req ModelRequest) (ModelResponse, error)
}

// TurnHook receives async notifications when a chat turn completes.
// Multiple hooks may be registered via multiple WithTurnHook calls.
// Hook methods run in goroutines — they must not block indefinitely.
// Failures are logged but do not fail the originating request.
type TurnHook interface {
	OnTurnCompleted(ctx context.Context, turn TurnSummary) error
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Embedder routes share the mux, auth chain, and OTEL instrumentation with
// the built-in routes. The function is called once during New() after all
// built-in routes are registered; patterns must not collide with them.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the root HTTP handler.
// Applied outermost (before routing), so it sees all requests including
// /health and /mcp. Use for custom logging, quotas, or cross-cutting headers.
// Multiple middlewares are applied in registration order (first-registered =
// outermost).
type Middleware func(http.Handler) http.Handler
