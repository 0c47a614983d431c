package ichiba

import (
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port            int
	redisURL        string
	archivePath     string
	logger          *slog.Logger
	version         string
	modelClient     ModelClient
	turnHooks       []TurnHook
	routeRegistrars []RouteRegistrar
	middlewares     []Middleware
}

// WithPort overrides the TCP port from config (ICHIBA_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithRedisURL overrides the Redis connection string from config
// (ICHIBA_REDIS_URL env var). When set, the cache and inbound rate limits
// are shared across replicas; when empty, both stay in-process.
func WithRedisURL(url string) Option {
	return func(o *resolvedOptions) { o.redisURL = url }
}

// WithArchivePath overrides the SQLite archive path from config
// (ICHIBA_ARCHIVE_PATH env var). Fetched price series and fundamentals are
// appended there for offline analysis. Empty disables archiving.
func WithArchivePath(path string) Option {
	return func(o *resolvedOptions) { o.archivePath = path }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithModelClient replaces the built-in OpenAI-compatible model client.
// Only the last call wins. The override serves both the chat agent and
// analysis generation, so it must support tool calls and response schemas.
func WithModelClient(c ModelClient) Option {
	return func(o *resolvedOptions) { o.modelClient = c }
}

// WithTurnHook registers a hook to receive completed chat turns.
// Multiple hooks may be registered; all registered hooks receive every turn.
func WithTurnHook(hook TurnHook) Option {
	return func(o *resolvedOptions) { o.turnHooks = append(o.turnHooks, hook) }
}

// WithExtraRoutes registers additional routes on the shared HTTP mux.
// Multiple registrars may be registered; all are called in registration order.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}

// WithMiddleware registers an outermost HTTP middleware.
// Multiple middlewares may be registered. Applied in registration order:
// the first-registered middleware is outermost (called first by every request).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}
