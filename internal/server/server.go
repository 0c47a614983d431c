package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/ichiba/internal/auth"
	"github.com/ashita-ai/ichiba/internal/ctxutil"
	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/ratelimit"
)

// Server is the Ichiba HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Archive, ChatLimiter, DataLimiter, AuthLimiter,
// MCPServer, OpenAPISpec.
type ServerConfig struct {
	// Required dependencies.
	Stocks   StockService
	Analyses AnalysisService
	Engine   ChatEngine
	Catalog  ToolCatalog
	Keyring  *auth.Keyring
	JWTMgr   *auth.JWTManager
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	Archive     Pinger
	ChatLimiter ratelimit.Limiter
	DataLimiter ratelimit.Limiter
	AuthLimiter ratelimit.Limiter
	MCPServer   *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	CacheBackend        string
	MaxRequestBodyBytes int64

	// Optional embedded assets.
	OpenAPISpec []byte

	// Extension points for the embeddable root package. ExtraRoutes register
	// additional mux patterns; Middlewares wrap the built-in chain, first
	// entry outermost.
	ExtraRoutes []func(*http.ServeMux)
	Middlewares []func(http.Handler) http.Handler
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Stocks:              cfg.Stocks,
		Analyses:            cfg.Analyses,
		Engine:              cfg.Engine,
		Catalog:             cfg.Catalog,
		Keyring:             cfg.Keyring,
		JWTMgr:              cfg.JWTMgr,
		Archive:             cfg.Archive,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		CacheBackend:        cfg.CacheBackend,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Rate limit rules. All windows are one minute, so the Retry-After hint
	// is the window itself.
	chatRL := ratelimit.Middleware(cfg.ChatLimiter, time.Minute, subjectKeyFunc, reqIDFunc)
	dataRL := ratelimit.Middleware(cfg.DataLimiter, time.Minute, subjectKeyFunc, reqIDFunc)
	authRL := ratelimit.Middleware(cfg.AuthLimiter, time.Minute, ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Token exchange (no auth required, rate limited by IP).
	mux.Handle("POST /v1/auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Market data reads (rate limited per key).
	mux.Handle("GET /v1/stocks/{symbol}/profile", dataRL(http.HandlerFunc(h.HandleProfile)))
	mux.Handle("GET /v1/stocks/{symbol}/price", dataRL(http.HandlerFunc(h.HandlePrice)))
	mux.Handle("GET /v1/stocks/{symbol}/fundamentals", dataRL(http.HandlerFunc(h.HandleFundamentals)))
	mux.Handle("GET /v1/stocks/{symbol}/news", dataRL(http.HandlerFunc(h.HandleNews)))
	mux.Handle("GET /v1/stocks/{symbol}/indicators", dataRL(http.HandlerFunc(h.HandleIndicators)))
	mux.Handle("GET /v1/stocks/{symbol}/state", dataRL(http.HandlerFunc(h.HandleState)))
	mux.Handle("GET /v1/search", dataRL(http.HandlerFunc(h.HandleSearch)))
	mux.Handle("GET /v1/market/summary", dataRL(http.HandlerFunc(h.HandleMarketSummary)))
	mux.Handle("GET /v1/tools", dataRL(http.HandlerFunc(h.HandleTools)))

	// Model-backed endpoints (tighter limit: these spend LLM tokens).
	mux.Handle("POST /v1/chat", chatRL(http.HandlerFunc(h.HandleChat)))
	mux.Handle("POST /v1/stocks/{symbol}/analysis", chatRL(http.HandlerFunc(h.HandleAnalysis)))

	// MCP StreamableHTTP transport (Bearer token enforced by authMiddleware).
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// OpenAPI spec and health (no auth, no rate limit).
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)
	mux.HandleFunc("GET /health", h.HandleHealth)

	// JSON 404 for everything else; the stdlib default is plain text.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "endpoint not found")
	})

	// Extension routes from the embedding application. Patterns must not
	// collide with the built-in ones; the mux panics on duplicates.
	for _, register := range cfg.ExtraRoutes {
		register(mux)
	}

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.Keyring, cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	// Embedder middlewares wrap the whole chain, so they see every request
	// including /health and /mcp.
	for i := len(cfg.Middlewares) - 1; i >= 0; i-- {
		handler = cfg.Middlewares[i](handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// subjectKeyFunc buckets authenticated requests by API key fingerprint,
// falling back to the client IP when auth is disabled.
func subjectKeyFunc(r *http.Request) string {
	if sub := ctxutil.Subject(r.Context()); sub != "" {
		return sub
	}
	return ratelimit.IPKeyFunc(r)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
