package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/ichiba/internal/auth"
	"github.com/ashita-ai/ichiba/internal/indicator"
	"github.com/ashita-ai/ichiba/internal/model"
)

// StockService is the slice of the profile service the HTTP API exposes.
type StockService interface {
	GetProfile(ctx context.Context, symbol string, sections []model.Section) model.AggregatedProfile
	PriceSeries(ctx context.Context, symbol, interval string, outputSize int) (model.PriceSeries, error)
	Fundamentals(ctx context.Context, symbol string) (model.FundamentalsReport, error)
	News(ctx context.Context, symbol string, days, limit int) (model.NewsDigest, error)
	Indicators(ctx context.Context, symbol, interval string) (indicator.Set, error)
	StockState(ctx context.Context, symbol, interval string) model.StockState
	SearchSymbol(ctx context.Context, keyword string) ([]model.SymbolMatch, error)
	MarketSummary(ctx context.Context) model.MarketSummary
}

// AnalysisService generates structured analysis reports.
type AnalysisService interface {
	Generate(ctx context.Context, symbol, timeframe string) (model.AnalysisReport, error)
}

// ChatEngine runs one agent turn against the tool registry.
type ChatEngine interface {
	RunTurn(ctx context.Context, history []model.Message, userText string) (model.TurnResult, error)
}

// ToolCatalog lists the registered tool specs.
type ToolCatalog interface {
	List() []model.ToolSpec
}

// Pinger is anything with a cheap connectivity check, used by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	stocks              StockService
	analyses            AnalysisService
	engine              ChatEngine
	catalog             ToolCatalog
	keyring             *auth.Keyring
	jwtMgr              *auth.JWTManager
	archive             Pinger
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	cacheBackend        string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Archive, OpenAPISpec.
type HandlersDeps struct {
	Stocks              StockService
	Analyses            AnalysisService
	Engine              ChatEngine
	Catalog             ToolCatalog
	Keyring             *auth.Keyring
	JWTMgr              *auth.JWTManager
	Archive             Pinger
	Logger              *slog.Logger
	Version             string
	CacheBackend        string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		stocks:              d.Stocks,
		analyses:            d.Analyses,
		engine:              d.Engine,
		catalog:             d.Catalog,
		keyring:             d.Keyring,
		jwtMgr:              d.JWTMgr,
		archive:             d.Archive,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		cacheBackend:        d.CacheBackend,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleAuthToken handles POST /v1/auth/token. The client presents its API
// key in X-API-Key and receives a short-lived Bearer token whose subject is
// the key fingerprint.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	if h.keyring == nil || !h.keyring.Enabled() {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "authentication is disabled")
		return
	}

	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "missing X-API-Key header")
		return
	}

	subject, ok := h.keyring.Verify(apiKey)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(subject)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	h.logger.Info("token issued", "subject", subject, "expires_at", expiresAt)
	writeJSON(w, r, http.StatusOK, model.TokenResponse{Token: token, ExpiresAt: expiresAt})
}

// HandleTools handles GET /v1/tools. Exposes the agent's tool surface so
// clients can see what a chat turn may invoke.
func (h *Handlers) HandleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.catalog.List())
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := model.HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Cache:   h.cacheBackend,
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	}

	// Archive is best-effort storage, so a broken archive degrades health
	// without failing it.
	if h.archive != nil {
		resp.Archive = "connected"
		if err := h.archive.Ping(r.Context()); err != nil {
			resp.Archive = "disconnected"
			resp.Status = "degraded"
		}
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleOpenAPISpec serves the embedded OpenAPI specification.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}

// writeInternalError logs err and writes a generic 500. Internal detail
// stays in the logs; clients get the request ID to quote.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		"error", err,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", RequestIDFromContext(r.Context()),
	)
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// writeFailure maps a domain failure onto an HTTP status. Upstream trouble
// surfaces as gateway errors so clients can tell it apart from bad input
// and from Ichiba's own faults.
func (h *Handlers) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	f := model.AsFailure(err)
	switch f.Kind {
	case model.KindInvalidArguments:
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, f.Message)
	case model.KindTimeout:
		writeError(w, r, http.StatusGatewayTimeout, model.ErrCodeUpstream, f.Message)
	case model.KindRateLimited, model.KindModelUnavailable:
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUpstream, f.Message)
	case model.KindUpstreamUnavailable, model.KindInvalidUpstreamResponse:
		writeError(w, r, http.StatusBadGateway, model.ErrCodeUpstream, f.Message)
	default:
		h.writeInternalError(w, r, "unhandled failure", err)
	}
}
