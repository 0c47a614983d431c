// Package ichiba is the public API for embedding the Ichiba market data and
// agent server.
//
// Host applications import this package to construct and extend the server
// without forking it:
//
//	app, err := ichiba.New(
//	    ichiba.WithVersion(version),
//	    ichiba.WithLogger(logger),
//	    ichiba.WithTurnHook(myAuditSink{}),
//	    ichiba.WithExtraRoutes(myRoutes),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: ichiba (root) imports
// internal/*, but internal/* never imports ichiba (root). Public types
// (ChatMessage, TurnSummary, etc.) are standalone structs with no internal
// imports; conversion helpers (toPublicMessage, toTurnSummary) live here
// because this is the only file that sees both sides of the boundary.
package ichiba

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ashita-ai/ichiba/api"
	"github.com/ashita-ai/ichiba/internal/agent"
	"github.com/ashita-ai/ichiba/internal/archive"
	"github.com/ashita-ai/ichiba/internal/auth"
	"github.com/ashita-ai/ichiba/internal/cache"
	"github.com/ashita-ai/ichiba/internal/config"
	"github.com/ashita-ai/ichiba/internal/llm"
	"github.com/ashita-ai/ichiba/internal/mcp"
	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/provider"
	"github.com/ashita-ai/ichiba/internal/provider/fmp"
	"github.com/ashita-ai/ichiba/internal/provider/tavily"
	"github.com/ashita-ai/ichiba/internal/provider/twelvedata"
	"github.com/ashita-ai/ichiba/internal/ratelimit"
	"github.com/ashita-ai/ichiba/internal/server"
	"github.com/ashita-ai/ichiba/internal/service/analysis"
	"github.com/ashita-ai/ichiba/internal/service/profile"
	"github.com/ashita-ai/ichiba/internal/telemetry"
	"github.com/ashita-ai/ichiba/internal/tools"
)

// App is the Ichiba server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	store        cache.Store
	redisClient  *redis.Client // nil when Redis is not configured
	archive      *archive.Archive
	limiters     []ratelimit.Limiter
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the Ichiba server. It connects the cache backend, opens the
// archive, wires providers, services, the tool registry, the agent engine,
// and the HTTP/MCP surface, and returns a ready-to-run App.
// It does NOT start any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	// Apply options.
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.redisURL != "" {
		cfg.RedisURL = o.redisURL
	}
	if o.archivePath != "" {
		cfg.ArchivePath = o.archivePath
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("ichiba starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Resources acquired below; released in reverse on any later error.
	var (
		store       cache.Store
		redisClient *redis.Client
		arc         *archive.Archive
		limiters    []ratelimit.Limiter
	)
	cleanup := func() {
		for _, l := range limiters {
			_ = l.Close()
		}
		if arc != nil {
			_ = arc.Close()
		}
		if store != nil {
			_ = store.Close()
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		_ = otelShutdown(context.Background())
	}

	// Cache backend: Redis when configured (shared across replicas),
	// in-process memory otherwise.
	cacheBackend := "memory"
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("redis: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		store = cache.NewRedisStore(redisClient, "ichiba", cfg.StaleRetention)
		cacheBackend = "redis"
		logger.Info("cache: redis")
	} else {
		store = cache.NewMemoryStore(cfg.StaleRetention)
		logger.Info("cache: memory (single process)")
	}

	accessor := cache.NewAccessor(store, cfg.NegativeTTL, cfg.FetchTimeout, logger)

	// SQLite archive (optional).
	var archiver profile.Archiver
	if cfg.ArchivePath != "" {
		arc, err = archive.Open(context.Background(), cfg.ArchivePath, logger)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("archive: %w", err)
		}
		archiver = arc
		logger.Info("archive: sqlite", "path", cfg.ArchivePath)
	} else {
		logger.Info("archive: disabled (no ICHIBA_ARCHIVE_PATH)")
	}

	// Upstream adapters. Each provider gets its own retry runner and outbound
	// rate-limit gate; the gates are process-local token buckets sized from
	// the provider's plan.
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	newRunner := func(name string, limit config.ProviderLimit) *provider.Runner {
		gate := ratelimit.NewMemoryLimiter(limit.RPS, limit.Burst)
		limiters = append(limiters, gate)
		return provider.NewRunner(name, provider.RunnerConfig{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			Policy:      limit.Policy,
			MaxWait:     limit.MaxWait,
		}, gate, httpClient, logger)
	}
	td := twelvedata.New(newRunner("twelvedata", cfg.TwelveDataLimit), cfg.TwelveDataBaseURL, cfg.TwelveDataAPIKey)
	fmpClient := fmp.New(newRunner("fmp", cfg.FMPLimit), cfg.FMPBaseURL, cfg.FMPAPIKey)
	tavilyClient := tavily.New(newRunner("tavily", cfg.TavilyLimit), cfg.TavilyBaseURL, cfg.TavilyAPIKey)

	for _, p := range []struct{ name, key string }{
		{"twelvedata", cfg.TwelveDataAPIKey},
		{"fmp", cfg.FMPAPIKey},
		{"tavily", cfg.TavilyAPIKey},
	} {
		if p.key == "" {
			logger.Warn("provider api key missing, its sections will degrade to failures", "provider", p.name)
		}
	}

	// Profile aggregation service.
	stocks := profile.New(accessor, td, fmpClient, tavilyClient, archiver, profile.Config{
		SectionTimeout: cfg.SectionTimeout,
		PriceTTL:       cfg.PriceTTL,
		DailyPriceTTL:  cfg.DailyPriceTTL,
		QuoteTTL:       cfg.QuoteTTL,
		NewsTTL:        cfg.NewsTTL,
		FundamentalTTL: cfg.FundamentalTTL,
		IndicatorTTL:   cfg.IndicatorTTL,
		SearchTTL:      cfg.SearchTTL,
	}, logger)

	// Model client — external override takes priority over the built-in
	// OpenAI-compatible client.
	var client llm.Client
	if o.modelClient != nil {
		client = &modelClientAdapter{c: o.modelClient}
		logger.Info("model client: external override")
	} else {
		if cfg.ModelAPIKey == "" {
			logger.Warn("model api key missing, chat and analysis will fail", "hint", "set ICHIBA_MODEL_API_KEY")
		}
		client = llm.NewOpenAIClient(cfg.ModelBaseURL, cfg.ModelAPIKey, cfg.ModelName, &http.Client{Timeout: cfg.ModelTimeout}, logger)
	}

	// Analysis service and tool registry.
	analyses := analysis.New(accessor, stocks, client, analysis.Config{TTL: cfg.AnalysisTTL}, logger)
	registry := tools.NewRegistry(stocks, analyses, logger)

	// Agent engine.
	eng := agent.New(client, registry, agent.Config{
		ToolCallBudget:   cfg.ToolCallBudget,
		ElapsedBudget:    cfg.ElapsedBudget,
		ToolTimeout:      cfg.ToolTimeout,
		ModelMaxAttempts: cfg.ModelMaxAttempts,
	}, logger)

	var chatEngine server.ChatEngine = eng
	if len(o.turnHooks) > 0 {
		chatEngine = &hookedEngine{inner: eng, hooks: o.turnHooks, logger: logger}
	}

	// Auth.
	keyring, err := auth.NewKeyring(cfg.APIKeyHashes)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("auth: %w", err)
	}
	if !keyring.Enabled() {
		logger.Warn("auth disabled: no API key hashes configured")
	}
	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("auth: %w", err)
	}

	// MCP server (mounted at /mcp by the HTTP server).
	mcpSrv := mcp.New(registry, stocks, logger, version)

	// Inbound rate limits. Redis-backed when a shared cache is configured so
	// the limits hold across replicas; in-process token buckets otherwise.
	newInboundLimiter := func(scope string, perMin int) ratelimit.Limiter {
		if perMin <= 0 {
			return nil
		}
		var l ratelimit.Limiter
		if redisClient != nil {
			l = ratelimit.NewRedisLimiter(redisClient, "ichiba:rl:"+scope, perMin, time.Minute)
		} else {
			l = ratelimit.NewMemoryLimiter(float64(perMin)/60.0, perMin)
		}
		limiters = append(limiters, l)
		return l
	}
	chatLimiter := newInboundLimiter("chat", cfg.ChatRatePerMin)
	dataLimiter := newInboundLimiter("data", cfg.DataRatePerMin)
	authLimiter := newInboundLimiter("auth", cfg.AuthRatePerMin)

	// Adapt public extension points to the internal server's shapes.
	var extraRoutes []func(*http.ServeMux)
	for _, fn := range o.routeRegistrars {
		extraRoutes = append(extraRoutes, fn)
	}
	var middlewares []func(http.Handler) http.Handler
	for _, mw := range o.middlewares {
		middlewares = append(middlewares, mw)
	}

	// Archive is optional; hand the server a nil interface rather than a
	// typed nil so the /health handler can skip the ping.
	var archivePinger server.Pinger
	if arc != nil {
		archivePinger = arc
	}

	srv := server.New(server.ServerConfig{
		Stocks:              stocks,
		Analyses:            analyses,
		Engine:              chatEngine,
		Catalog:             registry,
		Keyring:             keyring,
		JWTMgr:              jwtMgr,
		Logger:              logger,
		Archive:             archivePinger,
		ChatLimiter:         chatLimiter,
		DataLimiter:         dataLimiter,
		AuthLimiter:         authLimiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		CacheBackend:        cacheBackend,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         api.OpenAPISpec,
		ExtraRoutes:         extraRoutes,
		Middlewares:         middlewares,
	})

	return &App{
		cfg:          cfg,
		store:        store,
		redisClient:  redisClient,
		archive:      arc,
		limiters:     limiters,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or a fatal
// server error occurs. On ctx cancellation, Shutdown is called automatically —
// callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully stops the server: it drains in-flight HTTP requests,
// then closes the rate limiters, the archive, the cache backend, and the
// OTEL provider. Detached cache fills still in flight are abandoned — the
// next request simply refetches.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("ichiba shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	for _, l := range a.limiters {
		_ = l.Close()
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Error("archive close error", "error", err)
		}
	}
	_ = a.store.Close()
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	_ = a.otelShutdown(context.Background())

	a.logger.Info("ichiba stopped")
	return nil
}

// ── Adapters (defined here because this file imports both sides) ───────────────

// modelClientAdapter wraps a public ModelClient to satisfy llm.Client.
// It converts internal request/completion types at the boundary.
type modelClientAdapter struct {
	c ModelClient
}

func (a *modelClientAdapter) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	pub := ModelRequest{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		pub.Messages = append(pub.Messages, toPublicMessage(m))
	}
	for _, t := range req.Tools {
		pub.Tools = append(pub.Tools, ToolSpec{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	if req.ResponseSchema != nil {
		pub.ResponseSchema = &ResponseSchema{
			Name:   req.ResponseSchema.Name,
			Schema: req.ResponseSchema.Schema,
			Strict: req.ResponseSchema.Strict,
		}
	}

	resp, err := a.c.Complete(ctx, pub)
	if err != nil {
		return nil, err
	}

	out := &llm.Completion{
		Text:         resp.Text,
		FinishReason: resp.FinishReason,
		Model:        resp.Model,
	}
	for _, tc := range resp.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, model.ToolCallRequest{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}
	return out, nil
}

// hookedEngine wraps the agent engine to fire TurnHooks after each completed
// turn. Hooks run in a goroutine so slow sinks never delay the HTTP response.
type hookedEngine struct {
	inner  *agent.Engine
	hooks  []TurnHook
	logger *slog.Logger
}

func (h *hookedEngine) RunTurn(ctx context.Context, history []model.Message, userText string) (model.TurnResult, error) {
	result, err := h.inner.RunTurn(ctx, history, userText)
	if err != nil {
		return result, err
	}

	summary := toTurnSummary(result)
	hooks := h.hooks
	logger := h.logger
	go func() {
		hookCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, hook := range hooks {
			if err := hook.OnTurnCompleted(hookCtx, summary); err != nil {
				logger.Warn("turn hook failed", "error", err)
			}
		}
	}()

	return result, nil
}

// ── Type converters ────────────────────────────────────────────────────────────

// toPublicMessage converts an internal model.Message to the public ChatMessage.
// Lives here because this is the only file that imports both sides of the boundary.
func toPublicMessage(m model.Message) ChatMessage {
	out := ChatMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}
	return out
}

// toTurnSummary converts an internal model.TurnResult to the public TurnSummary.
func toTurnSummary(r model.TurnResult) TurnSummary {
	out := TurnSummary{
		FinalText:         r.FinalText,
		Reason:            r.Reason,
		ModelCalls:        r.ModelCalls,
		ToolCallsExecuted: r.ToolCallsExecuted,
		Elapsed:           r.Elapsed,
	}
	for _, e := range r.ToolTrace {
		out.ToolTrace = append(out.ToolTrace, ToolTraceEntry{
			ID:        e.ID,
			Name:      e.Name,
			Arguments: e.Arguments,
			Error:     e.Error,
			Duration:  e.Duration,
			Skipped:   e.Skipped,
		})
	}
	return out
}
