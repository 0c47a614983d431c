// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderLimit holds the outbound rate-limit settings for one upstream.
type ProviderLimit struct {
	RPS     float64       // Sustained requests per second.
	Burst   int           // Token bucket capacity.
	Policy  string        // "wait" or "reject" when the bucket is empty.
	MaxWait time.Duration // Upper bound on queueing under the wait policy.
}

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64

	// Inbound rate limits, per client key, requests per minute. Zero disables
	// the limit for that route group.
	ChatRatePerMin int
	DataRatePerMin int
	AuthRatePerMin int

	// Provider credentials and base URLs.
	TwelveDataAPIKey  string
	TwelveDataBaseURL string
	FMPAPIKey         string
	FMPBaseURL        string
	TavilyAPIKey      string
	TavilyBaseURL     string

	// Adapter behavior.
	ProviderTimeout time.Duration // Per-attempt HTTP timeout.
	MaxAttempts     int           // Retry budget per logical fetch.
	RetryBaseDelay  time.Duration // First backoff step; doubled per attempt, jittered.
	TwelveDataLimit ProviderLimit
	FMPLimit        ProviderLimit
	TavilyLimit     ProviderLimit

	// Cache settings.
	RedisURL       string        // Empty selects the in-memory store.
	PriceTTL       time.Duration // Intraday price series.
	DailyPriceTTL  time.Duration // 1day-interval series survive longer.
	QuoteTTL       time.Duration
	NewsTTL        time.Duration
	FundamentalTTL time.Duration
	IndicatorTTL   time.Duration
	AnalysisTTL    time.Duration
	SearchTTL      time.Duration
	NegativeTTL    time.Duration // Failure markers; always shorter than success TTLs.
	StaleRetention time.Duration // Expired entries kept this long for stale-if-error.
	FetchTimeout   time.Duration // Upper bound on one detached cache-fill flight.

	// Aggregation settings.
	SectionTimeout time.Duration // Independent deadline per profile section.

	// Model provider settings (OpenAI-compatible chat completions).
	ModelBaseURL string
	ModelAPIKey  string
	ModelName    string
	ModelTimeout time.Duration

	// Agent loop budgets.
	ToolCallBudget   int
	ElapsedBudget    time.Duration
	ToolTimeout      time.Duration
	ModelMaxAttempts int

	// Auth settings. Auth is disabled when no key hashes are configured.
	APIKeyHashes      []string // Argon2id hashes of accepted API keys.
	JWTPrivateKeyPath string   // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string   // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// Archive settings.
	ArchivePath string // SQLite file path; empty disables archiving.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed values are collected and reported together: a typo in
// ICHIBA_ELAPSED_BUDGET should stop the server, not silently grant it a
// default budget.
func Load() (Config, error) {
	r := &envReader{}

	cfg := Config{
		Port:                r.Int("ICHIBA_PORT", 8080),
		ReadTimeout:         r.Duration("ICHIBA_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        r.Duration("ICHIBA_WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBodyBytes: int64(r.Int("ICHIBA_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default

		ChatRatePerMin: r.Int("ICHIBA_CHAT_RATE_PER_MIN", 20),
		DataRatePerMin: r.Int("ICHIBA_DATA_RATE_PER_MIN", 120),
		AuthRatePerMin: r.Int("ICHIBA_AUTH_RATE_PER_MIN", 10),

		TwelveDataAPIKey:  r.Str("TWELVEDATA_API_KEY", ""),
		TwelveDataBaseURL: r.Str("TWELVEDATA_BASE_URL", "https://api.twelvedata.com"),
		FMPAPIKey:         r.Str("FMP_API_KEY", ""),
		FMPBaseURL:        r.Str("FMP_BASE_URL", "https://financialmodelingprep.com/stable"),
		TavilyAPIKey:      r.Str("TAVILY_API_KEY", ""),
		TavilyBaseURL:     r.Str("TAVILY_BASE_URL", "https://api.tavily.com"),

		ProviderTimeout: r.Duration("ICHIBA_PROVIDER_TIMEOUT", 10*time.Second),
		MaxAttempts:     r.Int("ICHIBA_PROVIDER_MAX_ATTEMPTS", 3),
		RetryBaseDelay:  r.Duration("ICHIBA_PROVIDER_RETRY_BASE_DELAY", 250*time.Millisecond),
		TwelveDataLimit: providerLimit(r, "TWELVEDATA", 0.13, 8, "wait"),
		FMPLimit:        providerLimit(r, "FMP", 4, 10, "wait"),
		TavilyLimit:     providerLimit(r, "TAVILY", 1, 5, "reject"),

		RedisURL:       r.Str("ICHIBA_REDIS_URL", ""),
		PriceTTL:       r.Duration("ICHIBA_PRICE_TTL", 5*time.Minute),
		DailyPriceTTL:  r.Duration("ICHIBA_DAILY_PRICE_TTL", 24*time.Hour),
		QuoteTTL:       r.Duration("ICHIBA_QUOTE_TTL", 5*time.Minute),
		NewsTTL:        r.Duration("ICHIBA_NEWS_TTL", time.Hour),
		FundamentalTTL: r.Duration("ICHIBA_FUNDAMENTAL_TTL", time.Hour),
		IndicatorTTL:   r.Duration("ICHIBA_INDICATOR_TTL", 5*time.Minute),
		AnalysisTTL:    r.Duration("ICHIBA_ANALYSIS_TTL", time.Hour),
		SearchTTL:      r.Duration("ICHIBA_SEARCH_TTL", time.Hour),
		NegativeTTL:    r.Duration("ICHIBA_NEGATIVE_TTL", 30*time.Second),
		StaleRetention: r.Duration("ICHIBA_STALE_RETENTION", 10*time.Minute),
		FetchTimeout:   r.Duration("ICHIBA_CACHE_FETCH_TIMEOUT", 45*time.Second),

		SectionTimeout: r.Duration("ICHIBA_SECTION_TIMEOUT", 12*time.Second),

		ModelBaseURL: r.Str("ICHIBA_MODEL_BASE_URL", "https://api.openai.com/v1"),
		ModelAPIKey:  r.Str("ICHIBA_MODEL_API_KEY", ""),
		ModelName:    r.Str("ICHIBA_MODEL_NAME", "gpt-4o-mini"),
		ModelTimeout: r.Duration("ICHIBA_MODEL_TIMEOUT", 60*time.Second),

		ToolCallBudget:   r.Int("ICHIBA_TOOL_CALL_BUDGET", 8),
		ElapsedBudget:    r.Duration("ICHIBA_ELAPSED_BUDGET", 2*time.Minute),
		ToolTimeout:      r.Duration("ICHIBA_TOOL_TIMEOUT", 15*time.Second),
		ModelMaxAttempts: r.Int("ICHIBA_MODEL_MAX_ATTEMPTS", 3),

		APIKeyHashes:      r.List("ICHIBA_API_KEY_HASHES"),
		JWTPrivateKeyPath: r.Str("ICHIBA_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:  r.Str("ICHIBA_JWT_PUBLIC_KEY", ""),
		JWTExpiration:     r.Duration("ICHIBA_JWT_EXPIRATION", time.Hour),

		ArchivePath: r.Str("ICHIBA_ARCHIVE_PATH", ""),

		OTELEndpoint: r.Str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure: r.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:  r.Str("OTEL_SERVICE_NAME", "ichiba"),

		LogLevel: r.Str("ICHIBA_LOG_LEVEL", "info"),
	}

	if err := errors.Join(r.errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c Config) Validate() error {
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: ICHIBA_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.ChatRatePerMin < 0 || c.DataRatePerMin < 0 || c.AuthRatePerMin < 0 {
		return fmt.Errorf("config: inbound rate limits must not be negative")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("config: ICHIBA_PROVIDER_MAX_ATTEMPTS must be at least 1")
	}
	if c.ToolCallBudget < 1 {
		return fmt.Errorf("config: ICHIBA_TOOL_CALL_BUDGET must be at least 1")
	}
	if c.ElapsedBudget <= 0 {
		return fmt.Errorf("config: ICHIBA_ELAPSED_BUDGET must be positive")
	}
	if c.NegativeTTL <= 0 {
		return fmt.Errorf("config: ICHIBA_NEGATIVE_TTL must be positive")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("config: ICHIBA_CACHE_FETCH_TIMEOUT must be positive")
	}
	for _, pl := range []struct {
		name  string
		limit ProviderLimit
	}{
		{"TWELVEDATA", c.TwelveDataLimit},
		{"FMP", c.FMPLimit},
		{"TAVILY", c.TavilyLimit},
	} {
		if pl.limit.Policy != "wait" && pl.limit.Policy != "reject" {
			return fmt.Errorf("config: %s_RATE_LIMIT_POLICY must be \"wait\" or \"reject\" (got %q)", pl.name, pl.limit.Policy)
		}
		if pl.limit.RPS <= 0 || pl.limit.Burst < 1 {
			return fmt.Errorf("config: %s rate limit must have positive rps and burst", pl.name)
		}
	}
	return nil
}

// providerLimit reads the four rate-limit settings for one provider prefix.
func providerLimit(r *envReader, prefix string, rps float64, burst int, policy string) ProviderLimit {
	return ProviderLimit{
		RPS:     r.Float(prefix+"_RATE_LIMIT_RPS", rps),
		Burst:   r.Int(prefix+"_RATE_LIMIT_BURST", burst),
		Policy:  r.Str(prefix+"_RATE_LIMIT_POLICY", policy),
		MaxWait: r.Duration(prefix+"_RATE_LIMIT_MAX_WAIT", 5*time.Second),
	}
}

// envReader accumulates parse failures so Load can report every malformed
// variable at once instead of stopping at the first.
type envReader struct {
	errs []error
}

func (r *envReader) Str(key, defaultVal string) string {
	return envStr(key, defaultVal)
}

func (r *envReader) Int(key string, defaultVal int) int {
	v, err := envInt(key, defaultVal)
	if err != nil {
		r.errs = append(r.errs, err)
	}
	return v
}

func (r *envReader) Float(key string, defaultVal float64) float64 {
	v, err := envFloat(key, defaultVal)
	if err != nil {
		r.errs = append(r.errs, err)
	}
	return v
}

func (r *envReader) Bool(key string, defaultVal bool) bool {
	v, err := envBool(key, defaultVal)
	if err != nil {
		r.errs = append(r.errs, err)
	}
	return v
}

func (r *envReader) Duration(key string, defaultVal time.Duration) time.Duration {
	v, err := envDuration(key, defaultVal)
	if err != nil {
		r.errs = append(r.errs, err)
	}
	return v
}

func (r *envReader) List(key string) []string {
	return envList(key)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
