// Package provider implements the shared machinery of the upstream
// market-data adapters: a per-provider rate-limit gate with a wait-or-reject
// policy, bounded retries with jittered exponential backoff, and a uniform
// failure taxonomy over HTTP transport errors.
//
// Adapters (twelvedata, fmp, tavily) build URLs and decode payloads; the
// Runner owns everything between.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/ratelimit"
	"github.com/ashita-ai/ichiba/internal/telemetry"
)

// Rate limit policies. Wait queues the caller up to MaxWait for a token;
// reject fails fast with a RateLimited failure.
const (
	PolicyWait   = "wait"
	PolicyReject = "reject"
)

// RunnerConfig tunes one provider's Runner.
type RunnerConfig struct {
	MaxAttempts  int           // total tries per call, including the first
	BaseDelay    time.Duration // first backoff step, doubled per retry
	Policy       string        // PolicyWait or PolicyReject
	MaxWait      time.Duration // wait budget under PolicyWait
	MaxBodyBytes int64         // response body cap
}

// Runner executes upstream HTTP calls for one provider. Retries apply only
// to retriable failures (network errors, timeouts, 429, 5xx); everything
// else returns immediately. Every attempt passes the rate-limit gate.
type Runner struct {
	name        string
	httpClient  *http.Client
	limiter     ratelimit.Limiter
	maxAttempts int
	baseDelay   time.Duration
	gateWait    time.Duration // 0 rejects immediately
	maxBody     int64
	logger      *slog.Logger

	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewRunner creates the runner for one named provider. The limiter models
// that provider's quota; callers share one http.Client across runners.
func NewRunner(name string, cfg RunnerConfig, limiter ratelimit.Limiter, client *http.Client, logger *slog.Logger) *Runner {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	var gateWait time.Duration
	if cfg.Policy == PolicyWait {
		gateWait = cfg.MaxWait
	}

	meter := telemetry.Meter("ichiba/provider")
	requests, _ := meter.Int64Counter("ichiba.provider.requests",
		metric.WithDescription("Upstream HTTP attempts by provider, operation, and outcome"),
	)
	latency, _ := meter.Float64Histogram("ichiba.provider.latency",
		metric.WithDescription("Upstream HTTP attempt latency"),
		metric.WithUnit("ms"),
	)

	return &Runner{
		name:        name,
		httpClient:  client,
		limiter:     limiter,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		gateWait:    gateWait,
		maxBody:     cfg.MaxBodyBytes,
		logger:      logger,
		requests:    requests,
		latency:     latency,
	}
}

// Name returns the provider name the runner was built for.
func (r *Runner) Name() string { return r.name }

// GetJSON issues a GET and decodes the 2xx response body into out.
func (r *Runner) GetJSON(ctx context.Context, op, u string, out any) error {
	return r.do(ctx, op, http.MethodGet, u, nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the 2xx response into out.
func (r *Runner) PostJSON(ctx context.Context, op, u string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return model.NewFailure(model.KindInvalidUpstreamResponse, false,
			"%s: encode %s request: %v", r.name, op, err)
	}
	return r.do(ctx, op, http.MethodPost, u, body, out)
}

func (r *Runner) do(ctx context.Context, op, method, u string, body []byte, out any) error {
	delay := r.baseDelay
	var failure *model.Failure

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		allowed, lerr := ratelimit.WaitAllow(ctx, r.limiter, r.name, r.gateWait)
		if lerr != nil && allowed {
			// Limiter malfunction fails open.
			r.logger.Warn("rate limiter error, failing open",
				"provider", r.name, "op", op, "error", lerr)
		}
		if !allowed {
			if lerr != nil {
				// Context ended while queued for a token.
				return model.NewFailure(model.KindTimeout, true, "%s: %s: %v", r.name, op, lerr)
			}
			return model.NewFailure(model.KindRateLimited, true,
				"%s: local rate limit exceeded", r.name)
		}

		failure = r.attempt(ctx, op, method, u, body, out)
		if failure == nil || !failure.Retriable || attempt == r.maxAttempts {
			break
		}

		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return model.NewFailure(model.KindTimeout, true, "%s: %s: %v", r.name, op, ctx.Err())
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}

	if failure != nil {
		return failure
	}
	return nil
}

// attempt runs one HTTP round trip and classifies the outcome.
func (r *Runner) attempt(ctx context.Context, op, method, u string, body []byte, out any) *model.Failure {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return model.NewFailure(model.KindUpstreamUnavailable, false,
			"%s: build %s request: %v", r.name, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		f := classifyTransport(r.name, op, err)
		r.observe(ctx, op, string(f.Kind), time.Since(start))
		return f
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		f := r.classifyStatus(resp.StatusCode, strings.TrimSpace(string(snippet)))
		r.observe(ctx, op, string(f.Kind), time.Since(start))
		return f
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBody))
	if err != nil {
		r.observe(ctx, op, string(model.KindUpstreamUnavailable), time.Since(start))
		return model.NewFailure(model.KindUpstreamUnavailable, true,
			"%s: read %s response: %v", r.name, op, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		r.observe(ctx, op, string(model.KindInvalidUpstreamResponse), time.Since(start))
		return model.NewFailure(model.KindInvalidUpstreamResponse, false,
			"%s: decode %s response: %v", r.name, op, err)
	}

	r.observe(ctx, op, "ok", time.Since(start))
	return nil
}

// classifyTransport maps a client-side error to the failure taxonomy.
func classifyTransport(name, op string, err error) *model.Failure {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.NewFailure(model.KindTimeout, true, "%s: %s: %v", name, op, err)
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return model.NewFailure(model.KindTimeout, true, "%s: %s: %v", name, op, err)
	}
	return model.NewFailure(model.KindUpstreamUnavailable, true, "%s: %s: %v", name, op, err)
}

// classifyStatus maps a non-2xx status to the failure taxonomy: 429, 408, and 5xx
// are retriable, the remaining 4xx are not.
func (r *Runner) classifyStatus(status int, snippet string) *model.Failure {
	switch {
	case status == http.StatusTooManyRequests:
		return model.NewFailure(model.KindRateLimited, true,
			"%s: upstream rate limited (429)", r.name)
	case status == http.StatusRequestTimeout:
		return model.NewFailure(model.KindTimeout, true,
			"%s: upstream request timeout (408)", r.name)
	case status >= 500:
		return model.NewFailure(model.KindUpstreamUnavailable, true,
			"%s: upstream status %d: %s", r.name, status, snippet)
	default:
		return model.NewFailure(model.KindUpstreamUnavailable, false,
			"%s: upstream status %d: %s", r.name, status, snippet)
	}
}

func (r *Runner) observe(ctx context.Context, op, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider.name", r.name),
		attribute.String("provider.op", op),
		attribute.String("provider.outcome", outcome),
	)
	r.requests.Add(ctx, 1, attrs)
	r.latency.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}
