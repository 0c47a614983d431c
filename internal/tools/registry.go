// Package tools exposes the market data services as a validated,
// model-callable tool surface. Arguments are checked against each tool's
// declared schema before any service code runs, and results are reshaped
// into compact payloads a model can reason over.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/telemetry"
)

// ProfileService is the slice of the aggregation service the tools call.
type ProfileService interface {
	PriceSeries(ctx context.Context, symbol, interval string, outputSize int) (model.PriceSeries, error)
	Fundamentals(ctx context.Context, symbol string) (model.FundamentalsReport, error)
	News(ctx context.Context, symbol string, days, limit int) (model.NewsDigest, error)
	StockState(ctx context.Context, symbol, interval string) model.StockState
	SearchSymbol(ctx context.Context, keyword string) ([]model.SymbolMatch, error)
	MarketSummary(ctx context.Context) model.MarketSummary
}

// AnalysisService generates structured analysis reports.
type AnalysisService interface {
	Generate(ctx context.Context, symbol, timeframe string) (model.AnalysisReport, error)
}

// tool binds one declared spec to its runner. run receives arguments that
// already passed schema validation.
type tool struct {
	name        string
	description string
	schema      Schema
	run         func(ctx context.Context, args map[string]any) (any, error)
}

// Registry owns the agent's tool surface.
type Registry struct {
	tools  []tool
	index  map[string]int
	logger *slog.Logger

	invocations metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewRegistry builds the registry with the full tool set registered in
// canonical order.
func NewRegistry(profiles ProfileService, analyses AnalysisService, logger *slog.Logger) *Registry {
	meter := telemetry.Meter("ichiba/tools")
	invocations, _ := meter.Int64Counter("ichiba.tools.invocations",
		metric.WithDescription("Tool invocations by tool and outcome"),
	)
	duration, _ := meter.Float64Histogram("ichiba.tools.duration",
		metric.WithDescription("Tool execution latency (ms)"),
		metric.WithUnit("ms"),
	)
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		index:       make(map[string]int),
		logger:      logger,
		invocations: invocations,
		duration:    duration,
	}
	r.registerAll(profiles, analyses)
	return r
}

func (r *Registry) register(t tool) {
	r.index[t.name] = len(r.tools)
	r.tools = append(r.tools, t)
}

// List returns the tool specs in registration order. The order is stable so
// prompts and golden transcripts stay reproducible.
func (r *Registry) List() []model.ToolSpec {
	specs := make([]model.ToolSpec, len(r.tools))
	for i, t := range r.tools {
		specs[i] = model.ToolSpec{
			Name:        t.name,
			Description: t.description,
			Parameters:  t.schema.asMap(),
		}
	}
	return specs
}

// Invoke validates the call's arguments and runs the tool. All failures,
// including validation ones, come back inside the result's Error field in
// "Kind: message" form; Invoke itself never fails.
func (r *Registry) Invoke(ctx context.Context, call model.ToolCallRequest) model.ToolCallResult {
	result := model.ToolCallResult{ID: call.ID, Name: call.Name}

	idx, ok := r.index[call.Name]
	if !ok {
		result.Error = fmt.Sprintf("%s: unknown tool %q", model.KindInvalidArguments, call.Name)
		r.observe(ctx, call.Name, "unknown_tool", 0)
		return result
	}
	t := r.tools[idx]

	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			result.Error = fmt.Sprintf("%s: arguments are not a JSON object: %v", model.KindInvalidArguments, err)
			r.observe(ctx, t.name, "invalid_arguments", 0)
			return result
		}
	}
	if err := t.schema.validate(args); err != nil {
		result.Error = fmt.Sprintf("%s: %v", model.KindInvalidArguments, err)
		r.observe(ctx, t.name, "invalid_arguments", 0)
		return result
	}

	start := time.Now()
	payload, err := t.run(ctx, args)
	elapsed := time.Since(start)
	if err != nil {
		failure := model.AsFailure(err)
		result.Error = failure.Error()
		r.observe(ctx, t.name, "failure", elapsed)
		r.logger.Warn("tool failed",
			"tool", t.name, "kind", failure.Kind, "error", failure.Message,
			"duration_ms", elapsed.Milliseconds())
		return result
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		result.Error = fmt.Sprintf("%s: encode result: %v", model.KindInvalidUpstreamResponse, err)
		r.observe(ctx, t.name, "failure", elapsed)
		return result
	}
	result.Output = raw
	r.observe(ctx, t.name, "ok", elapsed)
	r.logger.Debug("tool executed", "tool", t.name, "duration_ms", elapsed.Milliseconds())
	return result
}

func (r *Registry) observe(ctx context.Context, name, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.outcome", outcome),
	)
	r.invocations.Add(ctx, 1, attrs)
	if elapsed > 0 {
		r.duration.Record(ctx, float64(elapsed.Milliseconds()),
			metric.WithAttributes(attribute.String("tool.name", name)))
	}
}
