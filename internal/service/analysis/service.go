// Package analysis turns a stock's derived state into a structured,
// model-written report with an explicit bias call.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/ichiba/internal/cache"
	"github.com/ashita-ai/ichiba/internal/llm"
	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/telemetry"
)

// analystPrompt frames the task; the response schema, not the prose,
// constrains the output shape.
const analystPrompt = "You are an expert financial analyst. Analyze the provided stock state " +
	"across its technical, fundamental, and news aspects and produce a concise, " +
	"structured analysis. Ground every statement in the provided data and treat " +
	"sections marked unavailable as unknown rather than negative. Do not give " +
	"financial advice."

// StateProvider supplies the derived stock state the prompt is built on.
type StateProvider interface {
	StockState(ctx context.Context, symbol, interval string) model.StockState
}

// Config carries the report cache TTL and the model sampling knobs.
type Config struct {
	TTL         time.Duration
	Temperature float64
	MaxTokens   int
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.2
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1024
	}
	return c
}

// Service generates and caches analysis reports.
type Service struct {
	cache  *cache.Accessor
	states StateProvider
	client llm.Client
	cfg    Config
	logger *slog.Logger

	duration metric.Float64Histogram
}

// New creates the analysis service.
func New(accessor *cache.Accessor, states StateProvider, client llm.Client, cfg Config, logger *slog.Logger) *Service {
	meter := telemetry.Meter("ichiba/analysis")
	duration, _ := meter.Float64Histogram("ichiba.analysis.duration",
		metric.WithDescription("Report generation latency (ms)"),
		metric.WithUnit("ms"),
	)
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:    accessor,
		states:   states,
		client:   client,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		duration: duration,
	}
}

// Generate returns the analysis report for symbol on the given timeframe,
// invoking the model only on a cache miss. Reports are cached per
// symbol/timeframe pair; model failures surface as typed failures.
func (s *Service) Generate(ctx context.Context, symbol, timeframe string) (model.AnalysisReport, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return model.AnalysisReport{}, model.NewFailure(model.KindInvalidArguments, false,
			"analysis: empty symbol")
	}
	timeframe = strings.ToLower(strings.TrimSpace(timeframe))
	if timeframe == "" {
		timeframe = "1day"
	}

	spec := cache.KeySpec{
		Provider:  "analysis",
		Operation: "report",
		Params:    map[string]string{"symbol": symbol, "timeframe": timeframe},
	}
	entry, err := s.cache.GetOrFetch(ctx, spec, s.cfg.TTL, func(ctx context.Context) (any, error) {
		return s.generate(ctx, symbol, timeframe)
	})
	if err != nil {
		return model.AnalysisReport{}, err
	}
	return cache.Decode[model.AnalysisReport](entry)
}

func (s *Service) generate(ctx context.Context, symbol, timeframe string) (model.AnalysisReport, error) {
	start := time.Now()

	state := s.states.StockState(ctx, symbol, timeframe)
	if state.Technical == nil && state.Fundamental == nil && state.News == nil {
		return model.AnalysisReport{}, model.NewFailure(model.KindUpstreamUnavailable, true,
			"analysis: no state sections available for %s", symbol)
	}

	stateJSON, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return model.AnalysisReport{}, fmt.Errorf("analysis: encode state: %w", err)
	}

	completion, err := s.client.Complete(ctx, llm.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: analystPrompt},
			{Role: model.RoleUser, Content: fmt.Sprintf("Current state of %s (timeframe %s):\n%s", symbol, timeframe, stateJSON)},
		},
		ResponseSchema: reportSchema(),
		Temperature:    s.cfg.Temperature,
		MaxTokens:      s.cfg.MaxTokens,
	})
	if err != nil {
		return model.AnalysisReport{}, err
	}
	if completion.Empty() || strings.TrimSpace(completion.Text) == "" {
		return model.AnalysisReport{}, model.NewFailure(model.KindModelUnavailable, true,
			"analysis: model returned an empty completion")
	}

	var parsed reportPayload
	if err := json.Unmarshal([]byte(completion.Text), &parsed); err != nil {
		return model.AnalysisReport{}, model.NewFailure(model.KindInvalidUpstreamResponse, false,
			"analysis: malformed report JSON: %v", err)
	}
	if !model.ValidBias(parsed.OverallBias) {
		return model.AnalysisReport{}, model.NewFailure(model.KindInvalidUpstreamResponse, false,
			"analysis: unknown bias %q", parsed.OverallBias)
	}

	report := model.AnalysisReport{
		Symbol:             symbol,
		Timeframe:          timeframe,
		OverallBias:        parsed.OverallBias,
		TechnicalSummary:   parsed.TechnicalSummary,
		FundamentalSummary: parsed.FundamentalSummary,
		RiskFactors:        parsed.RiskFactors,
		GeneratedAt:        time.Now().UTC(),
	}

	elapsed := time.Since(start)
	s.duration.Record(ctx, float64(elapsed.Milliseconds()),
		metric.WithAttributes(attribute.String("analysis.bias", report.OverallBias)))
	s.logger.Info("analysis generated",
		"symbol", symbol, "timeframe", timeframe, "bias", report.OverallBias,
		"duration_ms", elapsed.Milliseconds())
	return report, nil
}

// reportPayload is the wire shape the model is asked to produce.
type reportPayload struct {
	OverallBias        string   `json:"overall_bias"`
	TechnicalSummary   string   `json:"technical_summary"`
	FundamentalSummary string   `json:"fundamental_summary"`
	RiskFactors        []string `json:"risk_factors"`
}

func reportSchema() *llm.ResponseSchema {
	return &llm.ResponseSchema{
		Name: "stock_analysis",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"overall_bias": map[string]any{
					"type": "string",
					"enum": []string{
						model.BiasBullish, model.BiasBearish, model.BiasNeutral,
						model.BiasBullishCautious, model.BiasBearishCautious,
					},
				},
				"technical_summary":   map[string]any{"type": "string"},
				"fundamental_summary": map[string]any{"type": "string"},
				"risk_factors": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required":             []string{"overall_bias", "technical_summary", "fundamental_summary", "risk_factors"},
			"additionalProperties": false,
		},
		Strict: true,
	}
}
