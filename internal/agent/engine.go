// Package agent drives the tool-calling conversation loop: it alternates
// between asking the model for a completion and executing the tool calls it
// requests, under explicit tool-call and wall-clock budgets. The loop never
// trusts the model to terminate; every exit path synthesizes a final answer.
package agent

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/ashita-ai/ichiba/internal/llm"
	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/telemetry"
)

// DefaultSystemPrompt frames the assistant. Callers can override it per
// engine through Config.
const DefaultSystemPrompt = "You are a helpful AI assistant specializing in stock market analysis. " +
	"You can fetch prices, fundamentals, news, market summaries, and stock states, " +
	"search for stock symbols, and perform AI analysis. " +
	"Always try to use the available tools to answer questions about specific stocks. " +
	"If a user asks for an analysis, use the generate_analysis tool. " +
	"If a user asks for detailed information about a stock's state (technical, fundamental, news), use get_stock_state. " +
	"If the user mentions a company name and you need its stock symbol, use search_stock_symbol. " +
	"Do not give financial advice. State that you are an AI analyst and cannot provide buy/sell recommendations."

// Synthesized final answers for turns the loop has to cut short.
const (
	budgetExhaustedNote = "tool call budget exhausted; call not executed"

	truncationText = "I reached this turn's tool call limit before completing the research. " +
		"Ask a follow-up question and I will continue from the data gathered so far."
	deadlineText = "This turn ran out of time before the research completed. " +
		"Ask again and I will continue from the data gathered so far."
	modelDownText = "The analysis model is currently unavailable. Please try again shortly."
)

// Loop phases. A turn moves AwaitingModel -> ExecutingTools -> AwaitingModel
// until an exit path fires.
type phase int

const (
	phaseAwaitingModel phase = iota
	phaseExecutingTools
)

// ToolRunner is the slice of the tool registry the loop drives.
type ToolRunner interface {
	List() []model.ToolSpec
	Invoke(ctx context.Context, call model.ToolCallRequest) model.ToolCallResult
}

// Config bounds one turn. Zero values fall back to the documented defaults.
type Config struct {
	SystemPrompt     string
	ToolCallBudget   int           // executed tool calls per turn
	ElapsedBudget    time.Duration // wall-clock ceiling per turn
	ToolTimeout      time.Duration // per tool call
	ToolConcurrency  int64         // parallel tool calls within one batch
	ModelMaxAttempts int
	ModelBaseDelay   time.Duration // first retry backoff step, doubled per retry
	Temperature      float64
	MaxTokens        int
}

func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.ToolCallBudget <= 0 {
		c.ToolCallBudget = 8
	}
	if c.ElapsedBudget <= 0 {
		c.ElapsedBudget = 2 * time.Minute
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = 15 * time.Second
	}
	if c.ToolConcurrency <= 0 {
		c.ToolConcurrency = 4
	}
	if c.ModelMaxAttempts <= 0 {
		c.ModelMaxAttempts = 3
	}
	if c.ModelBaseDelay <= 0 {
		c.ModelBaseDelay = 500 * time.Millisecond
	}
	return c
}

// Engine runs agent turns against one model client and one tool registry.
type Engine struct {
	client llm.Client
	tools  ToolRunner
	cfg    Config
	logger *slog.Logger

	turnDuration metric.Float64Histogram
	modelCalls   metric.Int64Counter
}

// New creates an engine.
func New(client llm.Client, tools ToolRunner, cfg Config, logger *slog.Logger) *Engine {
	meter := telemetry.Meter("ichiba/agent")
	turnDuration, _ := meter.Float64Histogram("ichiba.agent.turn.duration",
		metric.WithDescription("Agent turn latency by termination reason (ms)"),
		metric.WithUnit("ms"),
	)
	modelCalls, _ := meter.Int64Counter("ichiba.agent.model.calls",
		metric.WithDescription("Model completion attempts"),
	)
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:       client,
		tools:        tools,
		cfg:          cfg.withDefaults(),
		logger:       logger,
		turnDuration: turnDuration,
		modelCalls:   modelCalls,
	}
}

// RunTurn executes one full agent turn: system prompt + prior history + the
// user's message, then model/tool alternation until a final answer. The
// returned result always carries a final text, the complete message list,
// and the tool trace; an error is returned only for unusable input.
func (e *Engine) RunTurn(ctx context.Context, history []model.Message, userText string) (model.TurnResult, error) {
	if userText == "" {
		return model.TurnResult{}, model.NewFailure(model.KindInvalidArguments, false,
			"agent: empty user message")
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ElapsedBudget)
	defer cancel()

	state := model.ConversationState{
		Turns:          e.seed(history, userText),
		ToolCallBudget: e.cfg.ToolCallBudget,
		ElapsedBudget:  e.cfg.ElapsedBudget,
	}
	specs := e.tools.List()

	var (
		trace      []model.ToolTraceEntry
		pending    []model.ToolCallRequest
		executed   int
		modelCalls int
	)

	current := phaseAwaitingModel
	for {
		switch current {
		case phaseAwaitingModel:
			completion, err := e.callModel(ctx, state.Turns, specs, &modelCalls)
			if err != nil {
				if ctx.Err() != nil {
					state.Turns = append(state.Turns, assistantText(deadlineText))
					return e.finish(ctx, start, state, trace, model.ReasonDeadline, deadlineText, modelCalls, executed), nil
				}
				failure := model.AsFailure(err)
				e.logger.Error("model unavailable, ending turn",
					"kind", failure.Kind, "error", failure.Message, "attempts", modelCalls)
				state.Turns = append(state.Turns, assistantText(modelDownText))
				return e.finish(ctx, start, state, trace, model.ReasonModelUnavailable, modelDownText, modelCalls, executed), nil
			}

			state.Turns = append(state.Turns, model.Message{
				Role:      model.RoleAssistant,
				Content:   completion.Text,
				ToolCalls: completion.ToolCalls,
			})
			if len(completion.ToolCalls) == 0 {
				return e.finish(ctx, start, state, trace, model.ReasonFinalText, completion.Text, modelCalls, executed), nil
			}
			pending = completion.ToolCalls
			current = phaseExecutingTools

		case phaseExecutingTools:
			remaining := state.ToolCallBudget - executed
			if remaining < 0 {
				remaining = 0
			}
			toRun := pending
			var skipped []model.ToolCallRequest
			if len(pending) > remaining {
				toRun, skipped = pending[:remaining], pending[remaining:]
			}

			batch := e.executeBatch(ctx, toRun)
			executed += len(toRun)
			for i, call := range toRun {
				state.Turns = append(state.Turns, toolMessage(batch[i].result))
				trace = append(trace, model.ToolTraceEntry{
					ID:        call.ID,
					Name:      call.Name,
					Arguments: call.Arguments,
					Error:     batch[i].result.Error,
					Duration:  batch[i].elapsed,
				})
			}
			for _, call := range skipped {
				state.Turns = append(state.Turns, model.Message{
					Role:       model.RoleTool,
					ToolCallID: call.ID,
					Content:    "Error: " + budgetExhaustedNote,
				})
				trace = append(trace, model.ToolTraceEntry{
					ID:        call.ID,
					Name:      call.Name,
					Arguments: call.Arguments,
					Error:     budgetExhaustedNote,
					Skipped:   true,
				})
			}

			if len(skipped) > 0 {
				e.logger.Warn("tool call budget exhausted",
					"executed", executed, "skipped", len(skipped), "budget", state.ToolCallBudget)
				state.Turns = append(state.Turns, assistantText(truncationText))
				return e.finish(ctx, start, state, trace, model.ReasonToolBudget, truncationText, modelCalls, executed), nil
			}
			if ctx.Err() != nil {
				state.Turns = append(state.Turns, assistantText(deadlineText))
				return e.finish(ctx, start, state, trace, model.ReasonDeadline, deadlineText, modelCalls, executed), nil
			}
			current = phaseAwaitingModel
		}
	}
}

// seed builds the turn's opening message list. Any system messages in the
// caller's history are dropped; the engine owns the system prompt.
func (e *Engine) seed(history []model.Message, userText string) []model.Message {
	turns := make([]model.Message, 0, len(history)+2)
	turns = append(turns, model.Message{Role: model.RoleSystem, Content: e.cfg.SystemPrompt})
	for _, msg := range history {
		if msg.Role == model.RoleSystem {
			continue
		}
		turns = append(turns, msg.Clone())
	}
	return append(turns, model.Message{Role: model.RoleUser, Content: userText})
}

// callModel asks for one completion, retrying retriable failures with
// jittered exponential backoff. An empty completion counts as a failure.
func (e *Engine) callModel(ctx context.Context, turns []model.Message, specs []model.ToolSpec, calls *int) (*llm.Completion, error) {
	delay := e.cfg.ModelBaseDelay
	var lastErr error

	for attempt := 1; attempt <= e.cfg.ModelMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, model.NewFailure(model.KindTimeout, true, "agent: model call: %v", ctx.Err())
		}

		*calls++
		e.modelCalls.Add(ctx, 1)
		completion, err := e.client.Complete(ctx, llm.Request{
			Messages:    turns,
			Tools:       specs,
			Temperature: e.cfg.Temperature,
			MaxTokens:   e.cfg.MaxTokens,
		})
		if err == nil && completion.Empty() {
			err = model.NewFailure(model.KindModelUnavailable, true,
				"agent: model returned neither text nor tool calls")
		}
		if err == nil {
			return completion, nil
		}

		lastErr = err
		failure := model.AsFailure(err)
		if !failure.Retriable || attempt == e.cfg.ModelMaxAttempts {
			break
		}
		e.logger.Warn("model call failed, retrying",
			"attempt", attempt, "kind", failure.Kind, "error", failure.Message)

		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return nil, model.NewFailure(model.KindTimeout, true, "agent: model call: %v", ctx.Err())
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return nil, lastErr
}

type batchResult struct {
	result  model.ToolCallResult
	elapsed time.Duration
}

// executeBatch runs one model response's tool calls concurrently, bounded
// by ToolConcurrency, each under its own ToolTimeout. Results are indexed
// parallel to calls so request order survives the fan-out.
func (e *Engine) executeBatch(ctx context.Context, calls []model.ToolCallRequest) []batchResult {
	results := make([]batchResult, len(calls))
	sem := semaphore.NewWeighted(e.cfg.ToolConcurrency)
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call model.ToolCallRequest) {
			defer wg.Done()
			start := time.Now()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = batchResult{
					result: model.ToolCallResult{
						ID:    call.ID,
						Name:  call.Name,
						Error: model.NewFailure(model.KindTimeout, true, "agent: tool call canceled: %v", err).Error(),
					},
					elapsed: time.Since(start),
				}
				return
			}
			defer sem.Release(1)

			callCtx, cancel := context.WithTimeout(ctx, e.cfg.ToolTimeout)
			defer cancel()
			result := e.tools.Invoke(callCtx, call)
			results[i] = batchResult{result: result, elapsed: time.Since(start)}
		}(i, call)
	}
	wg.Wait()
	return results
}

func (e *Engine) finish(ctx context.Context, start time.Time, state model.ConversationState, trace []model.ToolTraceEntry, reason, text string, modelCalls, executed int) model.TurnResult {
	elapsed := time.Since(start)
	e.turnDuration.Record(ctx, float64(elapsed.Milliseconds()),
		metric.WithAttributes(attribute.String("agent.reason", reason)))
	e.logger.Info("agent turn finished",
		"reason", reason, "model_calls", modelCalls, "tool_calls", executed,
		"duration_ms", elapsed.Milliseconds())
	return model.TurnResult{
		FinalText:         text,
		Messages:          state.Turns,
		ToolTrace:         trace,
		Reason:            reason,
		ModelCalls:        modelCalls,
		ToolCallsExecuted: executed,
		Elapsed:           elapsed,
	}
}

func assistantText(text string) model.Message {
	return model.Message{Role: model.RoleAssistant, Content: text}
}

// toolMessage renders a tool result for the conversation. Failures keep the
// "Error:" prefix the model is prompted to recognize.
func toolMessage(result model.ToolCallResult) model.Message {
	msg := model.Message{Role: model.RoleTool, ToolCallID: result.ID}
	if result.Error != "" {
		msg.Content = "Error: " + result.Error
	} else {
		msg.Content = string(result.Output)
	}
	return msg
}
