package agent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/ichiba/internal/llm"
	"github.com/ashita-ai/ichiba/internal/llm/llmtest"
	"github.com/ashita-ai/ichiba/internal/model"
	"github.com/ashita-ai/ichiba/internal/testutil"
)

type fakeTools struct {
	mu      sync.Mutex
	outputs map[string]string
	errors  map[string]string
	delays  map[string]time.Duration
	calls   []model.ToolCallRequest
}

func (f *fakeTools) List() []model.ToolSpec {
	return []model.ToolSpec{
		{Name: "get_stock_price", Description: "prices", Parameters: map[string]any{"type": "object"}},
		{Name: "get_stock_state", Description: "state", Parameters: map[string]any{"type": "object"}},
	}
}

func (f *fakeTools) Invoke(ctx context.Context, call model.ToolCallRequest) model.ToolCallResult {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	delay := f.delays[call.Name]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return model.ToolCallResult{ID: call.ID, Name: call.Name,
				Error: model.NewFailure(model.KindTimeout, true, "tool: %v", ctx.Err()).Error()}
		case <-time.After(delay):
		}
	}
	if errText, ok := f.errors[call.Name]; ok {
		return model.ToolCallResult{ID: call.ID, Name: call.Name, Error: errText}
	}
	out, ok := f.outputs[call.Name]
	if !ok {
		out = `{"ok":true}`
	}
	return model.ToolCallResult{ID: call.ID, Name: call.Name, Output: json.RawMessage(out)}
}

func (f *fakeTools) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestEngine(client llm.Client, tools ToolRunner, cfg Config) *Engine {
	if cfg.ModelBaseDelay == 0 {
		cfg.ModelBaseDelay = time.Millisecond
	}
	return New(client, tools, cfg, testutil.TestLogger())
}

func priceCall(id string) model.ToolCallRequest {
	return model.ToolCallRequest{ID: id, Name: "get_stock_price", Arguments: json.RawMessage(`{"symbol":"AAPL"}`)}
}

func TestRunTurnDirectAnswer(t *testing.T) {
	client := llmtest.NewScriptedClient(llmtest.Text("Hello! Ask me about a stock."))
	tools := &fakeTools{}
	engine := newTestEngine(client, tools, Config{})

	result, err := engine.RunTurn(context.Background(), nil, "hi")
	require.NoError(t, err)

	assert.Equal(t, model.ReasonFinalText, result.Reason)
	assert.Equal(t, "Hello! Ask me about a stock.", result.FinalText)
	assert.Equal(t, 1, result.ModelCalls)
	assert.Zero(t, result.ToolCallsExecuted)
	assert.Empty(t, result.ToolTrace)

	require.Len(t, result.Messages, 3)
	assert.Equal(t, model.RoleSystem, result.Messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, result.Messages[0].Content)
	assert.Equal(t, model.RoleUser, result.Messages[1].Role)
	assert.Equal(t, model.RoleAssistant, result.Messages[2].Role)

	requests := client.Requests()
	require.Len(t, requests, 1)
	assert.Len(t, requests[0].Tools, 2, "tool specs ride along on every model call")
}

func TestRunTurnSingleToolRound(t *testing.T) {
	client := llmtest.NewScriptedClient(
		llmtest.ToolCalls(priceCall("call_1")),
		llmtest.Text("AAPL closed at 139.46."),
	)
	tools := &fakeTools{outputs: map[string]string{"get_stock_price": `{"latest_close":139.46}`}}
	engine := newTestEngine(client, tools, Config{})

	result, err := engine.RunTurn(context.Background(), nil, "price of AAPL?")
	require.NoError(t, err)

	assert.Equal(t, model.ReasonFinalText, result.Reason)
	assert.Equal(t, 2, result.ModelCalls)
	assert.Equal(t, 1, result.ToolCallsExecuted)

	require.Len(t, result.Messages, 5)
	assert.Equal(t, model.RoleAssistant, result.Messages[2].Role)
	require.Len(t, result.Messages[2].ToolCalls, 1)
	toolMsg := result.Messages[3]
	assert.Equal(t, model.RoleTool, toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.JSONEq(t, `{"latest_close":139.46}`, toolMsg.Content)

	require.Len(t, result.ToolTrace, 1)
	entry := result.ToolTrace[0]
	assert.Equal(t, "call_1", entry.ID)
	assert.Equal(t, "get_stock_price", entry.Name)
	assert.False(t, entry.Skipped)
	assert.Empty(t, entry.Error)

	requests := client.Requests()
	require.Len(t, requests, 2)
	second := requests[1].Messages
	assert.Equal(t, model.RoleTool, second[len(second)-1].Role, "the tool result must reach the model")
}

func TestRunTurnToolFailureContinues(t *testing.T) {
	client := llmtest.NewScriptedClient(
		llmtest.ToolCalls(priceCall("call_1")),
		llmtest.Text("The price feed is rate limited right now."),
	)
	tools := &fakeTools{errors: map[string]string{"get_stock_price": "RateLimited: twelvedata: rate limited"}}
	engine := newTestEngine(client, tools, Config{})

	result, err := engine.RunTurn(context.Background(), nil, "price of AAPL?")
	require.NoError(t, err)

	assert.Equal(t, model.ReasonFinalText, result.Reason, "tool failures never abort the turn")
	assert.Equal(t, "Error: RateLimited: twelvedata: rate limited", result.Messages[3].Content)
	require.Len(t, result.ToolTrace, 1)
	assert.Equal(t, "RateLimited: twelvedata: rate limited", result.ToolTrace[0].Error)
}

func TestRunTurnBudgetSkipsExcessCalls(t *testing.T) {
	client := llmtest.NewScriptedClient(
		llmtest.ToolCalls(priceCall("call_1"), priceCall("call_2"), priceCall("call_3")),
	)
	tools := &fakeTools{}
	engine := newTestEngine(client, tools, Config{ToolCallBudget: 2})

	result, err := engine.RunTurn(context.Background(), nil, "compare three stocks")
	require.NoError(t, err)

	assert.Equal(t, model.ReasonToolBudget, result.Reason)
	assert.Equal(t, truncationText, result.FinalText)
	assert.Equal(t, 2, result.ToolCallsExecuted)
	assert.Equal(t, 2, tools.callCount(), "skipped calls must not execute")
	assert.Equal(t, 1, client.Calls(), "the loop must not re-ask the model after truncation")

	require.Len(t, result.ToolTrace, 3)
	assert.False(t, result.ToolTrace[0].Skipped)
	assert.False(t, result.ToolTrace[1].Skipped)
	skipped := result.ToolTrace[2]
	assert.True(t, skipped.Skipped)
	assert.Equal(t, "call_3", skipped.ID)
	assert.Equal(t, budgetExhaustedNote, skipped.Error)

	// system, user, assistant, 3 tool messages, synthesized assistant.
	require.Len(t, result.Messages, 7)
	assert.Equal(t, "Error: "+budgetExhaustedNote, result.Messages[5].Content)
	assert.Equal(t, "call_3", result.Messages[5].ToolCallID)
	assert.Equal(t, truncationText, result.Messages[6].Content)
}

func TestRunTurnBudgetAcrossRounds(t *testing.T) {
	client := llmtest.NewScriptedClient(
		llmtest.ToolCalls(priceCall("call_1"), priceCall("call_2")),
		llmtest.ToolCalls(priceCall("call_3")),
	)
	tools := &fakeTools{}
	engine := newTestEngine(client, tools, Config{ToolCallBudget: 2})

	result, err := engine.RunTurn(context.Background(), nil, "dig deep")
	require.NoError(t, err)

	assert.Equal(t, model.ReasonToolBudget, result.Reason)
	assert.Equal(t, 2, result.ToolCallsExecuted)
	assert.Equal(t, 2, client.Calls())
	require.Len(t, result.ToolTrace, 3)
	assert.True(t, result.ToolTrace[2].Skipped, "the budget carries across rounds")
}

func TestRunTurnModelRetriesThenAnswers(t *testing.T) {
	client := llmtest.NewScriptedClient(
		llmtest.Fail(model.NewFailure(model.KindModelUnavailable, true, "llm: status 503")),
		llmtest.Text("recovered"),
	)
	engine := newTestEngine(client, &fakeTools{}, Config{})

	result, err := engine.RunTurn(context.Background(), nil, "hi")
	require.NoError(t, err)

	assert.Equal(t, model.ReasonFinalText, result.Reason)
	assert.Equal(t, "recovered", result.FinalText)
	assert.Equal(t, 2, result.ModelCalls)
}

func TestRunTurnModelUnavailableAfterRetries(t *testing.T) {
	retriable := model.NewFailure(model.KindModelUnavailable, true, "llm: status 503")
	client := llmtest.NewScriptedClient(
		llmtest.Fail(retriable), llmtest.Fail(retriable), llmtest.Fail(retriable),
	)
	engine := newTestEngine(client, &fakeTools{}, Config{ModelMaxAttempts: 3})

	result, err := engine.RunTurn(context.Background(), nil, "hi")
	require.NoError(t, err, "model failure ends the turn, it does not error it")

	assert.Equal(t, model.ReasonModelUnavailable, result.Reason)
	assert.Equal(t, modelDownText, result.FinalText)
	assert.Equal(t, 3, result.ModelCalls)
	last := result.Messages[len(result.Messages)-1]
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Equal(t, modelDownText, last.Content)
}

func TestRunTurnNonRetriableModelFailure(t *testing.T) {
	client := llmtest.NewScriptedClient(
		llmtest.Fail(model.NewFailure(model.KindModelUnavailable, false, "llm: status 401: bad key")),
	)
	engine := newTestEngine(client, &fakeTools{}, Config{ModelMaxAttempts: 3})

	result, err := engine.RunTurn(context.Background(), nil, "hi")
	require.NoError(t, err)

	assert.Equal(t, model.ReasonModelUnavailable, result.Reason)
	assert.Equal(t, 1, result.ModelCalls, "non-retriable failures must not burn retries")
}

func TestRunTurnEmptyCompletionRetries(t *testing.T) {
	client := llmtest.NewScriptedClient(
		llmtest.Text(""),
		llmtest.Text("answer"),
	)
	engine := newTestEngine(client, &fakeTools{}, Config{})

	result, err := engine.RunTurn(context.Background(), nil, "hi")
	require.NoError(t, err)

	assert.Equal(t, "answer", result.FinalText)
	assert.Equal(t, 2, result.ModelCalls, "an empty completion takes the retry path")
}

func TestRunTurnDeadline(t *testing.T) {
	client := llmtest.NewScriptedClient(
		llmtest.ToolCalls(priceCall("call_1")),
		llmtest.Text("unreachable"),
	)
	tools := &fakeTools{delays: map[string]time.Duration{"get_stock_price": 500 * time.Millisecond}}
	engine := newTestEngine(client, tools, Config{ElapsedBudget: 50 * time.Millisecond})

	result, err := engine.RunTurn(context.Background(), nil, "slow question")
	require.NoError(t, err)

	assert.Equal(t, model.ReasonDeadline, result.Reason)
	assert.Equal(t, deadlineText, result.FinalText)
	assert.Equal(t, 1, result.ModelCalls)

	require.Len(t, result.ToolTrace, 1)
	assert.Contains(t, result.ToolTrace[0].Error, "Timeout", "in-flight calls are recorded as timeouts")
	last := result.Messages[len(result.Messages)-1]
	assert.Equal(t, deadlineText, last.Content)
}

func TestRunTurnToolResultsKeepRequestOrder(t *testing.T) {
	client := llmtest.NewScriptedClient(
		llmtest.ToolCalls(
			model.ToolCallRequest{ID: "call_slow", Name: "get_stock_price", Arguments: json.RawMessage(`{}`)},
			model.ToolCallRequest{ID: "call_fast", Name: "get_stock_state", Arguments: json.RawMessage(`{}`)},
		),
		llmtest.Text("done"),
	)
	tools := &fakeTools{
		delays:  map[string]time.Duration{"get_stock_price": 40 * time.Millisecond},
		outputs: map[string]string{"get_stock_price": `{"k":"slow"}`, "get_stock_state": `{"k":"fast"}`},
	}
	engine := newTestEngine(client, tools, Config{})

	result, err := engine.RunTurn(context.Background(), nil, "both please")
	require.NoError(t, err)

	// Messages: system, user, assistant, tool, tool, assistant.
	require.Len(t, result.Messages, 6)
	assert.Equal(t, "call_slow", result.Messages[3].ToolCallID, "results appear in request order, not completion order")
	assert.Equal(t, "call_fast", result.Messages[4].ToolCallID)
	assert.Equal(t, "call_slow", result.ToolTrace[0].ID)
	assert.Equal(t, "call_fast", result.ToolTrace[1].ID)
}

func TestRunTurnHistoryCarriedSystemDropped(t *testing.T) {
	client := llmtest.NewScriptedClient(llmtest.Text("again: 42"))
	engine := newTestEngine(client, &fakeTools{}, Config{})

	history := []model.Message{
		{Role: model.RoleSystem, Content: "stale prompt from a previous run"},
		{Role: model.RoleUser, Content: "what is the answer?"},
		{Role: model.RoleAssistant, Content: "42"},
	}
	result, err := engine.RunTurn(context.Background(), history, "say it again")
	require.NoError(t, err)

	require.Len(t, result.Messages, 5)
	assert.Equal(t, DefaultSystemPrompt, result.Messages[0].Content, "the engine owns the system prompt")
	assert.Equal(t, "what is the answer?", result.Messages[1].Content)
	assert.Equal(t, "42", result.Messages[2].Content)
	assert.Equal(t, "say it again", result.Messages[3].Content)
}

func TestRunTurnEmptyUserText(t *testing.T) {
	engine := newTestEngine(llmtest.NewScriptedClient(), &fakeTools{}, Config{})

	_, err := engine.RunTurn(context.Background(), nil, "")
	require.Error(t, err)

	var failure *model.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, model.KindInvalidArguments, failure.Kind)
}
