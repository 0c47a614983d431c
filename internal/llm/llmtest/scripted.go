// Package llmtest provides a deterministic model double for agent-loop and
// service tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ashita-ai/ichiba/internal/llm"
	"github.com/ashita-ai/ichiba/internal/model"
)

// Step configures one scripted model turn: a completion or an error.
type Step struct {
	Completion *llm.Completion
	Err        error
}

// Text builds a step that answers with plain assistant text.
func Text(text string) Step {
	return Step{Completion: &llm.Completion{Text: text, FinishReason: "stop", Model: "scripted"}}
}

// ToolCalls builds a step that requests the given tool calls.
func ToolCalls(calls ...model.ToolCallRequest) Step {
	return Step{Completion: &llm.Completion{ToolCalls: calls, FinishReason: "tool_calls", Model: "scripted"}}
}

// Fail builds a step that fails with err.
func Fail(err error) Step { return Step{Err: err} }

// ScriptedClient replays a fixed sequence of completions. Calls past the end
// of the script fail, which keeps runaway loops visible in tests.
type ScriptedClient struct {
	mu       sync.Mutex
	index    int
	steps    []Step
	requests []llm.Request
}

// NewScriptedClient builds a client that replays steps in order.
func NewScriptedClient(steps ...Step) *ScriptedClient {
	cloned := make([]Step, len(steps))
	copy(cloned, steps)
	return &ScriptedClient{steps: cloned}
}

var _ llm.Client = (*ScriptedClient)(nil)

// Complete returns the next scripted step and records the request.
func (c *ScriptedClient) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests = append(c.requests, req)
	if c.index >= len(c.steps) {
		return nil, fmt.Errorf("llmtest: script exhausted at call %d", c.index+1)
	}
	step := c.steps[c.index]
	c.index++
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Completion, nil
}

// Requests returns a copy of every request seen, in order.
func (c *ScriptedClient) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]llm.Request, len(c.requests))
	copy(out, c.requests)
	return out
}

// Calls reports how many times Complete was invoked.
func (c *ScriptedClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}
