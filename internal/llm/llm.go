// Package llm defines the chat-completion boundary the agent loop drives,
// plus an OpenAI-compatible implementation. Implementations return
// *model.Failure errors so callers can tell retriable failures apart.
package llm

import (
	"context"

	"github.com/ashita-ai/ichiba/internal/model"
)

// Request is one completion call: the conversation so far, the tools the
// model may request, and optional output constraints. A zero Temperature
// leaves the provider default in place.
type Request struct {
	Messages       []model.Message
	Tools          []model.ToolSpec
	ResponseSchema *ResponseSchema
	Temperature    float64
	MaxTokens      int
}

// ResponseSchema forces the model to emit JSON conforming to Schema.
type ResponseSchema struct {
	Name   string
	Schema map[string]any
	Strict bool
}

// Completion is one model answer: free text, tool-call requests, or both.
type Completion struct {
	Text         string
	ToolCalls    []model.ToolCallRequest
	FinishReason string
	Model        string
}

// Empty reports whether the completion carries neither text nor tool calls.
// The agent loop treats an empty completion as a model failure.
func (c *Completion) Empty() bool {
	return c == nil || (c.Text == "" && len(c.ToolCalls) == 0)
}

// Client executes one completion per call. Retry policy belongs to the
// caller; implementations must not retry internally.
type Client interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}
