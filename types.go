package ichiba

import (
	"encoding/json"
	"time"
)

// Chat roles as they appear in ChatMessage.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is the public representation of one conversation message.
// It is a curated view of internal/model.Message for use in extension
// interfaces. No internal package imports — safe to use from outside the
// module.
type ChatMessage struct {
	Role       string
	Content    string
	ToolCallID string     // set on tool messages: the call this result answers
	ToolCalls  []ToolCall // set on assistant messages that request tools
}

// ToolCall is a model's request to invoke one tool with JSON arguments.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolSpec describes one callable tool in the shape the model consumes:
// a name, a one-line description, and a JSON Schema for the arguments.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ResponseSchema asks the model to emit JSON conforming to Schema instead of
// free text. Used by analysis generation.
type ResponseSchema struct {
	Name   string
	Schema map[string]any
	Strict bool
}

// ModelRequest is one chat-completion call handed to a ModelClient.
type ModelRequest struct {
	Messages       []ChatMessage
	Tools          []ToolSpec
	ResponseSchema *ResponseSchema // nil for plain completions
	Temperature    float64
	MaxTokens      int
}

// ModelResponse is one model answer: free text, tool-call requests, or both.
// FinishReason carries the provider's stop reason verbatim ("stop",
// "tool_calls", "length").
type ModelResponse struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	Model        string
}

// ToolTraceEntry records one tool invocation within a completed turn.
type ToolTraceEntry struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Error     string // empty on success
	Duration  time.Duration
	Skipped   bool // true when the budget ran out before execution
}

// TurnSummary describes one completed chat turn for TurnHook consumers.
// Reason is "final_text", "tool_budget_exhausted", "deadline_exhausted", or
// "model_unavailable".
type TurnSummary struct {
	FinalText         string
	Reason            string
	ModelCalls        int
	ToolCallsExecuted int
	ToolTrace         []ToolTraceEntry
	Elapsed           time.Duration
}
