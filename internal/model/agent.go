package model

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation. Exactly one shape applies per role:
// user/system messages carry Content; assistant messages carry Content and/or
// ToolCalls; tool messages carry ToolCallID plus Content (the serialized
// result or an error note).
type Message struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
}

// Clone returns a deep copy so loop-internal mutation never leaks into
// caller-held history.
func (m Message) Clone() Message {
	out := m
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]ToolCallRequest, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	return out
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// ToolCallRequest is the model's structured request to invoke one tool.
// Arguments stay raw JSON until the registry validates them.
type ToolCallRequest struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallResult is the registry's answer to one ToolCallRequest, matched
// back by ID. Error is empty on success.
type ToolCallResult struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ToolSpec declares one callable capability: name, human description, and a
// JSON-schema parameter object.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolTraceEntry records one executed (or skipped) tool call for the
// transparency trace returned with every chat answer.
type ToolTraceEntry struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Error     string          `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration_ns,omitempty"`
	Skipped   bool            `json:"skipped,omitempty"`
}

// Turn termination reasons.
const (
	ReasonFinalText        = "final_text"
	ReasonToolBudget       = "tool_budget_exhausted"
	ReasonDeadline         = "deadline_exhausted"
	ReasonModelUnavailable = "model_unavailable"
)

// ConversationState is the per-turn working set owned by one agent loop
// invocation. It is discarded when the turn ends; persistence is the
// caller's concern.
type ConversationState struct {
	Turns          []Message     `json:"turns"`
	ToolCallBudget int           `json:"tool_call_budget"`
	ElapsedBudget  time.Duration `json:"elapsed_budget"`
}

// TurnResult is the terminal output of one agent turn: the final assistant
// text plus the full message history and tool trace for audit.
type TurnResult struct {
	FinalText         string           `json:"final_text"`
	Messages          []Message        `json:"messages"`
	ToolTrace         []ToolTraceEntry `json:"tool_trace"`
	Reason            string           `json:"reason"`
	ModelCalls        int              `json:"model_calls"`
	ToolCallsExecuted int              `json:"tool_calls_executed"`
	Elapsed           time.Duration    `json:"elapsed_ns"`
}
