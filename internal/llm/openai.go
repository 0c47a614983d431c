package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashita-ai/ichiba/internal/model"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"

	// openaiMaxResponseBytes caps how much of a completion body is read.
	openaiMaxResponseBytes = 10 << 20
)

// OpenAIClient talks to an OpenAI-compatible chat-completions endpoint.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient builds a client for the given endpoint and model name.
// An empty baseURL falls back to the public OpenAI API; a nil httpClient
// gets a 60s timeout.
func NewOpenAIClient(baseURL, apiKey, modelName string, httpClient *http.Client, logger *slog.Logger) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      modelName,
		httpClient: httpClient,
		logger:     logger,
	}
}

var _ Client = (*OpenAIClient)(nil)

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Tools          []chatTool      `json:"tools,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatCallFunction `json:"function"`
}

type chatCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type responseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *jsonSchemaSpec `json:"json_schema,omitempty"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict,omitempty"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Complete performs a single chat-completion call. 429 and 5xx statuses come
// back as retriable ModelUnavailable failures, other non-2xx statuses as
// non-retriable ones.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	payload, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, model.NewFailure(model.KindTimeout, true, "llm: %v", err)
		}
		return nil, model.NewFailure(model.KindModelUnavailable, true, "llm: send request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, openaiMaxResponseBytes))
	if err != nil {
		return nil, model.NewFailure(model.KindModelUnavailable, true, "llm: read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusFailure(resp.StatusCode, raw)
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, model.NewFailure(model.KindModelUnavailable, false, "llm: decode response: %v", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, model.NewFailure(model.KindModelUnavailable, true, "llm: response has no choices")
	}

	choice := decoded.Choices[0]
	completion := &Completion{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		Model:        decoded.Model,
	}
	for _, tc := range choice.Message.ToolCalls {
		args := tc.Function.Arguments
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		completion.ToolCalls = append(completion.ToolCalls, model.ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(args),
		})
	}

	c.logger.DebugContext(ctx, "model completion",
		"model", completion.Model,
		"finish_reason", completion.FinishReason,
		"tool_calls", len(completion.ToolCalls),
		"duration_ms", time.Since(start).Milliseconds())
	return completion, nil
}

func (c *OpenAIClient) buildRequest(req Request) (chatRequest, error) {
	messages := make([]chatMessage, 0, len(req.Messages))
	for i, m := range req.Messages {
		cm, err := toChatMessage(m)
		if err != nil {
			return chatRequest{}, fmt.Errorf("llm: message %d: %w", i, err)
		}
		messages = append(messages, cm)
	}

	out := chatRequest{Model: c.model, Messages: messages, MaxTokens: req.MaxTokens}
	if req.Temperature > 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	for _, spec := range req.Tools {
		out.Tools = append(out.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	if req.ResponseSchema != nil {
		out.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaSpec{
				Name:   req.ResponseSchema.Name,
				Schema: req.ResponseSchema.Schema,
				Strict: req.ResponseSchema.Strict,
			},
		}
	}
	return out, nil
}

func toChatMessage(m model.Message) (chatMessage, error) {
	switch m.Role {
	case model.RoleSystem, model.RoleUser, model.RoleAssistant, model.RoleTool:
	default:
		return chatMessage{}, fmt.Errorf("unsupported role %q", m.Role)
	}
	if m.Role == model.RoleTool && m.ToolCallID == "" {
		return chatMessage{}, errors.New("tool message missing tool_call_id")
	}

	cm := chatMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		args := string(tc.Arguments)
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
			ID:       tc.ID,
			Type:     "function",
			Function: chatCallFunction{Name: tc.Name, Arguments: args},
		})
	}
	return cm, nil
}

func statusFailure(status int, body []byte) *model.Failure {
	msg := apiErrorMessage(body)
	retriable := status == http.StatusTooManyRequests || status >= 500
	return model.NewFailure(model.KindModelUnavailable, retriable, "llm: status %d: %s", status, msg)
}

// apiErrorMessage pulls the human-readable message out of an OpenAI error
// envelope, falling back to a truncated raw body.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256]
	}
	if s == "" {
		s = "empty body"
	}
	return s
}
