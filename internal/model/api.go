package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUpstream      = "UPSTREAM_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Message string    `json:"message"`
	History []Message `json:"history,omitempty"`
}

// ChatResponse is the agent's answer plus the transparency trace.
type ChatResponse struct {
	Reply     string           `json:"reply"`
	Reason    string           `json:"reason"`
	ToolTrace []ToolTraceEntry `json:"tool_trace"`
	Messages  []Message        `json:"messages,omitempty"`
}

// AnalysisRequest is the body of POST /v1/stocks/{symbol}/analysis.
type AnalysisRequest struct {
	Timeframe string `json:"timeframe,omitempty"`
}

// TokenResponse is the body returned by POST /v1/auth/token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Cache   string `json:"cache,omitempty"`
	Archive string `json:"archive,omitempty"`
	Uptime  int64  `json:"uptime_seconds"`
}
