package ichiba

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// userAgent identifies this SDK version on every request.
const userAgent = "ichiba-go/0.1.0"

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Ichiba server (e.g. "http://localhost:8080").
	BaseURL string

	// APIKey is the secret used to obtain a JWT token. Leave it empty when
	// the server runs with authentication disabled (dev mode); requests are
	// then sent without an Authorization header.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Ichiba market data and analysis API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager // nil when the server runs unauthenticated
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ichiba: BaseURL is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL: baseURL,
		client:  httpClient,
	}
	if cfg.APIKey != "" {
		c.tokenMgr = newTokenManager(baseURL, cfg.APIKey, httpClient)
	}
	return c, nil
}

// Profile retrieves several sections of a symbol's profile in one call.
// With no sections given the server returns all four (price, fundamentals,
// news, indicators). The profile itself never fails: sections that could
// not be fetched carry a Failure in their Result.
func (c *Client) Profile(ctx context.Context, symbol string, sections ...string) (*StockProfile, error) {
	path := "/v1/stocks/" + url.PathEscape(symbol) + "/profile"
	if len(sections) > 0 {
		path += "?sections=" + url.QueryEscape(strings.Join(sections, ","))
	}
	var resp StockProfile
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PriceSeriesOptions are optional parameters for the PriceSeries method.
type PriceSeriesOptions struct {
	// Interval is a candle interval such as "1day", "1h", or "5min".
	// Empty means the server default.
	Interval string

	// OutputSize caps the number of candles returned.
	OutputSize int
}

// PriceSeries retrieves a symbol's candle history, oldest first.
func (c *Client) PriceSeries(ctx context.Context, symbol string, opts *PriceSeriesOptions) (*PriceSeries, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Interval != "" {
			params.Set("interval", opts.Interval)
		}
		if opts.OutputSize > 0 {
			params.Set("outputsize", strconv.Itoa(opts.OutputSize))
		}
	}

	path := "/v1/stocks/" + url.PathEscape(symbol) + "/price"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp PriceSeries
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Fundamentals retrieves a symbol's quarterly statements, derived metrics,
// and valuation quote.
func (c *Client) Fundamentals(ctx context.Context, symbol string) (*FundamentalsReport, error) {
	var resp FundamentalsReport
	if err := c.get(ctx, "/v1/stocks/"+url.PathEscape(symbol)+"/fundamentals", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NewsOptions are optional parameters for the News method.
type NewsOptions struct {
	// Days bounds how far back to search. Zero means the server default.
	Days int

	// Limit caps the number of items returned.
	Limit int
}

// News retrieves recent news for a symbol.
func (c *Client) News(ctx context.Context, symbol string, opts *NewsOptions) (*NewsDigest, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Days > 0 {
			params.Set("days", strconv.Itoa(opts.Days))
		}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
	}

	path := "/v1/stocks/" + url.PathEscape(symbol) + "/news"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp NewsDigest
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Indicators retrieves computed technical indicators (MACD, RSI, Bollinger)
// for a symbol. An empty interval means the server default.
func (c *Client) Indicators(ctx context.Context, symbol, interval string) (*IndicatorSet, error) {
	path := "/v1/stocks/" + url.PathEscape(symbol) + "/indicators"
	if interval != "" {
		path += "?interval=" + url.QueryEscape(interval)
	}
	var resp IndicatorSet
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// State retrieves the derived status dashboard for a symbol. An empty
// interval means the server default. The state is partial by design:
// sections that could not be derived are listed in Unavailable.
func (c *Client) State(ctx context.Context, symbol, interval string) (*StockState, error) {
	path := "/v1/stocks/" + url.PathEscape(symbol) + "/state"
	if interval != "" {
		path += "?interval=" + url.QueryEscape(interval)
	}
	var resp StockState
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Analyze asks the model for a structured read of a symbol's current
// state. An empty timeframe means the server default. Reports are cached
// server-side, so repeated calls within the cache window return the same
// report.
func (c *Client) Analyze(ctx context.Context, symbol, timeframe string) (*AnalysisReport, error) {
	body := map[string]any{}
	if timeframe != "" {
		body["timeframe"] = timeframe
	}
	var resp AnalysisReport
	if err := c.post(ctx, "/v1/stocks/"+url.PathEscape(symbol)+"/analysis", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search looks up ticker symbols matching a company name or partial
// symbol.
func (c *Client) Search(ctx context.Context, query string) ([]SymbolMatch, error) {
	var resp []SymbolMatch
	if err := c.get(ctx, "/v1/search?q="+url.QueryEscape(query), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// MarketSummary retrieves the latest snapshot of the major index ETFs
// (SPY, QQQ, DIA, IWM).
func (c *Client) MarketSummary(ctx context.Context) (*MarketSummary, error) {
	var resp MarketSummary
	if err := c.get(ctx, "/v1/market/summary", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Tools lists the tools the chat agent can call, with their JSON schemas.
func (c *Client) Tools(ctx context.Context) ([]ToolSpec, error) {
	var resp []ToolSpec
	if err := c.get(ctx, "/v1/tools", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Chat runs one agent turn. The server keeps no conversation state: pass
// the Messages from the previous response as history to continue a
// conversation.
func (c *Client) Chat(ctx context.Context, message string, history []Message) (*ChatResponse, error) {
	body := chatRequest{Message: message, History: history}
	var resp ChatResponse
	if err := c.post(ctx, "/v1/chat", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the server's health status. This endpoint does not require
// authentication and will work even if the client has invalid credentials.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.getNoAuth(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// chatRequest is the wire format for POST /v1/chat.
type chatRequest struct {
	Message string    `json:"message"`
	History []Message `json:"history,omitempty"`
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
	} `json:"meta"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ichiba: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("ichiba: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(ctx, req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("ichiba: create request: %w", err)
	}

	return c.doRequest(ctx, req, dest)
}

func (c *Client) getNoAuth(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("ichiba: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ichiba: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func (c *Client) doRequest(ctx context.Context, req *http.Request, dest any) error {
	if c.tokenMgr != nil {
		token, err := c.tokenMgr.getToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ichiba: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ichiba: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	// 204 No Content — nothing to decode.
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	if err := decodeEnvelope(bodyBytes, dest); err != nil {
		return fmt.Errorf("ichiba: decode response envelope: %w", err)
	}
	return nil
}

// decodeEnvelope unwraps the server's { "data": ... } envelope into dest.
func decodeEnvelope(body []byte, dest any) error {
	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return err
	}

	if envelope.Data == nil {
		// Fallback: some endpoints may not wrap in "data".
		return json.Unmarshal(body, dest)
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		if id, err := uuid.Parse(envelope.Meta.RequestID); err == nil {
			apiErr.RequestID = id
		}
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
