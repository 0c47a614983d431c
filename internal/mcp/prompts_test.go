package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func promptRequest(name string, args map[string]string) mcplib.GetPromptRequest {
	return mcplib.GetPromptRequest{
		Params: mcplib.GetPromptParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// promptText extracts the first user message text from a prompt result.
func promptText(t *testing.T, result *mcplib.GetPromptResult) string {
	t.Helper()
	require.NotEmpty(t, result.Messages, "expected at least one message")

	msg := result.Messages[0]
	assert.Equal(t, mcplib.RoleUser, msg.Role)

	tc, ok := msg.Content.(mcplib.TextContent)
	require.True(t, ok, "message content should be TextContent")
	return tc.Text
}

func TestAnalyzeStockPrompt(t *testing.T) {
	s := newTestServer(&fakeProfiles{}, &fakeAnalyses{})

	result, err := s.handleAnalyzeStockPrompt(context.Background(), promptRequest("analyze-stock", map[string]string{
		"symbol":    "NVDA",
		"timeframe": "1week",
	}))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Contains(t, result.Description, "NVDA")
	assert.Contains(t, result.Description, "1week")

	text := promptText(t, result)
	assert.Contains(t, text, "get_stock_state",
		"prompt should instruct the client to fetch the state first")
	assert.Contains(t, text, "generate_analysis",
		"prompt should instruct the client to run the structured analysis")
	assert.Contains(t, text, `timeframe="1week"`)
}

func TestAnalyzeStockPromptDefaultsTimeframe(t *testing.T) {
	s := newTestServer(&fakeProfiles{}, &fakeAnalyses{})

	result, err := s.handleAnalyzeStockPrompt(context.Background(), promptRequest("analyze-stock", map[string]string{
		"symbol": "AAPL",
	}))
	require.NoError(t, err)

	assert.Contains(t, promptText(t, result), `timeframe="1day"`)
}

func TestAnalyzeStockPromptMissingSymbol(t *testing.T) {
	s := newTestServer(&fakeProfiles{}, &fakeAnalyses{})

	_, err := s.handleAnalyzeStockPrompt(context.Background(), promptRequest("analyze-stock", map[string]string{}))
	require.Error(t, err, "should error when symbol is missing")
	assert.Contains(t, err.Error(), "symbol")
}

func TestAnalyzeStockPromptRejectsUnknownTimeframe(t *testing.T) {
	s := newTestServer(&fakeProfiles{}, &fakeAnalyses{})

	_, err := s.handleAnalyzeStockPrompt(context.Background(), promptRequest("analyze-stock", map[string]string{
		"symbol":    "AAPL",
		"timeframe": "fortnightly",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown timeframe")
}

func TestMarketBriefingPrompt(t *testing.T) {
	s := newTestServer(&fakeProfiles{}, &fakeAnalyses{})

	result, err := s.handleMarketBriefingPrompt(context.Background(), promptRequest("market-briefing", nil))
	require.NoError(t, err)

	text := promptText(t, result)
	assert.Contains(t, text, "get_market_summary",
		"prompt should instruct the client to fetch the ETF snapshot")
	assert.Contains(t, text, "SPY")
}
