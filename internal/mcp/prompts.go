package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/ichiba/internal/model"
)

func (s *Server) registerPrompts() {
	// analyze-stock — walks the client through a full analysis of one symbol.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("analyze-stock",
			mcplib.WithPromptDescription("Run a full technical, fundamental, and news analysis for one stock"),
			mcplib.WithArgument("symbol",
				mcplib.ArgumentDescription("Ticker symbol to analyze (e.g. AAPL, NVDA)"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("timeframe",
				mcplib.ArgumentDescription("Candle interval for the technical read (defaults to 1day)"),
			),
		),
		s.handleAnalyzeStockPrompt,
	)

	// market-briefing — builds a short market overview from the index ETFs.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("market-briefing",
			mcplib.WithPromptDescription("Build a concise market briefing from the index ETF snapshot"),
		),
		s.handleMarketBriefingPrompt,
	)
}

func (s *Server) handleAnalyzeStockPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	symbol := request.Params.Arguments["symbol"]
	if symbol == "" {
		return nil, fmt.Errorf("symbol argument is required")
	}
	timeframe := request.Params.Arguments["timeframe"]
	if timeframe == "" {
		timeframe = "1day"
	}
	if !model.ValidInterval(timeframe) {
		return nil, fmt.Errorf("unknown timeframe: %s", timeframe)
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Analyze %s on the %s timeframe", symbol, timeframe),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Analyze %s before answering. Follow these steps:

1. CALL get_stock_state with symbol="%s" and timeframe="%s" to get the
   compact technical, fundamental, and news-flow snapshot.

2. REVIEW the snapshot:
   - If the news section flags elevated or negative flow, CALL
     search_stock_news with symbol="%s" to read the actual headlines.
   - Sections can come back unavailable. Say so instead of guessing.

3. CALL generate_analysis with symbol="%s" and timeframe="%s" for the
   structured report: overall bias, technical and fundamental summaries,
   and risk factors.

4. PRESENT your findings:
   - Lead with the overall bias and the single strongest piece of evidence.
   - Summarize the technical and fundamental reads in one sentence each.
   - Close with the main risk that would invalidate the read.`,
						symbol, symbol, timeframe, symbol, symbol, timeframe),
				},
			},
		},
	}, nil
}

func (s *Server) handleMarketBriefingPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "Market briefing from the tracked index ETFs",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `Prepare a short market briefing. Follow these steps:

1. CALL get_market_summary to get snapshot quotes for the tracked index
   ETFs: SPY (S&P 500), QQQ (Nasdaq 100), DIA (Dow Jones), IWM (Russell 2000).

2. REVIEW the quotes:
   - Note which indexes moved the most and in which direction.
   - A quote can carry an error instead of data. Report it as missing
     rather than inventing a number.

3. For the single biggest mover, CALL get_stock_state to see whether the
   move looks technical, fundamental, or news-driven.

4. SUMMARIZE in a few sentences: overall market direction, the standout
   mover, and what appears to be driving it. No investment advice.`,
				},
			},
		},
	}, nil
}
