package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// ichiba://market/summary — snapshot quotes for the tracked index ETFs.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"ichiba://market/summary",
			"Market Summary",
			mcplib.WithResourceDescription("Snapshot quotes for the tracked index ETFs (SPY, QQQ, DIA, IWM)"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleMarketSummaryResource,
	)

	// ichiba://stocks/{symbol}/state — compact per-symbol state.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"ichiba://stocks/{symbol}/state",
			"Stock State",
			mcplib.WithTemplateDescription("Compact technical, fundamental, and news-flow state for one symbol"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleStockStateResource,
	)
}

func (s *Server) handleMarketSummaryResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	summary := s.stocks.MarketSummary(ctx)

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal market summary: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "ichiba://market/summary",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// parseStockStateURI extracts the symbol from ichiba://stocks/{symbol}/state.
func parseStockStateURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "ichiba://stocks/")
	if !ok {
		return "", fmt.Errorf("mcp: invalid stock state URI: %s", uri)
	}
	symbol, ok := strings.CutSuffix(rest, "/state")
	if !ok {
		return "", fmt.Errorf("mcp: invalid stock state URI: %s", uri)
	}
	if symbol == "" {
		return "", fmt.Errorf("mcp: empty symbol in stock state URI: %s", uri)
	}
	if strings.Contains(symbol, "/") {
		return "", fmt.Errorf("mcp: invalid stock state URI: %s", uri)
	}
	return symbol, nil
}

func (s *Server) handleStockStateResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	symbol, err := parseStockStateURI(uri)
	if err != nil {
		return nil, err
	}

	// Default interval; the state is partial by construction, so a symbol
	// with no data comes back with every section marked unavailable rather
	// than as an error.
	state := s.stocks.StockState(ctx, symbol, "")

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal stock state: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
