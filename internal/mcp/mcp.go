// Package mcp implements the Model Context Protocol server for Ichiba.
//
// The MCP server exposes the same tool surface the agent loop uses, plus
// read-only market resources and analysis prompts, so MCP-compatible AI
// agents can pull market data without going through the HTTP API.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/ichiba/internal/model"
)

// ToolSource is the slice of the tool registry the MCP bridge exposes.
type ToolSource interface {
	List() []model.ToolSpec
	Invoke(ctx context.Context, call model.ToolCallRequest) model.ToolCallResult
}

// StockReader serves the read-only market resources.
type StockReader interface {
	StockState(ctx context.Context, symbol, interval string) model.StockState
	MarketSummary(ctx context.Context) model.MarketSummary
}

// Server wraps the MCP server with Ichiba's service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	tools     ToolSource
	stocks    StockReader
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all tools, resources,
// and prompts registered.
func New(tools ToolSource, stocks StockReader, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		tools:  tools,
		stocks: stocks,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"ichiba",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// registerTools mirrors the registry's tool surface one-to-one. The registry
// already declares full JSON schemas, so they pass through raw rather than
// being rebuilt with option helpers.
func (s *Server) registerTools() {
	for _, spec := range s.tools.List() {
		schema, err := json.Marshal(spec.Parameters)
		if err != nil {
			s.logger.Warn("mcp: skipping tool with unencodable schema", "tool", spec.Name, "error", err)
			continue
		}
		s.mcpServer.AddTool(
			mcplib.NewToolWithRawSchema(spec.Name, spec.Description, schema),
			s.handleTool,
		)
	}
}

// handleTool bridges one MCP tool call into the registry. Failures stay
// in-band as IsError results so the client sees the same "Kind: message"
// text the agent loop would.
func (s *Server) handleTool(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	call := model.ToolCallRequest{
		ID:   "mcp-" + uuid.New().String()[:8],
		Name: request.Params.Name,
	}
	if args := request.GetArguments(); len(args) > 0 {
		raw, err := json.Marshal(args)
		if err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		call.Arguments = raw
	}

	result := s.tools.Invoke(ctx, call)
	if result.Error != "" {
		return errorResult(result.Error), nil
	}

	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(result.Output)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
