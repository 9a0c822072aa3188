// Package mcp exposes the report engine to agent consumers over the Model
// Context Protocol.
package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roasbeef/repodigest/internal/orchestrator"
)

// Server wraps the MCP server with the report orchestrator.
type Server struct {
	server *mcp.Server
	orch   *orchestrator.Orchestrator
}

// NewServer creates an MCP server with the report tools registered.
func NewServer(orch *orchestrator.Orchestrator) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "repodigest",
		Version: "0.1.0",
	}, nil)

	s := &Server{
		server: mcpServer,
		orch:   orch,
	}
	s.registerTools()

	return s
}

// Run starts the MCP server on the given transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_report_section",
		Description: "Get one section (prs, issues, people or " +
			"summary) of a repository activity report",
	}, s.handleGetReportSection)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_report",
		Description: "Get a full repository activity report over a " +
			"timeframe",
	}, s.handleGetReport)
}
