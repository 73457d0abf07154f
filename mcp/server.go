// Package mcp implements a stdio MCP server that lets AI agents list and
// switch site sessions.
package mcp

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agungkristd/session-switcher/session"
)

type Server struct {
	registry *session.Registry
	mcp      *server.MCPServer
	handlers map[string]server.ToolHandlerFunc
}

func NewServer(registry *session.Registry, version string) *Server {
	s := &Server{
		registry: registry,
		mcp:      server.NewMCPServer("session-switcher", version, server.WithToolCapabilities(false)),
		handlers: make(map[string]server.ToolHandlerFunc),
	}
	s.registerTools()
	return s
}

func (s *Server) addTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.handlers[tool.Name] = handler
	s.mcp.AddTool(tool, handler)
}

// Run serves MCP over the given streams until ctx is done or in closes.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}
