// Package mcp serves read-side mailbox tools over MCP stdio so an agent can
// query local session and mirror state without shelling out to the CLI.
package mcp

import (
	"context"
	"io"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"session_status": {
		def:     sessionStatusToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionStatus },
	},
	"agent_dependencies": {
		def:     agentDependenciesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAgentDependencies },
	},
	"file_reservations_active": {
		def:     reservationsActiveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleReservationsActive },
	},
	"acks_pending": {
		def:     acksPendingToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAcksPending },
	},
	"list_agents": {
		def:     listAgentsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListAgents },
	},
	"resume_context": {
		def:     resumeContextToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleResumeContext },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with every tool not listed in disabled.
func NewServer(h *Handlers, disabled []string, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"agent-mail",
		version,
		server.WithToolCapabilities(true),
	)

	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		skip[name] = true
	}

	for name, entry := range toolRegistry {
		if skip[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves s over newline-delimited JSON-RPC on in and out until ctx is
// done or in closes.
func Run(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}
