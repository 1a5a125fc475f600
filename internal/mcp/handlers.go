package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/db"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/ops"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/session"
)

const (
	defaultReservationLimit = 100
	defaultAckLimit         = 20
)

// Deps are the sources the tool handlers read from.
type Deps struct {
	// Project is used when a call omits the project argument.
	Project string

	Sessions *session.Registry

	// Store opens the mirror on first use. An error marks it unavailable
	// for that call.
	Store func() (*db.Store, error)

	Mail   ops.MailSource
	Issues ops.IssueTracker
	Now    func() time.Time
	Logger *slog.Logger
}

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handlers{deps: deps}
}

// ProjectRequest is the argument set of project-wide tools.
type ProjectRequest struct {
	Project string `json:"project,omitempty"`
}

// AgentRequest is the argument set of per-agent tools.
type AgentRequest struct {
	Project string `json:"project,omitempty"`
	Agent   string `json:"agent,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// SessionStatus is returned for an agent without a live session.
type SessionStatus struct {
	Agent  string `json:"agent"`
	Status string `json:"status"`
}

func (h *Handlers) project(p string) string {
	if p = strings.TrimSpace(p); p != "" {
		return p
	}
	return h.deps.Project
}

func (h *Handlers) store() (*db.Store, error) {
	if h.deps.Store == nil {
		return nil, errors.NewStoreUnavailable("", nil)
	}
	return h.deps.Store()
}

func requireAgent(agent string) (string, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return "", errors.NewInvalidRequest("agent is required")
	}
	return agent, nil
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// HandleSessionStatus handles the session_status tool call.
func (h *Handlers) HandleSessionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AgentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	project := h.project(input.Project)

	if agent := strings.TrimSpace(input.Agent); agent != "" {
		if rec := h.deps.Sessions.Read(project, agent); rec != nil {
			return successResult(rec)
		}
		return successResult(SessionStatus{Agent: agent, Status: "inactive"})
	}
	records := h.deps.Sessions.List(project)
	if records == nil {
		records = []*session.Record{}
	}
	return successResult(records)
}

// HandleAgentDependencies handles the agent_dependencies tool call.
func (h *Handlers) HandleAgentDependencies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AgentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	agent, err := requireAgent(input.Agent)
	if err != nil {
		return errorResult(err), nil
	}

	store, err := h.store()
	if err != nil {
		return errorResult(err), nil
	}
	result, err := ops.Dependencies(ctx, store, h.project(input.Project), agent)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleReservationsActive handles the file_reservations_active tool call.
func (h *Handlers) HandleReservationsActive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AgentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	store, err := h.store()
	if err != nil {
		return errorResult(err), nil
	}
	result, err := store.ListReservations(ctx, h.project(input.Project), db.ReservationFilter{
		ActiveOnly: true,
		Agent:      strings.TrimSpace(input.Agent),
		Limit:      limitOr(input.Limit, defaultReservationLimit),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleAcksPending handles the acks_pending tool call.
func (h *Handlers) HandleAcksPending(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AgentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	agent, err := requireAgent(input.Agent)
	if err != nil {
		return errorResult(err), nil
	}

	store, err := h.store()
	if err != nil {
		return errorResult(err), nil
	}
	result, err := store.AcksPending(ctx, h.project(input.Project), agent, limitOr(input.Limit, defaultAckLimit))
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleListAgents handles the list_agents tool call.
func (h *Handlers) HandleListAgents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ProjectRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	store, err := h.store()
	if err != nil {
		return errorResult(err), nil
	}
	result, err := store.ListAgents(ctx, h.project(input.Project))
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleResumeContext handles the resume_context tool call. The snapshot is
// returned even when some sources fail; each section carries its own error.
func (h *Handlers) HandleResumeContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AgentRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	agent, err := requireAgent(input.Agent)
	if err != nil {
		return errorResult(err), nil
	}

	agg := &ops.Aggregator{
		Mail:   h.deps.Mail,
		Issues: h.deps.Issues,
		Now:    h.deps.Now,
		Logger: h.deps.Logger,
	}
	if store, err := h.store(); err == nil {
		agg.Mirror = store
	} else {
		h.deps.Logger.Debug("resume_context: mirror unavailable", "error", err)
	}

	return successResult(agg.Build(ctx, h.project(input.Project), agent))
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if amErr, ok := errors.As(err); ok && amErr.Code != errors.ErrInternal {
		errorObj := map[string]any{
			"code":    amErr.Code,
			"message": amErr.Message,
			"status":  amErr.Status,
		}
		if amErr.Details != nil {
			errorObj["details"] = amErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
