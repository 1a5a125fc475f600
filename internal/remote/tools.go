package remote

import (
	"bytes"
	"context"
	"encoding/json"
)

// EnsureProject creates the project if needed.
func (g *Gateway) EnsureProject(ctx context.Context, humanKey string) (*Project, error) {
	var p Project
	if err := g.call(ctx, "ensure_project", map[string]any{"human_key": humanKey}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// RegisterAgent registers or refreshes an agent. An empty Name lets the
// server assign one.
func (g *Gateway) RegisterAgent(ctx context.Context, in RegisterAgentInput) (*Agent, json.RawMessage, error) {
	raw, err := g.Call(ctx, "register_agent", in)
	if err != nil {
		return nil, nil, err
	}
	var a Agent
	if err := decode("register_agent", raw, &a); err != nil {
		return nil, nil, err
	}
	return &a, raw, nil
}

// StartSession runs macro_start_session: ensure project, register and fetch inbox.
func (g *Gateway) StartSession(ctx context.Context, in StartSessionInput) (json.RawMessage, error) {
	return g.Call(ctx, "macro_start_session", in)
}

// FetchInbox returns the agent's inbox, newest first.
func (g *Gateway) FetchInbox(ctx context.Context, q InboxQuery) ([]Message, error) {
	raw, err := g.Call(ctx, "fetch_inbox", q)
	if err != nil {
		return nil, err
	}
	return decodeList[Message]("fetch_inbox", raw)
}

// InboxStatus returns unread counts without message bodies.
func (g *Gateway) InboxStatus(ctx context.Context, q InboxStatusQuery) (*InboxStatus, error) {
	var st InboxStatus
	if err := g.call(ctx, "inbox_status", q, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SendMessage sends a new message.
func (g *Gateway) SendMessage(ctx context.Context, in SendMessageInput) (json.RawMessage, error) {
	return g.Call(ctx, "send_message", in)
}

// ReplyMessage replies within the original message's thread.
func (g *Gateway) ReplyMessage(ctx context.Context, in ReplyMessageInput) (json.RawMessage, error) {
	return g.Call(ctx, "reply_message", in)
}

// AcknowledgeMessage records the agent's acknowledgement.
func (g *Gateway) AcknowledgeMessage(ctx context.Context, project, agent string, messageID int64) (json.RawMessage, error) {
	return g.Call(ctx, "acknowledge_message", map[string]any{
		"project_key": project,
		"agent_name":  agent,
		"message_id":  messageID,
	})
}

// SearchMessages runs a full-text search.
func (g *Gateway) SearchMessages(ctx context.Context, project, query string, limit int) ([]Message, error) {
	raw, err := g.Call(ctx, "search_messages", map[string]any{
		"project_key": project,
		"query":       query,
		"limit":       limit,
	})
	if err != nil {
		return nil, err
	}
	return decodeList[Message]("search_messages", raw)
}

// SummarizeThread returns a thread summary. llm asks the server for an
// LLM-written summary instead of a mechanical digest.
func (g *Gateway) SummarizeThread(ctx context.Context, project, threadID string, examples, llm bool) (json.RawMessage, error) {
	return g.Call(ctx, "summarize_thread", map[string]any{
		"project_key":      project,
		"thread_id":        threadID,
		"include_examples": examples,
		"llm_mode":         llm,
	})
}

// ReservePaths requests file reservations.
func (g *Gateway) ReservePaths(ctx context.Context, in ReserveInput) (json.RawMessage, error) {
	return g.Call(ctx, "file_reservation_paths", in)
}

// ReleaseReservations releases the given paths, or all of the agent's
// reservations when paths is empty.
func (g *Gateway) ReleaseReservations(ctx context.Context, project, agent string, paths []string) (json.RawMessage, error) {
	args := map[string]any{"project_key": project, "agent_name": agent}
	if len(paths) > 0 {
		args["paths"] = paths
	}
	return g.Call(ctx, "release_file_reservations", args)
}

// RenewReservations extends every active reservation of the agent.
func (g *Gateway) RenewReservations(ctx context.Context, project, agent string, extendSeconds int) (json.RawMessage, error) {
	return g.Call(ctx, "renew_file_reservations", map[string]any{
		"project_key":    project,
		"agent_name":     agent,
		"extend_seconds": extendSeconds,
	})
}

// Whois returns an agent profile, optionally with recent commits.
func (g *Gateway) Whois(ctx context.Context, project, agent string, commits bool) (*Agent, error) {
	var a Agent
	err := g.call(ctx, "whois", map[string]any{
		"project_key":            project,
		"agent_name":             agent,
		"include_recent_commits": commits,
	}, &a)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListContacts returns the agent's contact links.
func (g *Gateway) ListContacts(ctx context.Context, project, agent string) (json.RawMessage, error) {
	raw, err := g.Call(ctx, "list_contacts", map[string]any{"project_key": project, "agent_name": agent})
	if err != nil {
		return nil, err
	}
	return asList(raw), nil
}

// HealthCheck pings the server.
func (g *Gateway) HealthCheck(ctx context.Context) (json.RawMessage, error) {
	return g.Call(ctx, "health_check", nil)
}

func decode(tool string, raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return unexpected(tool, err)
	}
	return nil
}

// decodeList decodes a list-shaped payload. A server that emits one text
// item per element sends a lone object for a single-element list.
func decodeList[T any](tool string, raw json.RawMessage) ([]T, error) {
	var out []T
	if err := decode(tool, asList(raw), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// asList wraps a lone JSON object in a one-element array.
func asList(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return raw
	}
	out := make(json.RawMessage, 0, len(trimmed)+2)
	out = append(out, '[')
	out = append(out, trimmed...)
	return append(out, ']')
}
