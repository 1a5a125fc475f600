// Package identity decides which agent name a register call claims and
// records the claim in the session registry.
package identity

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/db"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/remote"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/session"
)

// Registrar is the remote half of registration.
type Registrar interface {
	EnsureProject(ctx context.Context, humanKey string) (*remote.Project, error)
	RegisterAgent(ctx context.Context, in remote.RegisterAgentInput) (*remote.Agent, json.RawMessage, error)
}

// Directory lists a project's known agents.
type Directory interface {
	ListAgents(ctx context.Context, project string) ([]db.Agent, error)
}

// Sessions is the subset of the session registry used for claims.
type Sessions interface {
	CheckConflict(project, agent string) *session.Record
	Write(project, agent string, ttl time.Duration) (*session.Record, error)
}

// Request is a register intent.
type Request struct {
	Project string
	// Name is the explicit identity (--as, or --name).
	Name    string
	Resume  bool
	Force   bool
	TTL     time.Duration
	Program string
	Model   string
	Task    string
}

// Result is a completed registration.
type Result struct {
	Project *remote.Project
	Agent   *remote.Agent
	// Raw is the register_agent payload as returned by the server.
	Raw     json.RawMessage
	Session *session.Record

	// Resumed is set when the name was known before registering.
	Resumed bool
	// Candidate is the agent picked by Resume, if any.
	Candidate *db.Agent
}

// Resolver resolves and claims identities.
type Resolver struct {
	Registrar Registrar
	// Directory may be nil, in which case Resume always starts fresh.
	Directory Directory
	Sessions  Sessions
	Now       func() time.Time
	Logger    *slog.Logger
}

// Resolve ensures the project, picks a name, checks for a live conflicting
// claim, registers, and writes the session record.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	if req.Project == "" {
		return nil, errors.NewInvalidRequest("project is required")
	}
	if req.TTL <= 0 {
		return nil, errors.NewInvalidRequest("session ttl must be positive")
	}

	project, err := r.Registrar.EnsureProject(ctx, req.Project)
	if err != nil {
		return nil, err
	}

	res := &Result{Project: project}
	name := strings.TrimSpace(req.Name)

	if name == "" && req.Resume {
		candidate, err := r.resumeCandidate(ctx, req.Project)
		if err != nil {
			return nil, err
		}
		if candidate != nil {
			name = candidate.Name
			res.Candidate = candidate
		}
	}
	res.Resumed = name != ""

	if name != "" && !req.Force {
		if rec := r.Sessions.CheckConflict(req.Project, name); rec != nil {
			remaining := rec.Remaining(r.now())
			return nil, errors.NewSessionConflict(name, rec.PID, remaining, session.FormatExpiresIn(remaining))
		}
	}

	agent, raw, err := r.Registrar.RegisterAgent(ctx, remote.RegisterAgentInput{
		ProjectKey:      req.Project,
		Program:         req.Program,
		Model:           req.Model,
		TaskDescription: req.Task,
		Name:            name,
	})
	if err != nil {
		return nil, err
	}
	if agent.Name == "" {
		return nil, errors.NewRemote("register_agent returned no agent name", nil, nil)
	}
	res.Agent = agent
	res.Raw = raw

	rec, err := r.Sessions.Write(req.Project, agent.Name, req.TTL)
	if err != nil {
		return nil, err
	}
	res.Session = rec
	return res, nil
}

// resumeCandidate returns the most recently active agent that can still
// receive mail, or nil when there is none.
func (r *Resolver) resumeCandidate(ctx context.Context, project string) (*db.Agent, error) {
	if r.Directory == nil {
		return nil, nil
	}
	agents, err := r.Directory.ListAgents(ctx, project)
	if err != nil {
		return nil, err
	}

	live := make([]db.Agent, 0, len(agents))
	for _, a := range agents {
		if a.SoftDeleted() || a.ContactPolicy == "block_all" {
			continue
		}
		live = append(live, a)
	}
	if len(live) == 0 {
		r.logger().Debug("no resumable agents", "project", project)
		return nil, nil
	}

	sort.SliceStable(live, func(i, j int) bool {
		return after(live[i].LastActiveTS, live[j].LastActiveTS)
	})
	return &live[0], nil
}

// after orders nil timestamps last.
func after(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
