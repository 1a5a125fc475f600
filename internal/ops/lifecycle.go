package ops

import (
	"context"
	"fmt"
	"strings"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/db"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
)

// DeleteInput contains parameters for the SoftDelete operation.
type DeleteInput struct {
	Project string
	Agents  []string
	Force   bool
	DryRun  bool
}

// DeleteItem is the outcome for one agent. A dry run fills the dependency
// snapshot; a real delete fills the cascade result.
type DeleteItem struct {
	Agent string `json:"agent"`
	*db.DependencySnapshot
	*db.SoftDeleteResult
}

// DeleteError records a failed agent without aborting the batch.
type DeleteError struct {
	Agent   string           `json:"agent"`
	Code    errors.ErrorCode `json:"code"`
	Error   string           `json:"error"`
	Details map[string]any   `json:"details,omitempty"`
}

// DeleteOutput contains the result of the SoftDelete operation.
type DeleteOutput struct {
	Results []DeleteItem  `json:"results"`
	Errors  []DeleteError `json:"errors,omitempty"`
	DryRun  bool          `json:"dry_run,omitempty"`
}

// HasErrors reports whether any agent failed.
func (o *DeleteOutput) HasErrors() bool {
	return len(o.Errors) > 0
}

// Dependencies returns the dependency snapshot of one agent.
func Dependencies(ctx context.Context, store *db.Store, project, agent string) (*db.DependencySnapshot, error) {
	if strings.TrimSpace(agent) == "" {
		return nil, errors.NewInvalidRequest("agent name is required")
	}
	return store.Dependencies(ctx, project, agent)
}

// SoftDelete deletes each agent in turn. Without Force an agent with unread
// mail or active reservations fails with DEPENDENCY_CONFLICT.
func SoftDelete(ctx context.Context, store *db.Store, input DeleteInput) *DeleteOutput {
	out := &DeleteOutput{Results: []DeleteItem{}, DryRun: input.DryRun}

	for _, agent := range input.Agents {
		item, err := softDeleteOne(ctx, store, input, agent)
		if err != nil {
			out.Errors = append(out.Errors, deleteError(agent, err))
			continue
		}
		out.Results = append(out.Results, *item)
	}
	return out
}

func softDeleteOne(ctx context.Context, store *db.Store, input DeleteInput, agent string) (*DeleteItem, error) {
	deps, err := Dependencies(ctx, store, input.Project, agent)
	if err != nil {
		return nil, err
	}
	if input.DryRun {
		return &DeleteItem{Agent: agent, DependencySnapshot: deps}, nil
	}
	if !input.Force && !deps.CanDelete {
		return nil, errors.NewDependencyConflict(agent, deps.UnreadMessages, deps.ActiveReservations, deps.SentMessages)
	}

	result, err := store.SoftDeleteAgent(ctx, input.Project, agent)
	if err != nil {
		return nil, err
	}
	return &DeleteItem{Agent: agent, SoftDeleteResult: result}, nil
}

func deleteError(agent string, err error) DeleteError {
	amErr, ok := errors.As(err)
	if !ok {
		amErr = errors.NewInternal(err)
	}
	return DeleteError{
		Agent:   agent,
		Code:    amErr.Code,
		Error:   amErr.Message,
		Details: amErr.Details,
	}
}

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	Project string
	DryRun  bool
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	PurgedAgents   int      `json:"purged_agents"`
	PurgedMessages int      `json:"purged_messages"`
	Agents         []string `json:"agents"`
	DryRun         bool     `json:"dry_run"`
	Message        string   `json:"message"`
}

// Purge permanently removes soft-deleted agents and the messages that no
// live agent still receives.
func Purge(ctx context.Context, store *db.Store, input PurgeInput) (*PurgeOutput, error) {
	result, err := store.PurgeDeleted(ctx, input.Project, input.DryRun)
	if err != nil {
		return nil, err
	}

	agents := result.Agents
	if agents == nil {
		agents = []string{}
	}
	return &PurgeOutput{
		PurgedAgents:   result.PurgedAgents,
		PurgedMessages: result.PurgedMessages,
		Agents:         agents,
		DryRun:         input.DryRun,
		Message:        formatPurgeMessage(result, input.DryRun),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(result *db.PurgeResult, dryRun bool) string {
	if result.PurgedAgents == 0 {
		return "No soft-deleted agents to purge"
	}
	verb := "Purged"
	if dryRun {
		verb = "Would purge"
	}
	return fmt.Sprintf("%s %d %s and %d %s", verb,
		result.PurgedAgents, plural(result.PurgedAgents, "agent"),
		result.PurgedMessages, plural(result.PurgedMessages, "message"))
}
