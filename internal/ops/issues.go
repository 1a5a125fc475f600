package ops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// DefaultIssueTimeout bounds one issue-tracker invocation.
const DefaultIssueTimeout = 10 * time.Second

// Issue is one entry of `bd list --json`.
type Issue struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Status       string            `json:"status"`
	Priority     *int              `json:"priority"`
	BlockedBy    []string          `json:"blocked_by"`
	Dependencies []IssueDependency `json:"dependencies"`
}

// IssueDependency is an edge in the issue graph.
type IssueDependency struct {
	IssueID     string `json:"issue_id"`
	DependsOnID string `json:"depends_on_id"`
	Type        string `json:"type"`
}

// Blockers returns the ids blocking the issue. An explicit blocked_by list
// wins over "blocks" dependency edges.
func (i Issue) Blockers() []string {
	if len(i.BlockedBy) > 0 {
		return i.BlockedBy
	}
	var ids []string
	for _, d := range i.Dependencies {
		if d.Type == "blocks" && (d.IssueID == "" || d.IssueID == i.ID) {
			ids = append(ids, d.DependsOnID)
		}
	}
	return ids
}

// IssueTracker lists issues assigned to an agent in a given status.
type IssueTracker interface {
	List(ctx context.Context, dir, assignee, status string) ([]Issue, error)
}

// BeadsTracker runs the beads CLI in the project directory.
type BeadsTracker struct {
	// Binary defaults to "bd" on PATH.
	Binary  string
	Timeout time.Duration
}

// List runs `bd list --assignee <a> --status <s> --json`.
func (b BeadsTracker) List(ctx context.Context, dir, assignee, status string) ([]Issue, error) {
	binary := b.Binary
	if binary == "" {
		binary = "bd"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("issue tracker unavailable: %w", err)
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultIssueTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "list", "--assignee", assignee, "--status", status, "--json")
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s list timed out: %w", binary, ctx.Err())
		}
		return nil, fmt.Errorf("%s list: %w", binary, err)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return []Issue{}, nil
	}
	var issues []Issue
	if err := json.Unmarshal(out, &issues); err != nil {
		return nil, fmt.Errorf("decode %s output: %w", binary, err)
	}
	return issues, nil
}
