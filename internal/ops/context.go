package ops

import (
	"context"
	"log/slog"
	"time"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/db"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/remote"
)

// Section limits for the resume context.
const (
	contextInboxLimit = 10
	contextAckLimit   = 10
	contextIssueLimit = 5
	contextCommits    = 3
)

// MailSource is the remote side of the resume context.
type MailSource interface {
	Whois(ctx context.Context, project, agent string, commits bool) (*remote.Agent, error)
	FetchInbox(ctx context.Context, q remote.InboxQuery) ([]remote.Message, error)
}

// MirrorSource is the mirror side of the resume context.
type MirrorSource interface {
	AcksPending(ctx context.Context, project, agent string, limit int) ([]db.PendingAck, error)
	ListReservations(ctx context.Context, project string, f db.ReservationFilter) ([]db.Reservation, error)
}

// ContextSnapshot is everything an agent needs to pick up where it left off.
type ContextSnapshot struct {
	Agent           AgentSection    `json:"agent"`
	AttentionNeeded AttentionCounts `json:"attention_needed"`
	Messages        MessageSection  `json:"messages"`
	Files           FileSection     `json:"files"`
	Beads           BeadsSection    `json:"beads"`
}

// AgentSection is the agent's profile.
type AgentSection struct {
	Name            string          `json:"name"`
	LastActive      string          `json:"last_active,omitempty"`
	TaskDescription string          `json:"task_description,omitempty"`
	RecentCommits   []remote.Commit `json:"recent_commits,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// AttentionCounts summarises what needs action.
type AttentionCounts struct {
	UnreadMessages int `json:"unread_messages"`
	PendingAcks    int `json:"pending_acks"`
	BlockedTasks   int `json:"blocked_tasks"`
}

// MessageSection holds unread mail and unacknowledged messages.
type MessageSection struct {
	Unread      []UnreadEntry `json:"unread"`
	PendingAcks []AckEntry    `json:"pending_acks"`
	UnreadError string        `json:"unread_error,omitempty"`
	AcksError   string        `json:"pending_acks_error,omitempty"`
}

// UnreadEntry is one unread message.
type UnreadEntry struct {
	ID         int64  `json:"id"`
	From       string `json:"from"`
	Subject    string `json:"subject"`
	Importance string `json:"importance"`
	Age        string `json:"age"`
}

// AckEntry is one message awaiting acknowledgement.
type AckEntry struct {
	ID         int64  `json:"id"`
	From       string `json:"from"`
	Subject    string `json:"subject"`
	Importance string `json:"importance"`
}

// FileSection lists the agent's active reservations.
type FileSection struct {
	Reserved []ReservedEntry `json:"reserved"`
	Error    string          `json:"error,omitempty"`
}

// ReservedEntry is one active reservation with a countdown.
type ReservedEntry struct {
	Pattern   string     `json:"pattern"`
	Exclusive bool       `json:"exclusive"`
	ExpiresTS *time.Time `json:"expires_ts"`
	ExpiresIn string     `json:"expires_in"`
}

// BeadsSection lists the agent's tracked issues.
type BeadsSection struct {
	InProgress []IssueEntry   `json:"in_progress"`
	Blocked    []BlockedEntry `json:"blocked"`
}

// IssueEntry is an in-progress issue.
type IssueEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Priority *int   `json:"priority"`
}

// BlockedEntry is a blocked issue.
type BlockedEntry struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	BlockedBy []string `json:"blocked_by"`
}

// Aggregator builds a ContextSnapshot from independent sources. Mirror and
// Issues may be nil.
type Aggregator struct {
	Mail   MailSource
	Mirror MirrorSource
	Issues IssueTracker
	Now    func() time.Time
	Logger *slog.Logger
}

// Build collects the snapshot. A failing source only affects its own
// section.
func (a *Aggregator) Build(ctx context.Context, project, agent string) *ContextSnapshot {
	snap := &ContextSnapshot{
		Agent:    AgentSection{Name: agent},
		Messages: MessageSection{Unread: []UnreadEntry{}, PendingAcks: []AckEntry{}},
		Files:    FileSection{Reserved: []ReservedEntry{}},
		Beads:    BeadsSection{InProgress: []IssueEntry{}, Blocked: []BlockedEntry{}},
	}
	now := a.now()

	a.profile(ctx, snap, project, agent)
	a.inbox(ctx, snap, project, agent, now)
	a.acks(ctx, snap, project, agent)
	a.reservations(ctx, snap, project, agent, now)
	blocked := a.beads(ctx, snap, project, agent)

	snap.AttentionNeeded = AttentionCounts{
		UnreadMessages: len(snap.Messages.Unread),
		PendingAcks:    len(snap.Messages.PendingAcks),
		BlockedTasks:   blocked,
	}
	return snap
}

func (a *Aggregator) profile(ctx context.Context, snap *ContextSnapshot, project, agent string) {
	p, err := a.Mail.Whois(ctx, project, agent, true)
	if err != nil {
		a.logger().Debug("context: whois failed", "agent", agent, "error", err)
		snap.Agent.Error = "could not fetch profile"
		return
	}
	if p.Name != "" {
		snap.Agent.Name = p.Name
	}
	snap.Agent.LastActive = p.LastActiveTS
	snap.Agent.TaskDescription = p.TaskDescription
	commits := p.RecentCommits
	if len(commits) > contextCommits {
		commits = commits[:contextCommits]
	}
	snap.Agent.RecentCommits = commits
}

func (a *Aggregator) inbox(ctx context.Context, snap *ContextSnapshot, project, agent string, now time.Time) {
	msgs, err := a.Mail.FetchInbox(ctx, remote.InboxQuery{ProjectKey: project, AgentName: agent, Limit: contextInboxLimit})
	if err != nil {
		a.logger().Debug("context: inbox failed", "agent", agent, "error", err)
		snap.Messages.UnreadError = err.Error()
		return
	}
	for _, m := range msgs {
		snap.Messages.Unread = append(snap.Messages.Unread, UnreadEntry{
			ID:         m.ID,
			From:       m.From,
			Subject:    m.Subject,
			Importance: m.Importance,
			Age:        TimeAgo(m.CreatedTS, now),
		})
	}
}

func (a *Aggregator) acks(ctx context.Context, snap *ContextSnapshot, project, agent string) {
	if a.Mirror == nil {
		snap.Messages.AcksError = "mirror unavailable"
		return
	}
	acks, err := a.Mirror.AcksPending(ctx, project, agent, contextAckLimit)
	if err != nil {
		a.logger().Debug("context: pending acks failed", "agent", agent, "error", err)
		snap.Messages.AcksError = err.Error()
		return
	}
	for _, ack := range acks {
		snap.Messages.PendingAcks = append(snap.Messages.PendingAcks, AckEntry{
			ID:         ack.ID,
			From:       ack.Sender,
			Subject:    ack.Subject,
			Importance: ack.Importance,
		})
	}
}

func (a *Aggregator) reservations(ctx context.Context, snap *ContextSnapshot, project, agent string, now time.Time) {
	if a.Mirror == nil {
		snap.Files.Error = "mirror unavailable"
		return
	}
	rows, err := a.Mirror.ListReservations(ctx, project, db.ReservationFilter{ActiveOnly: true, Agent: agent})
	if err != nil {
		a.logger().Debug("context: reservations failed", "agent", agent, "error", err)
		snap.Files.Error = err.Error()
		return
	}
	for _, r := range rows {
		if r.Agent != agent {
			continue
		}
		snap.Files.Reserved = append(snap.Files.Reserved, ReservedEntry{
			Pattern:   r.PathPattern,
			Exclusive: r.Exclusive,
			ExpiresTS: r.ExpiresTS,
			ExpiresIn: Countdown(r.ExpiresTS, now),
		})
	}
}

// beads fills the issue section and returns the number of blocked issues
// before truncation.
func (a *Aggregator) beads(ctx context.Context, snap *ContextSnapshot, project, agent string) int {
	if a.Issues == nil {
		return 0
	}

	if issues, err := a.Issues.List(ctx, project, agent, "in_progress"); err != nil {
		a.logger().Debug("context: issue tracker failed", "status", "in_progress", "error", err)
	} else {
		for _, i := range limitIssues(issues) {
			snap.Beads.InProgress = append(snap.Beads.InProgress, IssueEntry{ID: i.ID, Title: i.Title, Priority: i.Priority})
		}
	}

	issues, err := a.Issues.List(ctx, project, agent, "blocked")
	if err != nil {
		a.logger().Debug("context: issue tracker failed", "status", "blocked", "error", err)
		return 0
	}
	for _, i := range limitIssues(issues) {
		blockers := i.Blockers()
		if blockers == nil {
			blockers = []string{}
		}
		snap.Beads.Blocked = append(snap.Beads.Blocked, BlockedEntry{ID: i.ID, Title: i.Title, BlockedBy: blockers})
	}
	return len(issues)
}

func limitIssues(issues []Issue) []Issue {
	if len(issues) > contextIssueLimit {
		return issues[:contextIssueLimit]
	}
	return issues
}

func (a *Aggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
