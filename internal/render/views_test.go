package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/db"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/identity"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/ops"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/remote"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/session"
)

var viewNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ptime(d time.Duration) *time.Time {
	t := viewNow.Add(d)
	return &t
}

func intp(n int) *int { return &n }

func TestWhois(t *testing.T) {
	p, out, _ := newTestPrinter(false)
	p.Whois(&remote.Agent{
		Name:            "BlueLake",
		Program:         "claude-code",
		Model:           "opus",
		TaskDescription: "refactor auth",
		RecentCommits:   []remote.Commit{{Hexsha: "abcdef1234", Summary: "fix parser"}},
	}, viewNow)

	assert.Equal(t, strings.Join([]string{
		"BlueLake",
		"Program: claude-code opus",
		"Task: refactor auth",
		"Recent commits:",
		"  abcdef1 fix parser",
		"",
	}, "\n"), out.String())
}

func TestRegister(t *testing.T) {
	t.Run("new registration", func(t *testing.T) {
		p, out, _ := newTestPrinter(false)
		req := identity.Request{Task: "refactor auth", TTL: 5 * time.Minute}
		p.Register(req, &identity.Result{Agent: &remote.Agent{Name: "BlueLake"}}, viewNow)

		assert.Equal(t, strings.Join([]string{
			"✓ Registered as BlueLake",
			"  To resume later: agent-mail register --as BlueLake",
			"  Task: refactor auth",
			"  Session TTL: 300s (use 'agent-mail session heartbeat BlueLake' to extend)",
			"",
		}, "\n"), out.String())
	})

	t.Run("resumed candidate", func(t *testing.T) {
		p, out, _ := newTestPrinter(false)
		req := identity.Request{Resume: true, TTL: time.Hour}
		res := &identity.Result{
			Agent:     &remote.Agent{Name: "GreenHill"},
			Resumed:   true,
			Candidate: &db.Agent{Name: "GreenHill", LastActiveTS: ptime(-3 * time.Minute)},
		}
		p.Register(req, res, viewNow)

		assert.Contains(t, out.String(), "Resuming as GreenHill (last active: 3 minutes ago)")
		assert.Contains(t, out.String(), "✓ Resumed as GreenHill")
		assert.NotContains(t, out.String(), "To resume later")
	})

	t.Run("resume without candidates", func(t *testing.T) {
		p, out, _ := newTestPrinter(false)
		p.Register(identity.Request{Resume: true, TTL: time.Hour}, &identity.Result{Agent: &remote.Agent{Name: "RedFox"}}, viewNow)
		assert.Contains(t, out.String(), "No previous agents found, creating new registration")
		assert.Contains(t, out.String(), "✓ Registered as RedFox")
	})
}

func TestSessions(t *testing.T) {
	p, out, _ := newTestPrinter(false)
	p.SessionStatus("BlueLake", &session.Record{Agent: "BlueLake", PID: 42, ExpiresAt: viewNow.Add(10 * time.Minute)}, viewNow)
	p.SessionStatus("RedFox", nil, viewNow)
	assert.Equal(t, "● BlueLake active (PID 42, expires in 10m)\n○ RedFox no active session\n", out.String())

	p, out, _ = newTestPrinter(false)
	p.Sessions(nil, viewNow)
	assert.Equal(t, "No active sessions\n", out.String())

	p, out, _ = newTestPrinter(false)
	p.Sessions([]*session.Record{{Agent: "BlueLake", PID: 42, StartedAt: viewNow, ExpiresAt: viewNow.Add(2 * time.Hour)}}, viewNow)
	assert.Contains(t, out.String(), "Expires In")
	assert.Contains(t, out.String(), "2h")
	assert.Contains(t, out.String(), "2026-03-01T12:00:00")
}

func TestInboxStatus(t *testing.T) {
	t.Run("quiet when nothing unread", func(t *testing.T) {
		p, out, _ := newTestPrinter(false)
		p.InboxStatus(&remote.InboxStatus{Scope: "agent", AgentName: "BlueLake"}, "/repo", "BlueLake", "")
		p.InboxStatus(&remote.InboxStatus{Scope: "project"}, "/repo", "", "")
		assert.Empty(t, out.String())
	})

	t.Run("agent scope", func(t *testing.T) {
		p, out, _ := newTestPrinter(false)
		st := &remote.InboxStatus{Scope: "agent", AgentName: "BlueLake", UnreadCount: 3, NewSinceCount: intp(1)}
		p.InboxStatus(st, "/repo", "BlueLake", "2026-03-01T00:00:00Z")
		assert.Equal(t, strings.Join([]string{
			"",
			"You have 3 unread message(s) in this project.",
			"New since 2026-03-01T00:00:00Z: 1",
			"Check inbox: agent-mail inbox BlueLake --project /repo",
			"",
			"",
		}, "\n"), out.String())
	})

	t.Run("project scope", func(t *testing.T) {
		p, out, _ := newTestPrinter(false)
		p.InboxStatus(&remote.InboxStatus{Scope: "project", RecentMessageCount: 2}, "/repo", "", "")
		assert.Contains(t, out.String(), "There are 2 recent message(s) in this project.")
		assert.Contains(t, out.String(), "agent-mail inbox <your-agent-name> --project /repo")
	})
}

func TestInbox(t *testing.T) {
	p, out, _ := newTestPrinter(false)
	p.Inbox(nil, false)
	assert.Equal(t, "No messages\n", out.String())

	p, out, _ = newTestPrinter(false)
	p.Inbox([]remote.Message{{
		ID: 7, From: "RedFox", Subject: "review", Importance: "high",
		CreatedTS: "2026-03-01T11:00:00.123456+00:00", BodyMD: "Please **review** the diff",
	}}, true)
	assert.Contains(t, out.String(), "Body")
	assert.Contains(t, out.String(), "2026-03-01T11:00:00 ")
	assert.NotContains(t, out.String(), ".123456")
	assert.Contains(t, out.String(), "Please review the diff")
}

func TestContext(t *testing.T) {
	p, out, _ := newTestPrinter(false)
	snap := &ops.ContextSnapshot{
		Agent: ops.AgentSection{
			Name:            "BlueLake",
			TaskDescription: "refactor auth",
			LastActive:      "2026-03-01T11:55:00Z",
			RecentCommits:   []remote.Commit{{Hexsha: "abcdef1234567", Summary: "fix login"}},
		},
		AttentionNeeded: ops.AttentionCounts{UnreadMessages: 2, BlockedTasks: 1},
		Messages: ops.MessageSection{Unread: []ops.UnreadEntry{
			{ID: 1, From: "RedFox", Subject: "urgent fix", Importance: "high", Age: "5m ago"},
			{ID: 2, From: "GreenHill", Subject: "fyi", Importance: "normal", Age: "1h ago"},
		}},
		Files: ops.FileSection{Reserved: []ops.ReservedEntry{{Pattern: "src/**", ExpiresIn: "00:30:00"}}},
		Beads: ops.BeadsSection{
			InProgress: []ops.IssueEntry{{ID: "bd-1", Title: "auth flow", Priority: intp(1)}, {ID: "bd-2", Title: "docs"}},
			Blocked:    []ops.BlockedEntry{{ID: "bd-3", Title: "deploy", BlockedBy: []string{"bd-1", "bd-2"}}, {ID: "bd-4", Title: "cleanup"}},
		},
	}
	p.Context(snap, viewNow)

	got := out.String()
	for _, want := range []string{
		"═══ Context for BlueLake ═══",
		"Task: refactor auth",
		"Last active: 5m ago",
		"⚠ Attention needed: 2 unread message(s), 1 blocked task(s)",
		"  (!) From RedFox: urgent fix (5m ago)",
		"  From GreenHill: fyi (1h ago)",
		"  src/** (expires in 00:30:00)",
		"  [bd-1] auth flow (P1)",
		"  [bd-2] docs (P?)",
		"  [bd-3] deploy (by bd-1, bd-2)",
		"  [bd-4] cleanup (by unknown)",
		"  abcdef1 fix login",
	} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, "pending ack")
}

func TestDelete(t *testing.T) {
	t.Run("dry run", func(t *testing.T) {
		p, out, _ := newTestPrinter(false)
		p.Delete(&ops.DeleteOutput{DryRun: true, Results: []ops.DeleteItem{
			{Agent: "GreenHill", DependencySnapshot: &db.DependencySnapshot{CanDelete: true}},
			{Agent: "BlueLake", DependencySnapshot: &db.DependencySnapshot{UnreadMessages: 2, ActiveReservations: 1, SentMessages: 4}},
		}})
		assert.Equal(t, strings.Join([]string{
			"✓ Agent 'GreenHill' can be safely deleted",
			"⚠ Agent 'BlueLake' has dependencies:",
			"  • 2 unread message(s)",
			"  • 1 active file reservation(s)",
			"  • 4 sent message(s) will be orphaned",
			"",
		}, "\n"), out.String())
	})

	t.Run("deleted and failed", func(t *testing.T) {
		p, out, errOut := newTestPrinter(false)
		p.Delete(&ops.DeleteOutput{
			Results: []ops.DeleteItem{{Agent: "BlueLake", SoftDeleteResult: &db.SoftDeleteResult{
				Deleted: true, ReleasedReservations: 1, RemovedRecipientEntries: 2, OrphanedSentMessages: 3,
			}}},
			Errors: []ops.DeleteError{{Agent: "RedFox", Code: errors.ErrNotFound, Error: "agent not found: RedFox"}},
		})
		assert.Equal(t, strings.Join([]string{
			"✓ Deleted agent 'BlueLake'",
			"  • Released 1 file reservation(s)",
			"  • Removed from 2 message recipient(s)",
			"  • 3 sent message(s) now orphaned",
			"",
		}, "\n"), out.String())
		assert.Equal(t, "✗ Failed to delete 'RedFox': [NOT_FOUND] agent not found: RedFox\n", errOut.String())
	})
}

func TestPurge(t *testing.T) {
	p, out, _ := newTestPrinter(false)
	p.Purge(&ops.PurgeOutput{Message: "No soft-deleted agents to purge", Agents: []string{}})
	assert.Equal(t, "No soft-deleted agents to purge\n", out.String())

	p, out, _ = newTestPrinter(false)
	p.Purge(&ops.PurgeOutput{DryRun: true, PurgedAgents: 2, PurgedMessages: 1, Agents: []string{"Deleted-1", "Deleted-2"}})
	assert.Equal(t, "Would purge:\n  • 2 agent(s): Deleted-1, Deleted-2\n  • 1 orphaned message(s)\n", out.String())

	p, out, _ = newTestPrinter(false)
	p.Purge(&ops.PurgeOutput{PurgedAgents: 1, PurgedMessages: 0, Agents: []string{"Deleted-1"}})
	assert.Equal(t, "✓ Purged 1 agent(s) and 0 message(s)\n  Agents: Deleted-1\n", out.String())
}

func TestReservations(t *testing.T) {
	rows := []db.Reservation{{ID: 3, Agent: "BlueLake", PathPattern: "src/**", Exclusive: true, ExpiresTS: ptime(90 * time.Second)}}

	p, out, _ := newTestPrinter(false)
	p.Reservations(nil, ReservationsActive, "No active reservations", viewNow)
	assert.Equal(t, "No active reservations\n", out.String())

	p, out, _ = newTestPrinter(false)
	p.Reservations(rows, ReservationsActive, "", viewNow)
	assert.Contains(t, out.String(), "Exclusive")
	assert.Contains(t, out.String(), "yes")
	assert.Contains(t, out.String(), "2026-03-01 12:01:30")
	assert.Contains(t, out.String(), "00:01:30")

	p, out, _ = newTestPrinter(false)
	p.Reservations(rows, ReservationsSoon, "", viewNow)
	assert.Contains(t, out.String(), "Expires In")
	assert.NotContains(t, out.String(), "Exclusive")

	p, out, _ = newTestPrinter(false)
	p.Reservations(rows, ReservationsAll, "", viewNow)
	assert.Contains(t, out.String(), "Released")
}

func TestAcksAndDirectory(t *testing.T) {
	acks := []db.PendingAck{{ID: 9, Sender: "RedFox", Subject: "sign off", Importance: "urgent", CreatedTS: ptime(-time.Hour)}}

	p, out, _ := newTestPrinter(false)
	p.AckLines(acks)
	assert.Equal(t, "9 | RedFox | sign off | urgent\n", out.String())

	p, out, _ = newTestPrinter(false)
	p.Acks(acks, "No pending acknowledgements")
	assert.Contains(t, out.String(), "2026-03-01 11:00:00")

	p, out, _ = newTestPrinter(false)
	p.Agents([]db.Agent{{Name: "BlueLake", TaskDescription: "auth", LastActiveTS: ptime(-2 * time.Hour)}, {Name: "RedFox"}}, viewNow)
	assert.Contains(t, out.String(), "2 hours ago")
	assert.Contains(t, out.String(), "never")

	p, out, _ = newTestPrinter(false)
	p.Projects(nil)
	assert.Equal(t, "No projects\n", out.String())
}

func TestSearchResultsAndContacts(t *testing.T) {
	p, out, _ := newTestPrinter(false)
	p.SearchResults(nil)
	p.SearchResults([]remote.Message{{ID: 4, From: "RedFox", Subject: "deploy", CreatedTS: "2026-03-01T10:00:00.5Z"}})
	assert.Equal(t, "No results\n4 | RedFox | deploy | 2026-03-01T10:00:00\n", out.String())

	p, out, _ = newTestPrinter(false)
	assert.NoError(t, p.Contacts([]byte(`[]`)))
	assert.NoError(t, p.Contacts([]byte(`["GreenHill",{"to":"RedFox"}]`)))
	assert.Equal(t, "No contacts\nGreenHill\n{\"to\":\"RedFox\"}\n", out.String())
}

func TestAgentsTruncatesTask(t *testing.T) {
	p, out, _ := newTestPrinter(false)
	long := strings.Repeat("x", 45)
	p.Agents([]db.Agent{{Name: "BlueLake", TaskDescription: long}}, viewNow)
	assert.Contains(t, out.String(), strings.Repeat("x", 40)+"…")
	assert.NotContains(t, out.String(), strings.Repeat("x", 41))
}
