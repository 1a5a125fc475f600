package render

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/db"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/identity"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/ops"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/remote"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/session"
)

const (
	bodyPreviewRunes = 60
	commitSummary    = 60
	contextUnread    = 5
	taskColumn       = 40
)

// Stamp formats a mirror timestamp for tables.
func Stamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// Relative renders t like "3 minutes ago", or "never" when unset.
func Relative(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.RelTime(*t, now, "ago", "from now")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Register prints the outcome of a registration.
func (p *Printer) Register(req identity.Request, res *identity.Result, now time.Time) {
	name := res.Agent.Name
	switch {
	case res.Candidate != nil:
		p.Line("%s %s %s", p.Dim("Resuming as"), name, p.Dim("(last active: "+Relative(res.Candidate.LastActiveTS, now)+")"))
	case req.Resume && req.Name == "":
		p.Line(p.Alert("No previous agents found, creating new registration"))
	}

	if res.Resumed {
		p.Success("Resumed as %s", p.Bold(name))
	} else {
		p.Success("Registered as %s", p.Bold(name))
		p.Line(p.Dim("  To resume later: agent-mail register --as " + name))
	}
	if req.Task != "" {
		p.Line(p.Dim("  Task: " + req.Task))
	}
	p.Line(p.Dim(fmt.Sprintf("  Session TTL: %ds (use 'agent-mail session heartbeat %s' to extend)", int(req.TTL.Seconds()), name)))
}

// Whois prints an agent profile.
func (p *Printer) Whois(a *remote.Agent, now time.Time) {
	p.Line(p.Bold(a.Name))
	if a.Program != "" || a.Model != "" {
		p.Line("%s %s", p.Dim("Program:"), strings.TrimSpace(a.Program+" "+a.Model))
	}
	if a.TaskDescription != "" {
		p.Line("%s %s", p.Dim("Task:"), a.TaskDescription)
	}
	if a.LastActiveTS != "" {
		p.Line("%s %s", p.Dim("Last active:"), ops.TimeAgo(a.LastActiveTS, now))
	}
	if len(a.RecentCommits) > 0 {
		p.Line(p.Dim("Recent commits:"))
		for _, c := range a.RecentCommits {
			p.Line("  %s %s", p.Dim(truncate(c.Hexsha, 7)), truncate(c.Summary, commitSummary))
		}
	}
}

// SessionStatus prints one agent's session state.
func (p *Printer) SessionStatus(agent string, rec *session.Record, now time.Time) {
	if rec == nil {
		p.Line("%s %s no active session", p.Dim("○"), agent)
		return
	}
	p.Line("%s %s active (PID %d, expires in %s)", p.ok.Render("●"), agent, rec.PID, session.FormatExpiresIn(rec.Remaining(now)))
}

// Sessions prints every live session of a project.
func (p *Printer) Sessions(records []*session.Record, now time.Time) {
	if len(records) == 0 {
		p.Line(p.Dim("No active sessions"))
		return
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.Agent,
			strconv.Itoa(r.PID),
			session.FormatExpiresIn(r.Remaining(now)),
			r.StartedAt.UTC().Format("2006-01-02T15:04:05"),
		})
	}
	p.Table([]string{"Agent", "PID", "Expires In", "Started"}, rows)
}

// InboxStatus prints the hook-friendly unread summary. It prints nothing
// when there is nothing to report.
func (p *Printer) InboxStatus(st *remote.InboxStatus, project, agent, since string) {
	if st.Scope == "agent" {
		if st.UnreadCount <= 0 {
			return
		}
		name := st.AgentName
		if name == "" {
			name = agent
		}
		p.Blank()
		p.Line("You have %s unread message(s) in this project.", p.Bold(strconv.Itoa(st.UnreadCount)))
		if since != "" && st.NewSinceCount != nil {
			p.Line("%s %d", p.Dim("New since "+since+":"), *st.NewSinceCount)
		}
		p.Line("%s agent-mail inbox %s --project %s", p.Dim("Check inbox:"), name, project)
		p.Blank()
		return
	}

	if st.RecentMessageCount <= 0 {
		return
	}
	p.Blank()
	p.Line("There are %s recent message(s) in this project.", p.Bold(strconv.Itoa(st.RecentMessageCount)))
	p.Line("%s agent-mail inbox <your-agent-name> --project %s", p.Dim("Check your inbox:"), project)
	p.Blank()
}

// Inbox prints a message table. With bodies, a plain-text preview of each
// body is added.
func (p *Printer) Inbox(msgs []remote.Message, bodies bool) {
	if len(msgs) == 0 {
		p.Line(p.Dim("No messages"))
		return
	}
	headers := []string{"ID", "From", "Subject", "Importance", "Date"}
	if bodies {
		headers = append(headers, "Body")
	}
	rows := make([][]string, 0, len(msgs))
	for _, m := range msgs {
		row := []string{strconv.FormatInt(m.ID, 10), m.From, m.Subject, m.Importance, truncate(m.CreatedTS, 19)}
		if bodies {
			row = append(row, Preview(m.BodyMD, bodyPreviewRunes))
		}
		rows = append(rows, row)
	}
	p.Table(headers, rows)
}

// SearchResults prints search hits one per line.
func (p *Printer) SearchResults(msgs []remote.Message) {
	if len(msgs) == 0 {
		p.Line(p.Dim("No results"))
		return
	}
	for _, m := range msgs {
		p.Line("%d | %s | %s | %s", m.ID, m.From, m.Subject, p.Dim(truncate(m.CreatedTS, 19)))
	}
}

// Contacts prints each contact of a list_contacts payload on its own line.
func (p *Printer) Contacts(raw json.RawMessage) error {
	var contacts []json.RawMessage
	if err := json.Unmarshal(raw, &contacts); err != nil {
		return p.Raw(raw)
	}
	if len(contacts) == 0 {
		p.Line(p.Dim("No contacts"))
		return nil
	}
	for _, c := range contacts {
		var v any
		if err := json.Unmarshal(c, &v); err == nil {
			if s, ok := v.(string); ok {
				p.Line(s)
				continue
			}
		}
		p.Line(string(c))
	}
	return nil
}

// Context prints the resume context.
func (p *Printer) Context(snap *ops.ContextSnapshot, now time.Time) {
	a := snap.Agent
	p.Blank()
	p.Line(p.Header("═══ Context for " + a.Name + " ═══"))
	if a.Error != "" {
		p.Line(p.Dim("Profile: " + a.Error))
	}
	if a.TaskDescription != "" {
		p.Line("%s %s", p.Dim("Task:"), a.TaskDescription)
	}
	if a.LastActive != "" {
		p.Line("%s %s", p.Dim("Last active:"), ops.TimeAgo(a.LastActive, now))
	}

	attn := snap.AttentionNeeded
	var items []string
	if attn.UnreadMessages > 0 {
		items = append(items, fmt.Sprintf("%d unread message(s)", attn.UnreadMessages))
	}
	if attn.PendingAcks > 0 {
		items = append(items, fmt.Sprintf("%d pending ack(s)", attn.PendingAcks))
	}
	if attn.BlockedTasks > 0 {
		items = append(items, fmt.Sprintf("%d blocked task(s)", attn.BlockedTasks))
	}
	if len(items) > 0 {
		p.Blank()
		p.Line("%s %s", p.Alert(p.Bold("⚠ Attention needed:")), strings.Join(items, ", "))
	}

	if unread := snap.Messages.Unread; len(unread) > 0 {
		p.Blank()
		p.Line(p.Bold("Unread Messages"))
		if len(unread) > contextUnread {
			unread = unread[:contextUnread]
		}
		for _, m := range unread {
			mark := ""
			if m.Importance == "high" || m.Importance == "urgent" {
				mark = p.Urgent("(!)") + " "
			}
			p.Line("  %sFrom %s: %s %s", mark, m.From, m.Subject, p.Dim("("+m.Age+")"))
		}
	}

	if reserved := snap.Files.Reserved; len(reserved) > 0 {
		p.Blank()
		p.Line(p.Bold("Reserved Files"))
		for _, r := range reserved {
			p.Line("  %s %s", r.Pattern, p.Dim("(expires in "+r.ExpiresIn+")"))
		}
	}

	if beads := snap.Beads.InProgress; len(beads) > 0 {
		p.Blank()
		p.Line(p.Bold("Beads: In Progress"))
		for _, b := range beads {
			priority := "?"
			if b.Priority != nil {
				priority = strconv.Itoa(*b.Priority)
			}
			p.Line("  [%s] %s %s", b.ID, b.Title, p.Dim("(P"+priority+")"))
		}
	}

	if blocked := snap.Beads.Blocked; len(blocked) > 0 {
		p.Blank()
		p.Line(p.Urgent(p.Bold("Beads: Blocked")))
		for _, b := range blocked {
			by := "unknown"
			if len(b.BlockedBy) > 0 {
				by = strings.Join(b.BlockedBy, ", ")
			}
			p.Line("  [%s] %s %s", b.ID, b.Title, p.Dim("(by "+by+")"))
		}
	}

	if len(a.RecentCommits) > 0 {
		p.Blank()
		p.Line(p.Bold("Recent Commits"))
		for _, c := range a.RecentCommits {
			p.Line("  %s %s", p.Dim(truncate(c.Hexsha, 7)), truncate(c.Summary, commitSummary))
		}
	}
	p.Blank()
}

// Delete prints a batch delete. Failures go to Err.
func (p *Printer) Delete(out *ops.DeleteOutput) {
	for _, item := range out.Results {
		if deps := item.DependencySnapshot; deps != nil {
			if deps.CanDelete {
				p.Success("Agent '%s' can be safely deleted", item.Agent)
			} else {
				p.Warning("Agent '%s' has dependencies:", item.Agent)
				if deps.UnreadMessages > 0 {
					p.Line("  • %d unread message(s)", deps.UnreadMessages)
				}
				if deps.ActiveReservations > 0 {
					p.Line("  • %d active file reservation(s)", deps.ActiveReservations)
				}
			}
			if deps.SentMessages > 0 {
				p.Line(p.Dim(fmt.Sprintf("  • %d sent message(s) will be orphaned", deps.SentMessages)))
			}
			continue
		}

		res := item.SoftDeleteResult
		if res == nil {
			continue
		}
		p.Success("Deleted agent '%s'", item.Agent)
		if res.ReleasedReservations > 0 {
			p.Line("  • Released %d file reservation(s)", res.ReleasedReservations)
		}
		if res.RemovedRecipientEntries > 0 {
			p.Line("  • Removed from %d message recipient(s)", res.RemovedRecipientEntries)
		}
		if res.RemovedLinks > 0 {
			p.Line("  • Removed %d contact link(s)", res.RemovedLinks)
		}
		if res.OrphanedSentMessages > 0 {
			p.Line(p.Dim(fmt.Sprintf("  • %d sent message(s) now orphaned", res.OrphanedSentMessages)))
		}
	}
	for _, e := range out.Errors {
		p.Failure("Failed to delete '%s': [%s] %s", e.Agent, e.Code, e.Error)
	}
}

// Purge prints a purge result.
func (p *Printer) Purge(out *ops.PurgeOutput) {
	if out.PurgedAgents == 0 {
		p.Line(p.Dim(out.Message))
		return
	}
	if out.DryRun {
		p.Line(p.Alert("Would purge:"))
		p.Line("  • %d agent(s): %s", out.PurgedAgents, strings.Join(out.Agents, ", "))
		p.Line("  • %d orphaned message(s)", out.PurgedMessages)
		return
	}
	p.Success("Purged %d agent(s) and %d message(s)", out.PurgedAgents, out.PurgedMessages)
	if len(out.Agents) > 0 {
		p.Line(p.Dim("  Agents: " + strings.Join(out.Agents, ", ")))
	}
}

// ReservationView selects the reservation table layout.
type ReservationView int

const (
	ReservationsActive ReservationView = iota
	ReservationsSoon
	ReservationsAll
)

// Reservations prints a reservation table. empty is printed when there are
// no rows.
func (p *Printer) Reservations(rows []db.Reservation, view ReservationView, empty string, now time.Time) {
	if len(rows) == 0 {
		p.Line(p.Dim(empty))
		return
	}

	var headers []string
	switch view {
	case ReservationsSoon:
		headers = []string{"ID", "Agent", "Pattern", "Expires In"}
	case ReservationsAll:
		headers = []string{"ID", "Agent", "Pattern", "Exclusive", "Expires", "Released"}
	default:
		headers = []string{"ID", "Agent", "Pattern", "Exclusive", "Expires", "In"}
	}

	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		id := strconv.FormatInt(r.ID, 10)
		switch view {
		case ReservationsSoon:
			table = append(table, []string{id, r.Agent, r.PathPattern, ops.Countdown(r.ExpiresTS, now)})
		case ReservationsAll:
			table = append(table, []string{id, r.Agent, r.PathPattern, yesNo(r.Exclusive), Stamp(r.ExpiresTS), Stamp(r.ReleasedTS)})
		default:
			table = append(table, []string{id, r.Agent, r.PathPattern, yesNo(r.Exclusive), Stamp(r.ExpiresTS), ops.Countdown(r.ExpiresTS, now)})
		}
	}
	p.Table(headers, table)
}

// Acks prints pending acknowledgements as a table.
func (p *Printer) Acks(rows []db.PendingAck, empty string) {
	if len(rows) == 0 {
		p.Line(p.Dim(empty))
		return
	}
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, []string{strconv.FormatInt(r.ID, 10), r.Sender, r.Subject, r.Importance, Stamp(r.CreatedTS)})
	}
	p.Table([]string{"ID", "From", "Subject", "Importance", "Date"}, table)
}

// AckLines prints pending acknowledgements one per line.
func (p *Printer) AckLines(rows []db.PendingAck) {
	if len(rows) == 0 {
		p.Line(p.Dim("No pending acknowledgements"))
		return
	}
	for _, r := range rows {
		p.Line("%d | %s | %s | %s", r.ID, r.Sender, r.Subject, r.Importance)
	}
}

// Agents prints a project's agents.
func (p *Printer) Agents(agents []db.Agent, now time.Time) {
	if len(agents) == 0 {
		p.Line(p.Dim("No agents"))
		return
	}
	table := make([][]string, 0, len(agents))
	for _, a := range agents {
		task := a.TaskDescription
		if utf8.RuneCountInString(task) > taskColumn {
			task = truncate(task, taskColumn) + "…"
		}
		table = append(table, []string{a.Name, task, Relative(a.LastActiveTS, now)})
	}
	p.Table([]string{"Name", "Task", "Last Active"}, table)
}

// Projects prints known projects.
func (p *Printer) Projects(projects []db.Project) {
	if len(projects) == 0 {
		p.Line(p.Dim("No projects"))
		return
	}
	table := make([][]string, 0, len(projects))
	for _, pr := range projects {
		table = append(table, []string{strconv.FormatInt(pr.ID, 10), pr.Slug, pr.HumanKey, Stamp(pr.CreatedAt)})
	}
	p.Table([]string{"ID", "Slug", "Human Key", "Created"}, table)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
