package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
)

// DeletedPrefix marks a soft-deleted agent name.
const DeletedPrefix = "Deleted-"

// Project is a row of the projects table.
type Project struct {
	ID        int64      `json:"id"`
	Slug      string     `json:"slug"`
	HumanKey  string     `json:"human_key"`
	CreatedAt *time.Time `json:"created_at"`
}

// Agent is a row of the agents table.
type Agent struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Program         string     `json:"program"`
	Model           string     `json:"model"`
	TaskDescription string     `json:"task_description"`
	InceptionTS     *time.Time `json:"inception_ts,omitempty"`
	LastActiveTS    *time.Time `json:"last_active_ts"`
	ContactPolicy   string     `json:"contact_policy,omitempty"`
}

// SoftDeleted reports whether the agent has been renamed by a soft delete.
func (a *Agent) SoftDeleted() bool {
	return len(a.Name) >= len(DeletedPrefix) && a.Name[:len(DeletedPrefix)] == DeletedPrefix
}

// Reservation is a file reservation joined with its holder's name.
type Reservation struct {
	ID          int64      `json:"id"`
	Agent       string     `json:"agent"`
	PathPattern string     `json:"path_pattern"`
	Exclusive   bool       `json:"exclusive"`
	Reason      string     `json:"reason"`
	CreatedTS   *time.Time `json:"created_ts"`
	ExpiresTS   *time.Time `json:"expires_ts"`
	ReleasedTS  *time.Time `json:"released_ts"`
}

// PendingAck is an ack-required message the recipient has not acknowledged.
type PendingAck struct {
	ID         int64      `json:"id"`
	Sender     string     `json:"sender"`
	Subject    string     `json:"subject"`
	Importance string     `json:"importance"`
	ThreadID   string     `json:"thread_id"`
	CreatedTS  *time.Time `json:"created_ts"`
}

// ReservationFilter narrows ListReservations.
type ReservationFilter struct {
	// IncludeReleased also returns released rows. Ignored when ActiveOnly is set.
	IncludeReleased bool
	// ActiveOnly keeps unreleased rows that have not yet expired.
	ActiveOnly bool
	// ExpiringWithin, when positive, keeps active rows expiring within the window.
	ExpiringWithin time.Duration
	// Agent restricts to one holder.
	Agent string
	// Limit <= 0 means no limit.
	Limit int
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// projectID resolves a human key or slug. ok is false when no project matches.
func (s *Store) projectID(ctx context.Context, q querier, key string) (int64, bool, error) {
	if id, ok := s.projects.Get(key); ok {
		return id, true, nil
	}

	var id int64
	err := s.queryRow(ctx, q,
		"SELECT id FROM projects WHERE human_key = ? OR slug = ? LIMIT 1", key, key,
	).Scan(&id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, errors.NewInternal(err)
	}

	s.projects.Add(key, id)
	return id, true, nil
}

// agentID resolves an agent name within a project.
func (s *Store) agentID(ctx context.Context, q querier, projectID int64, name string) (int64, bool, error) {
	var id int64
	err := s.queryRow(ctx, q,
		"SELECT id FROM agents WHERE project_id = ? AND name = ? LIMIT 1", projectID, name,
	).Scan(&id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, errors.NewInternal(err)
	}
	return id, true, nil
}

// resolveAgent returns NOT_FOUND for a missing project or agent.
func (s *Store) resolveAgent(ctx context.Context, q querier, project, agent string) (int64, int64, error) {
	pid, ok, err := s.projectID(ctx, q, project)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, errors.NewNotFound("project", project)
	}
	aid, ok, err := s.agentID(ctx, q, pid, agent)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, errors.NewNotFound("agent", agent)
	}
	return pid, aid, nil
}

// ListProjects returns projects, newest first.
func (s *Store) ListProjects(ctx context.Context, limit int) ([]Project, error) {
	rows, err := s.query(ctx, s.db,
		"SELECT id, slug, human_key, created_at FROM projects ORDER BY created_at DESC LIMIT ?",
		sqlLimit(limit))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		var p Project
		var slug, humanKey, createdAt sql.NullString
		if err := rows.Scan(&p.ID, &slug, &humanKey, &createdAt); err != nil {
			return nil, errors.NewInternal(err)
		}
		p.Slug = stringFromNull(slug)
		p.HumanKey = stringFromNull(humanKey)
		p.CreatedAt = nullTime(createdAt)
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return projects, nil
}

// ListReservations returns a project's reservations ordered by expiry.
// An unknown project yields an empty list.
func (s *Store) ListReservations(ctx context.Context, project string, f ReservationFilter) ([]Reservation, error) {
	pid, ok, err := s.projectID(ctx, s.db, project)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Reservation{}, nil
	}

	now := s.now()
	query := `
		SELECT fr.id, a.name, fr.path_pattern, fr.exclusive, fr.reason,
			fr.created_ts, fr.expires_ts, fr.released_ts
		FROM file_reservations fr
		JOIN agents a ON fr.agent_id = a.id
		WHERE fr.project_id = ?`
	args := []any{pid}

	switch {
	case f.ActiveOnly || f.ExpiringWithin > 0:
		query += ` AND fr.released_ts IS NULL
			AND (fr.expires_ts IS NULL OR datetime(fr.expires_ts) > datetime(?))`
		args = append(args, formatTS(now))
	case !f.IncludeReleased:
		query += " AND fr.released_ts IS NULL"
	}

	if f.ExpiringWithin > 0 {
		query += " AND fr.expires_ts IS NOT NULL AND datetime(fr.expires_ts) <= datetime(?)"
		args = append(args, formatTS(now.Add(f.ExpiringWithin)))
	}

	if f.Agent != "" {
		query += " AND a.name = ?"
		args = append(args, f.Agent)
	}

	query += " ORDER BY fr.expires_ts ASC, fr.id ASC LIMIT ?"
	args = append(args, sqlLimit(f.Limit))

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	result := []Reservation{}
	for rows.Next() {
		var r Reservation
		var reason, created, expires, released sql.NullString
		if err := rows.Scan(&r.ID, &r.Agent, &r.PathPattern, &r.Exclusive, &reason,
			&created, &expires, &released); err != nil {
			return nil, errors.NewInternal(err)
		}
		r.Reason = stringFromNull(reason)
		r.CreatedTS = nullTime(created)
		r.ExpiresTS = nullTime(expires)
		r.ReleasedTS = nullTime(released)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return result, nil
}

const acksQuery = `
	SELECT m.id, COALESCE(sender.name, ''), COALESCE(m.subject, ''),
		COALESCE(m.importance, ''), COALESCE(m.thread_id, ''), m.created_ts
	FROM messages m
	JOIN message_recipients mr ON m.id = mr.message_id
	LEFT JOIN agents sender ON m.sender_id = sender.id
	WHERE m.project_id = ?
		AND mr.agent_id = ?
		AND m.ack_required = 1
		AND mr.ack_ts IS NULL`

// AcksPending lists unacknowledged ack-required messages, newest first.
// An unknown project yields an empty list; an unknown agent is NOT_FOUND.
func (s *Store) AcksPending(ctx context.Context, project, agent string, limit int) ([]PendingAck, error) {
	return s.acks(ctx, project, agent,
		" ORDER BY m.created_ts DESC, m.id DESC LIMIT ?", sqlLimit(limit))
}

// AcksOverdue lists pending acks created at least hours ago, oldest first.
func (s *Store) AcksOverdue(ctx context.Context, project, agent string, hours, limit int) ([]PendingAck, error) {
	threshold := formatTS(s.now().Add(-time.Duration(hours) * time.Hour))
	return s.acks(ctx, project, agent,
		" AND datetime(m.created_ts) <= datetime(?) ORDER BY m.created_ts ASC, m.id ASC LIMIT ?",
		threshold, sqlLimit(limit))
}

func (s *Store) acks(ctx context.Context, project, agent, tail string, tailArgs ...any) ([]PendingAck, error) {
	pid, ok, err := s.projectID(ctx, s.db, project)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []PendingAck{}, nil
	}
	aid, ok, err := s.agentID(ctx, s.db, pid, agent)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFound("agent", agent)
	}

	args := append([]any{pid, aid}, tailArgs...)
	rows, err := s.query(ctx, s.db, acksQuery+tail, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	result := []PendingAck{}
	for rows.Next() {
		var a PendingAck
		var created sql.NullString
		if err := rows.Scan(&a.ID, &a.Sender, &a.Subject, &a.Importance, &a.ThreadID, &created); err != nil {
			return nil, errors.NewInternal(err)
		}
		a.CreatedTS = nullTime(created)
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return result, nil
}

const agentColumns = `id, name, COALESCE(program, ''), COALESCE(model, ''),
	COALESCE(task_description, ''), inception_ts, last_active_ts, COALESCE(contact_policy, '')`

// ListAgents returns a project's agents, most recently active first.
// Soft-deleted agents are included; callers filter with Agent.SoftDeleted.
func (s *Store) ListAgents(ctx context.Context, project string) ([]Agent, error) {
	pid, ok, err := s.projectID(ctx, s.db, project)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Agent{}, nil
	}

	rows, err := s.query(ctx, s.db,
		"SELECT "+agentColumns+" FROM agents WHERE project_id = ? ORDER BY last_active_ts DESC, id DESC", pid)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		agents = append(agents, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return agents, nil
}

// GetAgent returns one agent. NOT_FOUND when the project or agent is absent.
func (s *Store) GetAgent(ctx context.Context, project, name string) (*Agent, error) {
	pid, ok, err := s.projectID(ctx, s.db, project)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFound("project", project)
	}

	row := s.queryRow(ctx, s.db,
		"SELECT "+agentColumns+" FROM agents WHERE project_id = ? AND name = ?", pid, name)
	a, err := scanAgent(row)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFound("agent", name)
		}
		return nil, errors.NewInternal(err)
	}
	return a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAgent(row scanner) (*Agent, error) {
	var a Agent
	var inception, lastActive sql.NullString
	if err := row.Scan(&a.ID, &a.Name, &a.Program, &a.Model, &a.TaskDescription,
		&inception, &lastActive, &a.ContactPolicy); err != nil {
		return nil, err
	}
	a.InceptionTS = nullTime(inception)
	a.LastActiveTS = nullTime(lastActive)
	return &a, nil
}
