package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
)

// DependencySnapshot counts the rows that tie an agent to the rest of the mailbox.
type DependencySnapshot struct {
	AgentID            int64 `json:"agent_id"`
	UnreadMessages     int   `json:"unread_messages"`
	ActiveReservations int   `json:"active_reservations"`
	SentMessages       int   `json:"sent_messages"`
	CanDelete          bool  `json:"can_delete"`
}

// SoftDeleteResult reports what the cascade touched for one agent.
type SoftDeleteResult struct {
	Agent                   string `json:"agent"`
	NewName                 string `json:"new_name"`
	Deleted                 bool   `json:"deleted"`
	ReleasedReservations    int    `json:"released_reservations"`
	RemovedRecipientEntries int    `json:"removed_recipient_entries"`
	RemovedLinks            int    `json:"removed_links"`
	OrphanedSentMessages    int    `json:"orphaned_sent_messages"`
}

// PurgeResult reports a purge of soft-deleted agents.
type PurgeResult struct {
	Agents         []string `json:"agents"`
	PurgedAgents   int      `json:"purged_agents"`
	PurgedMessages int      `json:"purged_messages"`
}

// Dependencies returns the agent's dependency counts.
// NOT_FOUND when the project or agent does not exist.
func (s *Store) Dependencies(ctx context.Context, project, agent string) (*DependencySnapshot, error) {
	_, aid, err := s.resolveAgent(ctx, s.db, project, agent)
	if err != nil {
		return nil, err
	}
	return s.dependencies(ctx, s.db, aid)
}

func (s *Store) dependencies(ctx context.Context, q querier, agentID int64) (*DependencySnapshot, error) {
	snap := &DependencySnapshot{AgentID: agentID}

	err := s.queryRow(ctx, q, `
		SELECT COUNT(*) FROM message_recipients mr
		JOIN messages m ON mr.message_id = m.id
		WHERE mr.agent_id = ? AND mr.read_ts IS NULL`, agentID,
	).Scan(&snap.UnreadMessages)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	err = s.queryRow(ctx, q, `
		SELECT COUNT(*) FROM file_reservations
		WHERE agent_id = ? AND released_ts IS NULL
			AND (expires_ts IS NULL OR datetime(expires_ts) > datetime(?))`,
		agentID, formatTS(s.now()),
	).Scan(&snap.ActiveReservations)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	err = s.queryRow(ctx, q,
		"SELECT COUNT(*) FROM messages WHERE sender_id = ?", agentID,
	).Scan(&snap.SentMessages)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	snap.CanDelete = snap.UnreadMessages == 0 && snap.ActiveReservations == 0
	return snap, nil
}

// ReleaseReservations marks the agent's unreleased reservations released now.
// Running it twice releases nothing the second time.
func (s *Store) ReleaseReservations(ctx context.Context, agentID int64) (int, error) {
	return s.step(ctx, func(tx *sql.Tx) (int, error) { return s.releaseReservations(ctx, tx, agentID) })
}

// RemoveRecipientLinks deletes the agent's message_recipients rows.
func (s *Store) RemoveRecipientLinks(ctx context.Context, agentID int64) (int, error) {
	return s.step(ctx, func(tx *sql.Tx) (int, error) { return s.removeRecipientLinks(ctx, tx, agentID) })
}

// RemoveContactLinks deletes agent_links rows on either side of the agent.
func (s *Store) RemoveContactLinks(ctx context.Context, agentID int64) (int, error) {
	return s.step(ctx, func(tx *sql.Tx) (int, error) { return s.removeContactLinks(ctx, tx, agentID) })
}

// MarkDeleted renames the agent to Deleted-<id> and blocks all contact.
func (s *Store) MarkDeleted(ctx context.Context, agentID int64) (string, error) {
	var name string
	err := s.run(ctx, func(tx *sql.Tx) error {
		var err error
		name, err = s.markDeleted(ctx, tx, agentID)
		return err
	})
	return name, err
}

// SoftDeleteAgent runs the whole cascade for one agent in a single
// transaction. The dependency check is the caller's concern.
func (s *Store) SoftDeleteAgent(ctx context.Context, project, agent string) (*SoftDeleteResult, error) {
	if err := s.requireWritable(); err != nil {
		return nil, err
	}

	var result *SoftDeleteResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, aid, err := s.resolveAgent(ctx, tx, project, agent)
		if err != nil {
			return err
		}

		r := &SoftDeleteResult{Agent: agent}
		if err := s.queryRow(ctx, tx,
			"SELECT COUNT(*) FROM messages WHERE sender_id = ?", aid,
		).Scan(&r.OrphanedSentMessages); err != nil {
			return err
		}
		if r.ReleasedReservations, err = s.releaseReservations(ctx, tx, aid); err != nil {
			return err
		}
		if r.RemovedRecipientEntries, err = s.removeRecipientLinks(ctx, tx, aid); err != nil {
			return err
		}
		if r.RemovedLinks, err = s.removeContactLinks(ctx, tx, aid); err != nil {
			return err
		}
		if r.NewName, err = s.markDeleted(ctx, tx, aid); err != nil {
			return err
		}
		r.Deleted = true
		result = r
		return nil
	})
	if err != nil {
		return nil, wrapDBError(err)
	}
	return result, nil
}

// SoftDeletedAgents lists the project's agents renamed by a soft delete.
func (s *Store) SoftDeletedAgents(ctx context.Context, project string) ([]Agent, error) {
	agents, err := s.ListAgents(ctx, project)
	if err != nil {
		return nil, err
	}
	deleted := []Agent{}
	for _, a := range agents {
		if a.SoftDeleted() {
			deleted = append(deleted, a)
		}
	}
	return deleted, nil
}

// PurgeDeleted removes soft-deleted agents together with the messages only
// they still reference. With dryRun the counts are computed without writing.
// An unknown project is NOT_FOUND.
func (s *Store) PurgeDeleted(ctx context.Context, project string, dryRun bool) (*PurgeResult, error) {
	if dryRun {
		return s.purge(ctx, s.db, project, true)
	}
	if err := s.requireWritable(); err != nil {
		return nil, err
	}

	var result *PurgeResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		result, err = s.purge(ctx, tx, project, false)
		return err
	})
	if err != nil {
		return nil, wrapDBError(err)
	}
	return result, nil
}

func (s *Store) purge(ctx context.Context, q querier, project string, dryRun bool) (*PurgeResult, error) {
	pid, ok, err := s.projectID(ctx, q, project)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewNotFound("project", project)
	}

	rows, err := s.query(ctx, q,
		"SELECT id, name FROM agents WHERE project_id = ? AND substr(name, 1, ?) = ? ORDER BY id",
		pid, len(DeletedPrefix), DeletedPrefix)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	var ids []int64
	result := &PurgeResult{Agents: []string{}}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return nil, errors.NewInternal(err)
		}
		ids = append(ids, id)
		result.Agents = append(result.Agents, name)
	}
	if err := rows.Close(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if len(ids) == 0 {
		return result, nil
	}

	agentSet, agentArgs := inClause(ids)
	messageIDs, err := s.orphanedMessages(ctx, q, pid, agentSet, agentArgs)
	if err != nil {
		return nil, err
	}
	result.PurgedAgents = len(ids)
	result.PurgedMessages = len(messageIDs)
	if dryRun {
		return result, nil
	}

	if len(messageIDs) > 0 {
		msgSet, msgArgs := inClause(messageIDs)
		if _, err := s.exec(ctx, q, "DELETE FROM message_recipients WHERE message_id IN "+msgSet, msgArgs...); err != nil {
			return nil, err
		}
		if _, err := s.exec(ctx, q, "DELETE FROM messages WHERE id IN "+msgSet, msgArgs...); err != nil {
			return nil, err
		}
	}

	bothSides := append(append([]any{}, agentArgs...), agentArgs...)
	statements := []struct {
		query string
		args  []any
	}{
		{"DELETE FROM file_reservations WHERE agent_id IN " + agentSet, agentArgs},
		{"DELETE FROM message_recipients WHERE agent_id IN " + agentSet, agentArgs},
		{"DELETE FROM agent_links WHERE a_agent_id IN " + agentSet + " OR b_agent_id IN " + agentSet, bothSides},
		{"DELETE FROM agents WHERE id IN " + agentSet, agentArgs},
	}
	for _, st := range statements {
		if _, err := s.exec(ctx, q, st.query, st.args...); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// orphanedMessages returns messages authored by the given agents that have
// no recipient left who is a live agent.
func (s *Store) orphanedMessages(ctx context.Context, q querier, projectID int64, agentSet string, agentArgs []any) ([]int64, error) {
	query := `
		SELECT m.id FROM messages m
		WHERE m.project_id = ? AND m.sender_id IN ` + agentSet + `
			AND NOT EXISTS (
				SELECT 1 FROM message_recipients mr
				JOIN agents ra ON ra.id = mr.agent_id
				WHERE mr.message_id = m.id AND substr(ra.name, 1, ?) != ?
			)
		ORDER BY m.id`
	args := append([]any{projectID}, agentArgs...)
	args = append(args, len(DeletedPrefix), DeletedPrefix)

	rows, err := s.query(ctx, q, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewInternal(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return ids, nil
}

// Cascade steps

func (s *Store) releaseReservations(ctx context.Context, q querier, agentID int64) (int, error) {
	res, err := s.exec(ctx, q,
		"UPDATE file_reservations SET released_ts = ? WHERE agent_id = ? AND released_ts IS NULL",
		formatTS(s.now()), agentID)
	return affected(res, err)
}

func (s *Store) removeRecipientLinks(ctx context.Context, q querier, agentID int64) (int, error) {
	res, err := s.exec(ctx, q, "DELETE FROM message_recipients WHERE agent_id = ?", agentID)
	return affected(res, err)
}

func (s *Store) removeContactLinks(ctx context.Context, q querier, agentID int64) (int, error) {
	res, err := s.exec(ctx, q,
		"DELETE FROM agent_links WHERE a_agent_id = ? OR b_agent_id = ?", agentID, agentID)
	return affected(res, err)
}

func (s *Store) markDeleted(ctx context.Context, q querier, agentID int64) (string, error) {
	name := fmt.Sprintf("%s%d", DeletedPrefix, agentID)
	res, err := s.exec(ctx, q,
		"UPDATE agents SET name = ?, contact_policy = 'block_all' WHERE id = ?", name, agentID)
	n, err := affected(res, err)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", errors.NewNotFound("agent", fmt.Sprintf("id %d", agentID))
	}
	return name, nil
}

// step runs a single cascade step in its own retried transaction.
func (s *Store) step(ctx context.Context, fn func(tx *sql.Tx) (int, error)) (int, error) {
	var n int
	err := s.run(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = fn(tx)
		return err
	})
	return n, err
}

func (s *Store) run(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := s.requireWritable(); err != nil {
		return err
	}
	if err := s.withTx(ctx, fn); err != nil {
		return wrapDBError(err)
	}
	return nil
}

func affected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// inClause builds "(?, ?, ...)" and its arguments.
func inClause(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return "(" + strings.Join(placeholders, ", ") + ")", args
}

// wrapDBError keeps AgentMailErrors and wraps everything else as INTERNAL.
func wrapDBError(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.NewInternal(err)
}
