// Package session tracks which local process currently holds an agent
// identity. Each claim is a small JSON file with a TTL; a claim whose owner
// process has died is treated as stale and removed.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
)

// Record is the on-disk session claim.
type Record struct {
	Agent     string    `json:"agent"`
	Project   string    `json:"project"`
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
	PID       int       `json:"pid"`
}

// Remaining returns the time left before expiry.
func (r *Record) Remaining(now time.Time) time.Duration {
	return r.ExpiresAt.Sub(now)
}

// Options configures a Registry. Zero values fall back to the real process
// environment.
type Options struct {
	// Dir is the sessions root. Required.
	Dir string

	Prober    LivenessProber
	Tree      ProcessTree
	SelfPID   int
	ParentPID int
	Now       func() time.Time
	Logger    *slog.Logger
}

// Registry reads and writes session records under one directory.
type Registry struct {
	dir       string
	prober    LivenessProber
	tree      ProcessTree
	selfPID   int
	parentPID int
	now       func() time.Time
	logger    *slog.Logger

	ancestorOnce sync.Once
	ancestor     int
}

// New builds a Registry from opts.
func New(opts Options) *Registry {
	r := &Registry{
		dir:       opts.Dir,
		prober:    opts.Prober,
		tree:      opts.Tree,
		selfPID:   opts.SelfPID,
		parentPID: opts.ParentPID,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if r.prober == nil {
		r.prober = SignalProber{}
	}
	if r.tree == nil {
		r.tree = PSTree{}
	}
	if r.selfPID == 0 {
		r.selfPID = os.Getpid()
	}
	if r.parentPID == 0 {
		r.parentPID = os.Getppid()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Dir returns the sessions root.
func (r *Registry) Dir() string {
	return r.dir
}

// OwnerPID is the pid recorded for claims made by this process.
func (r *Registry) OwnerPID() int {
	r.ancestorOnce.Do(func() {
		r.ancestor = StableAncestor(r.tree, r.parentPID)
	})
	return r.ancestor
}

// projectHash keys a project directory.
func projectHash(project string) string {
	sum := sha256.Sum256([]byte(project))
	return hex.EncodeToString(sum[:])[:12]
}

func validAgentName(agent string) bool {
	if agent == "" || agent == "." || strings.Contains(agent, "..") {
		return false
	}
	return !strings.ContainsAny(agent, `/\`) && !strings.ContainsRune(agent, os.PathSeparator)
}

func (r *Registry) projectDir(project string) string {
	return filepath.Join(r.dir, projectHash(project))
}

func (r *Registry) path(project, agent string) string {
	return filepath.Join(r.projectDir(project), agent+".json")
}

// Read returns the live record for (project, agent), or nil when there is
// none, it cannot be parsed, or it has expired. Expired files are removed.
func (r *Registry) Read(project, agent string) *Record {
	if !validAgentName(agent) {
		return nil
	}
	path := r.path(project, agent)

	data, err := readNoFollow(path)
	if err != nil {
		return nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil || rec.ExpiresAt.IsZero() {
		return nil
	}
	if rec.ExpiresAt.Before(r.now()) {
		if err := os.Remove(path); err == nil {
			r.logger.Debug("removed expired session", "agent", agent, "expired_at", rec.ExpiresAt)
		}
		return nil
	}
	return &rec
}

// Write creates or refreshes the claim. started_at and session_id survive a
// refresh, and expires_at always moves strictly forward.
func (r *Registry) Write(project, agent string, ttl time.Duration) (*Record, error) {
	if !validAgentName(agent) {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid agent name %q", agent))
	}
	if ttl <= 0 {
		return nil, errors.NewInvalidRequest("session ttl must be positive")
	}

	now := r.now().UTC()
	rec := &Record{
		Agent:     agent,
		Project:   project,
		SessionID: newSessionID(now),
		StartedAt: now,
		ExpiresAt: now.Add(ttl),
		PID:       r.OwnerPID(),
	}

	if prev := r.Read(project, agent); prev != nil {
		if !prev.StartedAt.IsZero() {
			rec.StartedAt = prev.StartedAt
		}
		if prev.SessionID != "" {
			rec.SessionID = prev.SessionID
		}
		if !rec.ExpiresAt.After(prev.ExpiresAt) {
			rec.ExpiresAt = prev.ExpiresAt.Add(time.Nanosecond)
		}
	}

	if err := r.writeFile(r.path(project, agent), rec); err != nil {
		return nil, errors.NewInternal(err)
	}
	return rec, nil
}

// writeFile replaces path atomically with a 0600 file.
func (r *Registry) writeFile(path string, rec *Record) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err = tmp.Chmod(0600); err != nil {
		return err
	}
	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Clear removes the claim. It reports whether a file was removed.
func (r *Registry) Clear(project, agent string) (bool, error) {
	if !validAgentName(agent) {
		return false, nil
	}
	err := os.Remove(r.path(project, agent))
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.NewInternal(err)
}

// CheckConflict returns the record held by another live process, or nil when
// the identity is free to claim. This process's own claim never conflicts. A
// claim whose owner has died is removed.
func (r *Registry) CheckConflict(project, agent string) *Record {
	rec := r.Read(project, agent)
	if rec == nil {
		return nil
	}
	if rec.PID == r.selfPID || rec.PID == r.OwnerPID() {
		return nil
	}
	if rec.PID > 0 && !r.prober.IsAlive(rec.PID) {
		r.logger.Debug("clearing stale session", "agent", agent, "pid", rec.PID)
		if _, err := r.Clear(project, agent); err != nil {
			r.logger.Debug("clear stale session failed", "agent", agent, "error", err)
		}
		return nil
	}
	return rec
}

// List returns every live record in the project, sorted by agent.
func (r *Registry) List(project string) []*Record {
	entries, err := os.ReadDir(r.projectDir(project))
	if err != nil {
		return []*Record{}
	}

	records := []*Record{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if rec := r.Read(project, strings.TrimSuffix(name, ".json")); rec != nil {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Agent < records[j].Agent })
	return records
}

func newSessionID(now time.Time) string {
	return "ses_" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// FormatExpiresIn renders the time left as Ns, Nm or Nh.
func FormatExpiresIn(remaining time.Duration) string {
	seconds := int(remaining.Seconds())
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm", seconds/60)
	default:
		return fmt.Sprintf("%dh", seconds/3600)
	}
}
