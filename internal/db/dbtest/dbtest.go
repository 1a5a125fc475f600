// Package dbtest builds throwaway mailbox databases shaped like the server's
// for tests of the fast read path.
package dbtest

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE projects (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	human_key TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE agents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	name TEXT NOT NULL,
	program TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	task_description TEXT NOT NULL DEFAULT '',
	inception_ts DATETIME NOT NULL,
	last_active_ts DATETIME NOT NULL,
	attachments_policy TEXT NOT NULL DEFAULT 'auto',
	contact_policy TEXT NOT NULL DEFAULT 'auto',
	UNIQUE (project_id, name)
);

CREATE TABLE messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	sender_id INTEGER NOT NULL REFERENCES agents(id),
	thread_id TEXT,
	subject TEXT NOT NULL,
	body_md TEXT NOT NULL DEFAULT '',
	importance TEXT NOT NULL DEFAULT 'normal',
	ack_required INTEGER NOT NULL DEFAULT 0,
	created_ts DATETIME NOT NULL,
	attachments TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE message_recipients (
	message_id INTEGER NOT NULL REFERENCES messages(id),
	agent_id INTEGER NOT NULL REFERENCES agents(id),
	kind TEXT NOT NULL DEFAULT 'to',
	read_ts DATETIME,
	ack_ts DATETIME,
	PRIMARY KEY (message_id, agent_id)
);

CREATE TABLE file_reservations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id),
	agent_id INTEGER NOT NULL REFERENCES agents(id),
	path_pattern TEXT NOT NULL,
	exclusive INTEGER NOT NULL DEFAULT 1,
	reason TEXT NOT NULL DEFAULT '',
	created_ts DATETIME NOT NULL,
	expires_ts DATETIME,
	released_ts DATETIME
);

CREATE TABLE agent_links (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	a_project_id INTEGER NOT NULL,
	a_agent_id INTEGER NOT NULL,
	b_project_id INTEGER NOT NULL,
	b_agent_id INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'approved',
	created_ts DATETIME NOT NULL,
	updated_ts DATETIME NOT NULL
);
`

// Layout is the timestamp text format the server writes.
const Layout = "2006-01-02 15:04:05.000000"

// TS renders t the way the server stores it.
func TS(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Fixture is a seeded mailbox database on disk.
type Fixture struct {
	t    *testing.T
	DB   *sql.DB
	Path string
	// Now anchors the default timestamps of inserted rows.
	Now time.Time

	seq int
}

// New creates an empty server-shaped database under t.TempDir().
func New(t *testing.T) *Fixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "storage.sqlite3")
	database, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })

	if _, err := database.Exec(schema); err != nil {
		t.Fatalf("create fixture schema: %v", err)
	}

	return &Fixture{t: t, DB: database, Path: path, Now: time.Now().UTC()}
}

// Empty creates a database file that has no mailbox tables.
func Empty(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "empty.sqlite3")
	database, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open empty db: %v", err)
	}
	defer database.Close()
	if _, err := database.Exec("CREATE TABLE unrelated (id INTEGER)"); err != nil {
		t.Fatalf("create unrelated table: %v", err)
	}
	return path
}

func (f *Fixture) insert(query string, args ...any) int64 {
	f.t.Helper()
	res, err := f.DB.Exec(query, args...)
	if err != nil {
		f.t.Fatalf("fixture insert failed: %v\n%s", err, query)
	}
	id, err := res.LastInsertId()
	if err != nil {
		f.t.Fatalf("fixture LastInsertId failed: %v", err)
	}
	return id
}

// Exec runs an arbitrary statement against the fixture.
func (f *Fixture) Exec(query string, args ...any) {
	f.t.Helper()
	if _, err := f.DB.Exec(query, args...); err != nil {
		f.t.Fatalf("fixture exec failed: %v\n%s", err, query)
	}
}

// Count runs a COUNT query and returns its value.
func (f *Fixture) Count(query string, args ...any) int {
	f.t.Helper()
	var n int
	if err := f.DB.QueryRow(query, args...).Scan(&n); err != nil {
		f.t.Fatalf("fixture count failed: %v\n%s", err, query)
	}
	return n
}

// Project inserts a project whose human key is humanKey.
func (f *Fixture) Project(humanKey string) int64 {
	f.t.Helper()
	return f.ProjectAt(humanKey, f.Now)
}

// ProjectAt inserts a project created at the given time.
func (f *Fixture) ProjectAt(humanKey string, created time.Time) int64 {
	f.t.Helper()
	f.seq++
	slug := fmt.Sprintf("project-%d", f.seq)
	return f.insert(
		"INSERT INTO projects (slug, human_key, created_at) VALUES (?, ?, ?)",
		slug, humanKey, TS(created))
}

// AgentOpts overrides agent defaults.
type AgentOpts struct {
	Program       string
	Model         string
	Task          string
	LastActive    time.Time
	ContactPolicy string
}

// Agent inserts an agent with default attributes.
func (f *Fixture) Agent(projectID int64, name string) int64 {
	f.t.Helper()
	return f.AgentWith(projectID, name, AgentOpts{})
}

// AgentWith inserts an agent with explicit attributes.
func (f *Fixture) AgentWith(projectID int64, name string, opts AgentOpts) int64 {
	f.t.Helper()
	if opts.Program == "" {
		opts.Program = "claude-code"
	}
	if opts.Model == "" {
		opts.Model = "test-model"
	}
	if opts.LastActive.IsZero() {
		opts.LastActive = f.Now
	}
	if opts.ContactPolicy == "" {
		opts.ContactPolicy = "auto"
	}
	return f.insert(`
		INSERT INTO agents (project_id, name, program, model, task_description,
			inception_ts, last_active_ts, contact_policy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, name, opts.Program, opts.Model, opts.Task,
		TS(f.Now.Add(-time.Hour)), TS(opts.LastActive), opts.ContactPolicy)
}

// MessageOpts overrides message defaults.
type MessageOpts struct {
	Subject     string
	Body        string
	Importance  string
	AckRequired bool
	ThreadID    string
	Created     time.Time
}

// Message inserts a message from sender.
func (f *Fixture) Message(projectID, senderID int64, opts MessageOpts) int64 {
	f.t.Helper()
	if opts.Subject == "" {
		opts.Subject = "subject"
	}
	if opts.Importance == "" {
		opts.Importance = "normal"
	}
	if opts.Created.IsZero() {
		opts.Created = f.Now
	}
	var thread any
	if opts.ThreadID != "" {
		thread = opts.ThreadID
	}
	ack := 0
	if opts.AckRequired {
		ack = 1
	}
	return f.insert(`
		INSERT INTO messages (project_id, sender_id, thread_id, subject, body_md,
			importance, ack_required, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, senderID, thread, opts.Subject, opts.Body,
		opts.Importance, ack, TS(opts.Created))
}

// Recipient adds agentID as a recipient. Nil times leave read/ack unset.
func (f *Fixture) Recipient(messageID, agentID int64, read, acked *time.Time) {
	f.t.Helper()
	f.Exec(
		"INSERT INTO message_recipients (message_id, agent_id, kind, read_ts, ack_ts) VALUES (?, ?, 'to', ?, ?)",
		messageID, agentID, nullableTS(read), nullableTS(acked))
}

// ReservationOpts overrides reservation defaults.
type ReservationOpts struct {
	Shared   bool
	Reason   string
	Created  time.Time
	Expires  *time.Time
	Released *time.Time
	// NoExpiry stores a NULL expires_ts.
	NoExpiry bool
}

// Reservation inserts a file reservation. By default it is exclusive and
// expires an hour after Now.
func (f *Fixture) Reservation(projectID, agentID int64, pattern string, opts ReservationOpts) int64 {
	f.t.Helper()
	if opts.Created.IsZero() {
		opts.Created = f.Now
	}
	var expires any
	switch {
	case opts.NoExpiry:
		expires = nil
	case opts.Expires != nil:
		expires = TS(*opts.Expires)
	default:
		expires = TS(f.Now.Add(time.Hour))
	}
	exclusive := 1
	if opts.Shared {
		exclusive = 0
	}
	return f.insert(`
		INSERT INTO file_reservations (project_id, agent_id, path_pattern, exclusive,
			reason, created_ts, expires_ts, released_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		projectID, agentID, pattern, exclusive, opts.Reason,
		TS(opts.Created), expires, nullableTS(opts.Released))
}

// Link inserts an approved contact link between two agents of a project.
func (f *Fixture) Link(projectID, a, b int64) int64 {
	f.t.Helper()
	return f.insert(`
		INSERT INTO agent_links (a_project_id, a_agent_id, b_project_id, b_agent_id,
			status, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, 'approved', ?, ?)`,
		projectID, a, projectID, b, TS(f.Now), TS(f.Now))
}

// Ptr returns a pointer to t.
func Ptr(t time.Time) *time.Time {
	return &t
}

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return TS(*t)
}
