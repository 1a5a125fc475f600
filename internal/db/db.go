package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
)

// Mode selects how the mirror database is opened.
type Mode int

const (
	// ReadOnly is used by every listing command.
	ReadOnly Mode = iota
	// ReadWrite is used only by the delete cascade and purge.
	ReadWrite
)

const (
	projectCacheSize   = 64
	slowQueryThreshold = 100 * time.Millisecond
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store gives direct access to the server's SQLite mirror. The schema is
// owned by the server; Store never migrates it.
type Store struct {
	db     *sql.DB
	path   string
	mode   Mode
	logger *slog.Logger
	now    func() time.Time

	// projects caches project key -> id. Projects are never mutated or
	// deleted by this program, so entries never go stale within a run.
	projects *lru.Cache[string, int64]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for slow-query warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides the time source used for expiry comparisons.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens the mirror database at path. A missing file is reported as
// STORE_UNAVAILABLE rather than silently creating an empty database.
func Open(path string, mode Mode, opts ...Option) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewStoreUnavailable(path, nil)
		}
		return nil, errors.NewStoreUnavailable(path, err)
	}

	database, err := sql.Open("sqlite", dsn(path, mode))
	if err != nil {
		return nil, errors.NewStoreUnavailable(path, err)
	}

	cache, err := lru.New[string, int64](projectCacheSize)
	if err != nil {
		database.Close()
		return nil, errors.NewInternal(err)
	}

	s := &Store{
		db:       database,
		path:     path,
		mode:     mode,
		logger:   slog.Default(),
		now:      time.Now,
		projects: cache,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := verifySchema(database); err != nil {
		database.Close()
		return nil, errors.NewStoreUnavailable(path, err)
	}

	return s, nil
}

// dsn builds a sqlite URI. busy_timeout applies to every pooled connection.
func dsn(path string, mode Mode) string {
	q := url.Values{}
	if mode == ReadOnly {
		q.Set("mode", "ro")
	} else {
		q.Set("mode", "rw")
	}
	u := url.URL{Scheme: "file", Path: path, RawQuery: q.Encode() + "&_pragma=busy_timeout(5000)"}
	return u.String()
}

// verifySchema checks that the file really is an agent-mail mirror.
func verifySchema(database *sql.DB) error {
	var name string
	err := database.QueryRow(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'projects'",
	).Scan(&name)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("projects table missing")
		}
		return err
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// requireWritable guards the mutating entry points.
func (s *Store) requireWritable() error {
	if s.mode != ReadWrite {
		return errors.NewInvalidRequest("store opened read-only")
	}
	return nil
}

// Slow query logging

func (s *Store) logSlow(start time.Time, query string) {
	if d := time.Since(start); d >= slowQueryThreshold {
		s.logger.Warn("slow query", "duration", d.Round(time.Millisecond), "query", truncateQuery(query))
	}
}

func (s *Store) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args...)
	s.logSlow(start, query)
	return rows, err
}

func (s *Store) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	start := time.Now()
	row := q.QueryRowContext(ctx, query, args...)
	s.logSlow(start, query)
	return row
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := q.ExecContext(ctx, query, args...)
	s.logSlow(start, query)
	return res, err
}

func truncateQuery(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

// withTx runs fn in a transaction, retrying the whole transaction when the
// server holds the write lock.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return RetryOnDBLock(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}
