package db

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/db/dbtest"
	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
)

// openFixture opens a Store over f, pinned to f.Now.
func openFixture(t *testing.T, f *dbtest.Fixture, mode Mode) *Store {
	t.Helper()
	s, err := Open(f.Path, mode, WithClock(func() time.Time { return f.Now }))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.sqlite3")

	_, err := Open(path, ReadOnly)
	if !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Fatalf("Open() error = %v, want STORE_UNAVAILABLE", err)
	}
	amErr, _ := errors.As(err)
	if amErr.Details["path"] != path {
		t.Errorf("Details[path] = %v, want %q", amErr.Details["path"], path)
	}
}

func TestOpen_NotAMailboxDB(t *testing.T) {
	path := dbtest.Empty(t)

	_, err := Open(path, ReadOnly)
	if !errors.Is(err, errors.ErrStoreUnavailable) {
		t.Fatalf("Open() error = %v, want STORE_UNAVAILABLE", err)
	}
}

func TestOpen_ReadOnlyRejectsWrites(t *testing.T) {
	f := dbtest.New(t)
	proj := f.Project("/work/alpha")
	agent := f.Agent(proj, "BlueLake")
	s := openFixture(t, f, ReadOnly)

	if _, err := s.ReleaseReservations(context.Background(), agent); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("ReleaseReservations() on read-only store error = %v, want INVALID_REQUEST", err)
	}
	if _, err := s.SoftDeleteAgent(context.Background(), "/work/alpha", "BlueLake"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("SoftDeleteAgent() on read-only store error = %v, want INVALID_REQUEST", err)
	}
}

func TestDSN(t *testing.T) {
	ro := dsn("/tmp/mail/storage.sqlite3", ReadOnly)
	if !strings.HasPrefix(ro, "file:") || !strings.Contains(ro, "mode=ro") {
		t.Errorf("read-only dsn = %q", ro)
	}
	if !strings.Contains(ro, "_pragma=busy_timeout(5000)") {
		t.Errorf("dsn missing busy_timeout: %q", ro)
	}

	rw := dsn("/tmp/mail/storage.sqlite3", ReadWrite)
	if !strings.Contains(rw, "mode=rw") {
		t.Errorf("read-write dsn = %q", rw)
	}
}

func TestProjectIDCache(t *testing.T) {
	f := dbtest.New(t)
	proj := f.Project("/work/alpha")
	s := openFixture(t, f, ReadOnly)
	ctx := context.Background()

	id, ok, err := s.projectID(ctx, s.db, "/work/alpha")
	if err != nil || !ok || id != proj {
		t.Fatalf("projectID() = %d, %v, %v; want %d", id, ok, err, proj)
	}
	if cached, hit := s.projects.Get("/work/alpha"); !hit || cached != proj {
		t.Errorf("cache entry = %d, %v; want %d", cached, hit, proj)
	}

	// Slug lookups resolve too.
	if _, ok, _ := s.projectID(ctx, s.db, "project-1"); !ok {
		t.Error("projectID() should resolve by slug")
	}

	// Misses are not cached.
	if _, ok, _ := s.projectID(ctx, s.db, "/work/missing"); ok {
		t.Error("projectID() should miss unknown project")
	}
	if s.projects.Contains("/work/missing") {
		t.Error("unknown project should not be cached")
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 3, 4, 5, 6, 7, 123456000, time.UTC)

	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"2025-03-04 05:06:07.123456", want, true},
		{"2025-03-04T05:06:07.123456", want, true},
		{"2025-03-04T05:06:07.123456Z", want, true},
		{"2025-03-04T07:06:07.123456+02:00", want, true},
		{"2025-03-04 05:06:07", want.Truncate(time.Second), true},
		{"", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseTimestamp(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatTS_RoundTrip(t *testing.T) {
	in := time.Date(2025, 1, 2, 3, 4, 5, 600000000, time.FixedZone("X", 3600))
	got, ok := ParseTimestamp(formatTS(in))
	if !ok || !got.Equal(in) {
		t.Errorf("round trip = %v, %v; want %v", got, ok, in)
	}
}

var errLocked = stderrors.New("database is locked (5) (SQLITE_BUSY)")

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryOnDBLock_SucceedsAfterLock(t *testing.T) {
	calls := 0
	err := retryOnDBLock(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		if calls < 3 {
			return errLocked
		}
		return nil
	}, noSleep)
	if err != nil {
		t.Fatalf("retryOnDBLock() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryOnDBLock_NonLockErrorNotRetried(t *testing.T) {
	boom := stderrors.New("no such table: agents")
	calls := 0
	err := retryOnDBLock(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return boom
	}, noSleep)
	if !stderrors.Is(err, boom) {
		t.Fatalf("retryOnDBLock() error = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryOnDBLock_GivesUp(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond}
	var delays []time.Duration
	calls := 0
	err := retryOnDBLock(context.Background(), cfg, func() error {
		calls++
		return errLocked
	}, func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	})
	if !stderrors.Is(err, errLocked) {
		t.Fatalf("retryOnDBLock() error = %v, want lock error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(delays) != 2 || delays[0] != time.Millisecond || delays[1] != 2*time.Millisecond {
		t.Errorf("delays = %v, want [1ms 2ms]", delays)
	}
}

func TestRetryOnDBLock_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryOnDBLock(ctx, DefaultRetryConfig(), func() error {
		calls++
		return errLocked
	}, sleepCtx)
	if !stderrors.Is(err, errLocked) {
		t.Fatalf("retryOnDBLock() error = %v, want lock error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
