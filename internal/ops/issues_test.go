package ops

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeBD writes an executable script standing in for the beads CLI.
func fakeBD(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a unix shell")
	}
	path := filepath.Join(t.TempDir(), "bd")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestBeadsTracker_List(t *testing.T) {
	bin := fakeBD(t, `echo "$@" > args.txt
cat <<'EOF'
[{"id":"bd-1","title":"parser","status":"in_progress","priority":2},
 {"id":"bd-2","title":"lexer","status":"blocked","dependencies":[{"issue_id":"bd-2","depends_on_id":"bd-1","type":"blocks"},{"issue_id":"bd-2","depends_on_id":"bd-0","type":"parent-child"}]}]
EOF`)
	dir := t.TempDir()

	issues, err := BeadsTracker{Binary: bin}.List(context.Background(), dir, "BlueLake", "in_progress")
	require.NoError(t, err)
	require.Len(t, issues, 2)
	require.Equal(t, 2, *issues[0].Priority)
	require.Equal(t, []string{"bd-1"}, issues[1].Blockers())

	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	require.Equal(t, "list --assignee BlueLake --status in_progress --json", strings.TrimSpace(string(args)))
}

func TestBeadsTracker_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"non-zero exit", `echo '[]'; exit 3`},
		{"bad json", `echo 'not json'`},
		{"object instead of list", `echo '{"id":"bd-1"}'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := fakeBD(t, tt.body)
			_, err := BeadsTracker{Binary: bin}.List(context.Background(), t.TempDir(), "BlueLake", "blocked")
			require.Error(t, err)
		})
	}
}

func TestBeadsTracker_EmptyOutput(t *testing.T) {
	bin := fakeBD(t, `exit 0`)
	issues, err := BeadsTracker{Binary: bin}.List(context.Background(), t.TempDir(), "BlueLake", "blocked")
	require.NoError(t, err)
	require.Empty(t, issues)
}

func TestBeadsTracker_Timeout(t *testing.T) {
	bin := fakeBD(t, `exec sleep 5`)
	start := time.Now()
	_, err := BeadsTracker{Binary: bin, Timeout: 100 * time.Millisecond}.List(context.Background(), t.TempDir(), "BlueLake", "blocked")
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out")
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestBeadsTracker_Missing(t *testing.T) {
	_, err := BeadsTracker{Binary: filepath.Join(t.TempDir(), "no-such-bd")}.List(context.Background(), t.TempDir(), "BlueLake", "blocked")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unavailable")
}

func TestIssue_Blockers(t *testing.T) {
	explicit := Issue{ID: "bd-3", BlockedBy: []string{"bd-9"}, Dependencies: []IssueDependency{{DependsOnID: "bd-1", Type: "blocks"}}}
	require.Equal(t, []string{"bd-9"}, explicit.Blockers())

	foreign := Issue{ID: "bd-3", Dependencies: []IssueDependency{{IssueID: "bd-4", DependsOnID: "bd-1", Type: "blocks"}}}
	require.Empty(t, foreign.Blockers())
}
