package session

import (
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRead_SymlinkIsAbsent(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	c := &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r := newRegistry(t, fakeProber{}, c)

	_, err := r.Write(project, "RedFox", time.Minute)
	require.NoError(t, err)
	require.NoError(t, os.Symlink(r.path(project, "RedFox"), r.path(project, "GhostOwl")))

	require.NotNil(t, r.Read(project, "RedFox"))
	require.Nil(t, r.Read(project, "GhostOwl"))
}

func TestReadNoFollow_RegularFile(t *testing.T) {
	path := t.TempDir() + "/plain.json"
	require.NoError(t, os.WriteFile(path, []byte(`{"agent":"x"}`), 0600))

	data, err := readNoFollow(path)
	require.NoError(t, err)
	require.Equal(t, `{"agent":"x"}`, string(data))

	_, err = readNoFollow(path + ".missing")
	require.ErrorIs(t, err, os.ErrNotExist)
}
