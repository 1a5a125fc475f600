//go:build unix

package session

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// readNoFollow reads a session file, refusing a symlink in the final path
// component. O_CLOEXEC keeps the fd out of child processes.
func readNoFollow(path string) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: path, Err: err}
	}
	f := os.NewFile(uintptr(fd), path)
	defer f.Close()
	return io.ReadAll(f)
}
