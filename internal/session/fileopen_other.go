//go:build !unix

package session

import "os"

// readNoFollow reads a session file. O_NOFOLLOW is unavailable here, so a
// symlink is rejected by an Lstat check before reading.
func readNoFollow(path string) ([]byte, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrPermission}
	}
	return os.ReadFile(path)
}
