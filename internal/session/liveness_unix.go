//go:build unix

package session

import (
	stderrors "errors"

	"golang.org/x/sys/unix"
)

// SignalProber probes with signal 0. EPERM means the process exists but
// belongs to another user.
type SignalProber struct{}

// IsAlive implements LivenessProber.
func (SignalProber) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || stderrors.Is(err, unix.EPERM)
}
