//go:build !unix

package session

import (
	ps "github.com/mitchellh/go-ps"
)

// SignalProber looks the pid up in the process table; there is no signal 0
// on this platform.
type SignalProber struct{}

// IsAlive implements LivenessProber.
func (SignalProber) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := ps.FindProcess(pid)
	return err == nil && p != nil
}
