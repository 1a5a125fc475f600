package session

import (
	"fmt"
	"path/filepath"
	"strings"

	ps "github.com/mitchellh/go-ps"
)

// maxAncestorDepth bounds the shell-skipping walk.
const maxAncestorDepth = 8

// LivenessProber reports whether a process exists.
type LivenessProber interface {
	IsAlive(pid int) bool
}

// ProcessTree looks up a process's parent and executable name.
type ProcessTree interface {
	Lookup(pid int) (ppid int, exe string, err error)
}

// PSTree reads the process table through go-ps.
type PSTree struct{}

// Lookup implements ProcessTree.
func (PSTree) Lookup(pid int) (int, string, error) {
	p, err := ps.FindProcess(pid)
	if err != nil {
		return 0, "", err
	}
	if p == nil {
		return 0, "", fmt.Errorf("process %d not found", pid)
	}
	return p.PPid(), p.Executable(), nil
}

var shells = map[string]bool{
	"sh": true, "bash": true, "zsh": true, "dash": true, "fish": true,
	"ksh": true, "tcsh": true, "csh": true, "ash": true,
}

func isShell(exe string) bool {
	name := strings.TrimPrefix(filepath.Base(exe), "-")
	return shells[name]
}

// StableAncestor climbs from parent past wrapper shells to the first process
// that outlives a single command, typically the agent's host program. The
// walk stops at pid 1. Any lookup failure, or running out of depth, yields
// parent itself.
func StableAncestor(tree ProcessTree, parent int) int {
	if tree == nil || parent <= 1 {
		return parent
	}

	pid := parent
	for depth := 0; depth < maxAncestorDepth; depth++ {
		ppid, exe, err := tree.Lookup(pid)
		if err != nil {
			return parent
		}
		if !isShell(exe) || ppid <= 1 {
			return pid
		}
		pid = ppid
	}
	return parent
}
