//go:build !unix

package agent

import (
	"os"
	"syscall"
)

func detach() *syscall.SysProcAttr { return nil }

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// FindProcess opens a handle on Windows and fails for exited processes.
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

func terminateGroup(pid int) error { return killGroup(pid) }

func killGroup(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}
