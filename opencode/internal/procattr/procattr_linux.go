//go:build linux

// Package procattr configures spawned server processes so they cannot
// outlive the client that started them.
package procattr

import (
	"os/exec"
	"syscall"
)

// Apply puts the child in its own process group and, on Linux, arranges for
// SIGTERM delivery if the parent dies without cleaning up (SIGKILL, OOM).
func Apply(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
