//go:build !linux

// Package procattr configures spawned server processes so they cannot
// outlive the client that started them.
package procattr

import (
	"os/exec"
	"syscall"
)

// Apply puts the child in its own process group. Parent-death signaling is
// Linux-only; on other platforms the group still allows kill -<pgid>
// cleanup by the parent.
func Apply(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}
