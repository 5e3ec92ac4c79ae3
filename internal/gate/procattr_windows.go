//go:build windows

package gate

import "os/exec"

// setProcAttr is a no-op on windows: process-group kill-on-timeout is a
// POSIX-only concern.
func setProcAttr(cmd *exec.Cmd) {}

// killProcessGroup is a no-op on windows for the same reason.
func killProcessGroup(pid int) {}
