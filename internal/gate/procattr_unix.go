//go:build !windows

package gate

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcAttr puts the compiler subprocess in its own process group so a
// timed-out compile's children (a driven-through linker, say) can be
// killed as a group rather than left orphaned.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the process group rooted at pid. Best
// effort: called only after the compile step's context has already timed
// out, so a failure here does not change the reported gate outcome.
func killProcessGroup(pid int) {
	_ = unix.Kill(-pid, syscall.SIGKILL)
}
