//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the wrapper in its own process group so that a
// timeout kills the measured compressor along with the wrapper.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
