//go:build unix

package refine

import (
	"os/exec"
	"syscall"
)

// killGroup starts the tool in its own process group and kills the whole
// group on cancellation, so helpers the tool spawned die with it.
func killGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
