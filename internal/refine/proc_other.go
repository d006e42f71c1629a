//go:build !unix

package refine

import "os/exec"

// killGroup relies on WaitDelay alone where process groups are unavailable.
func killGroup(cmd *exec.Cmd) {}
