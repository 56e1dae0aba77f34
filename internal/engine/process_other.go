//go:build !unix

package engine

import (
	"os"
	"os/exec"
	"syscall"
)

func isolate(cmd *exec.Cmd) {}

// signalGroup falls back to signalling the direct child only.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	if sig == syscall.SIGKILL {
		err := cmd.Process.Kill()
		if err == os.ErrProcessDone {
			return nil
		}
		return err
	}
	return cmd.Process.Signal(sig)
}
