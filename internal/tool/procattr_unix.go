//go:build unix

package tool

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the child as the leader of a new process group
// and makes context cancellation kill the entire group, so helpers the tool
// forks (ffmpeg, python workers) do not outlive it.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
}
