//go:build unix

package local

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/viant/taskd/model/job"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(cmd *exec.Cmd, kill bool) error {
	sig := syscall.SIGTERM
	if kill {
		sig = syscall.SIGKILL
	}
	err := syscall.Kill(-cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func exitOf(state *os.ProcessState) job.Exit {
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return job.Exit{Code: -1, Signal: status.Signal().String()}
	}
	return job.Exit{Code: state.ExitCode()}
}
