//go:build !unix

package local

import (
	"os"
	"os/exec"

	"github.com/viant/taskd/model/job"
)

func setProcessGroup(*exec.Cmd) {}

func signalGroup(cmd *exec.Cmd, kill bool) error {
	if kill {
		return cmd.Process.Kill()
	}
	return cmd.Process.Signal(os.Interrupt)
}

func exitOf(state *os.ProcessState) job.Exit {
	return job.Exit{Code: state.ExitCode()}
}
