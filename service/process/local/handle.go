package local

import (
	"os"
	"os/exec"
	"sync"

	"github.com/viant/taskd/model/job"
)

type handle struct {
	cmd     *exec.Cmd
	logURL  string
	done    chan struct{}
	exit    job.Exit
	mux     sync.Mutex
	cleanup func()
}

func (h *handle) PID() int {
	return h.cmd.Process.Pid
}

func (h *handle) LogURL() string {
	return h.logURL
}

func (h *handle) Wait() job.Exit {
	<-h.done
	return h.exit
}

func (h *handle) Terminate() error {
	return h.signal(false)
}

func (h *handle) Kill() error {
	return h.signal(true)
}

func (h *handle) signal(kill bool) error {
	h.mux.Lock()
	defer h.mux.Unlock()
	select {
	case <-h.done:
		return nil
	default:
	}
	return signalGroup(h.cmd, kill)
}

func (h *handle) reap(logFile *os.File) {
	_ = h.cmd.Wait()
	exit := exitOf(h.cmd.ProcessState)
	_ = logFile.Close()
	if h.cleanup != nil {
		h.cleanup()
	}
	h.mux.Lock()
	h.exit = exit
	close(h.done)
	h.mux.Unlock()
}
