// Package process defines how the launcher starts and supervises one OS
// process per job.
package process

import (
	"context"

	"github.com/viant/taskd/model/job"
)

// Spec describes a job to spawn.
type Spec struct {
	JobID   string
	Project string
	Task    string
	Version string
	Args    map[string]string
	Bundle  []byte
}

// Handle controls a spawned process.
type Handle interface {
	PID() int

	// LogURL locates the combined stdout and stderr of the process.
	LogURL() string

	// Wait blocks until the process exits. It may be called many times.
	Wait() job.Exit

	// Terminate asks the process group to stop.
	Terminate() error

	// Kill forcibly stops the process group.
	Kill() error
}

// Spawner starts processes. Start failures wrap model.ErrSpawnFailure;
// bundles that cannot be materialised wrap model.ErrCorruptArtifact.
type Spawner interface {
	Spawn(ctx context.Context, spec *Spec) (Handle, error)
}
