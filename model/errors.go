package model

import "errors"

// Error taxonomy shared by the artifact store, the ledger and the launcher.
// Callers detect the condition with errors.Is; the wrapping error carries the
// offending project, version, task or job.
var (
	// ErrInvalidIdentifier is returned when a project, version or task name
	// contains characters outside the safe identifier charset.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrNotFound is returned when a referenced project, version or job does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrCorruptArtifact is returned when a bundle cannot be inspected for
	// tasks.
	ErrCorruptArtifact = errors.New("corrupt artifact")

	// ErrNoSuchTask is returned when the requested task is not declared by the
	// resolved bundle.
	ErrNoSuchTask = errors.New("no such task")

	// ErrNoSuchVersion is returned when a project has no versions or the
	// requested version is absent at dispatch time.
	ErrNoSuchVersion = errors.New("no such version")

	// ErrSpawnFailure indicates that a child process could not be started.
	// It is transient: the launcher retries before failing the job.
	ErrSpawnFailure = errors.New("spawn failure")
)
