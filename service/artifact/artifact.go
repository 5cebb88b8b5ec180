// Package artifact defines the versioned code bundle store and the version
// ordering used to resolve "latest".
package artifact

import (
	"context"
)

// Artifact is a stored code bundle together with the version it was resolved to.
type Artifact struct {
	Project string
	Version string
	Blob    []byte
}

// Store keeps versioned bundles per project.
type Store interface {
	// Put stores or overwrites a version.
	Put(ctx context.Context, project, version string, blob []byte) error

	// Get returns the requested version, or the latest one when version is
	// empty. It returns nil, nil when the project or version is absent.
	Get(ctx context.Context, project, version string) (*Artifact, error)

	// Versions lists project versions in ascending order.
	Versions(ctx context.Context, project string) ([]string, error)

	// Projects lists known projects, including those without versions.
	Projects(ctx context.Context) ([]string, error)

	DeleteVersion(ctx context.Context, project, version string) error

	DeleteProject(ctx context.Context, project string) error
}
