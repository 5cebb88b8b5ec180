package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/viant/taskd/model"
	"github.com/viant/taskd/service/artifact"
)

// Store keeps bundles in process memory.
type Store struct {
	mu       sync.RWMutex
	projects map[string]map[string][]byte
}

var _ artifact.Store = (*Store)(nil)

// Put stores or overwrites a version
func (s *Store) Put(_ context.Context, project, version string, blob []byte) error {
	if err := model.ValidateIdentifiers("project", project, "version", version); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	versions, ok := s.projects[project]
	if !ok {
		versions = make(map[string][]byte)
		s.projects[project] = versions
	}
	versions[version] = append([]byte(nil), blob...)
	return nil
}

// Get returns the requested or latest version
func (s *Store) Get(_ context.Context, project, version string) (*artifact.Artifact, error) {
	if err := model.ValidateIdentifier("project", project); err != nil {
		return nil, err
	}
	if version != "" {
		if err := model.ValidateIdentifier("version", version); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.projects[project]
	if version == "" {
		version = artifact.Latest(keys(versions))
		if version == "" {
			return nil, nil
		}
	}
	blob, ok := versions[version]
	if !ok {
		return nil, nil
	}
	return &artifact.Artifact{Project: project, Version: version, Blob: append([]byte(nil), blob...)}, nil
}

// Versions lists versions in ascending order
func (s *Store) Versions(_ context.Context, project string) ([]string, error) {
	if err := model.ValidateIdentifier("project", project); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return artifact.Sort(keys(s.projects[project])), nil
}

// Projects lists known projects
func (s *Store) Projects(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]string, 0, len(s.projects))
	for project := range s.projects {
		ret = append(ret, project)
	}
	sort.Strings(ret)
	return ret, nil
}

// DeleteVersion removes a single version, leaving the project in place
func (s *Store) DeleteVersion(_ context.Context, project, version string) error {
	if err := model.ValidateIdentifiers("project", project, "version", version); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.projects[project]
	if _, ok := versions[version]; !ok {
		return fmt.Errorf("version %s/%s: %w", project, version, model.ErrNotFound)
	}
	delete(versions, version)
	return nil
}

// DeleteProject removes a project with all its versions
func (s *Store) DeleteProject(_ context.Context, project string) error {
	if err := model.ValidateIdentifier("project", project); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[project]; !ok {
		return fmt.Errorf("project %s: %w", project, model.ErrNotFound)
	}
	delete(s.projects, project)
	return nil
}

func keys(versions map[string][]byte) []string {
	ret := make([]string, 0, len(versions))
	for version := range versions {
		ret = append(ret, version)
	}
	return ret
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{projects: make(map[string]map[string][]byte)}
}
