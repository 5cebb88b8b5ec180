package fs

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/taskd/model"
	"github.com/viant/taskd/service/artifact"
)

const bundleExt = ".bundle"

// Store keeps bundles as <baseURL>/<project>/<version>.bundle on any afs
// supported storage.
type Store struct {
	baseURL string
	fs      afs.Service
	locks   artifact.KeyedLock
}

var _ artifact.Store = (*Store)(nil)

// Put stores or overwrites a version
func (s *Store) Put(ctx context.Context, project, version string, blob []byte) error {
	if err := model.ValidateIdentifiers("project", project, "version", version); err != nil {
		return err
	}
	unlock := s.locks.Lock(project)
	defer unlock()
	URL := s.versionURL(project, version)
	if err := s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(blob)); err != nil {
		return fmt.Errorf("failed to store %s: %w", URL, err)
	}
	return nil
}

// Get returns the requested or latest version
func (s *Store) Get(ctx context.Context, project, version string) (*artifact.Artifact, error) {
	if err := model.ValidateIdentifier("project", project); err != nil {
		return nil, err
	}
	if version != "" {
		if err := model.ValidateIdentifier("version", version); err != nil {
			return nil, err
		}
	}
	unlock := s.locks.RLock(project)
	defer unlock()
	if version == "" {
		versions, err := s.versions(ctx, project)
		if err != nil {
			return nil, err
		}
		if version = artifact.Latest(versions); version == "" {
			return nil, nil
		}
	}
	URL := s.versionURL(project, version)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", URL, err)
	}
	if !exists {
		return nil, nil
	}
	blob, err := s.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", URL, err)
	}
	return &artifact.Artifact{Project: project, Version: version, Blob: blob}, nil
}

// Versions lists versions in ascending order
func (s *Store) Versions(ctx context.Context, project string) ([]string, error) {
	if err := model.ValidateIdentifier("project", project); err != nil {
		return nil, err
	}
	unlock := s.locks.RLock(project)
	defer unlock()
	versions, err := s.versions(ctx, project)
	if err != nil {
		return nil, err
	}
	return artifact.Sort(versions), nil
}

func (s *Store) versions(ctx context.Context, project string) ([]string, error) {
	projectURL := s.projectURL(project)
	exists, err := s.fs.Exists(ctx, projectURL)
	if err != nil || !exists {
		return []string{}, err
	}
	objects, err := s.fs.List(ctx, projectURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", projectURL, err)
	}
	ret := []string{}
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), bundleExt) {
			continue
		}
		ret = append(ret, strings.TrimSuffix(object.Name(), bundleExt))
	}
	return ret, nil
}

// Projects lists known projects, including those without versions
func (s *Store) Projects(ctx context.Context) ([]string, error) {
	objects, err := s.fs.List(ctx, s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.baseURL, err)
	}
	base := path.Base(url.Path(s.baseURL))
	ret := []string{}
	for i, object := range objects {
		if !object.IsDir() {
			continue
		}
		if i == 0 && object.Name() == base {
			continue
		}
		ret = append(ret, object.Name())
	}
	sort.Strings(ret)
	return ret, nil
}

// DeleteVersion removes a single version, leaving the project directory in place
func (s *Store) DeleteVersion(ctx context.Context, project, version string) error {
	if err := model.ValidateIdentifiers("project", project, "version", version); err != nil {
		return err
	}
	unlock := s.locks.Lock(project)
	defer unlock()
	URL := s.versionURL(project, version)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", URL, err)
	}
	if !exists {
		return fmt.Errorf("version %s/%s: %w", project, version, model.ErrNotFound)
	}
	if err = s.fs.Delete(ctx, URL); err != nil {
		return fmt.Errorf("failed to delete %s: %w", URL, err)
	}
	return nil
}

// DeleteProject removes a project with all its versions. Readers of the
// project wait until the removal completes.
func (s *Store) DeleteProject(ctx context.Context, project string) error {
	if err := model.ValidateIdentifier("project", project); err != nil {
		return err
	}
	unlock := s.locks.Lock(project)
	defer unlock()
	URL := s.projectURL(project)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", URL, err)
	}
	if !exists {
		return fmt.Errorf("project %s: %w", project, model.ErrNotFound)
	}
	if err = s.fs.Delete(ctx, URL); err != nil {
		return fmt.Errorf("failed to delete %s: %w", URL, err)
	}
	return nil
}

func (s *Store) projectURL(project string) string {
	return url.Join(s.baseURL, project)
}

func (s *Store) versionURL(project, version string) string {
	return url.Join(s.baseURL, project, version+bundleExt)
}

// Option customises the store
type Option func(*Store)

// WithFs overrides the afs service
func WithFs(fs afs.Service) Option {
	return func(s *Store) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// New creates a store rooted at baseURL, creating the location when missing
func New(ctx context.Context, baseURL string, options ...Option) (*Store, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("artifact base URL cannot be empty")
	}
	ret := &Store{fs: afs.New()}
	for _, opt := range options {
		opt(ret)
	}
	ret.baseURL = url.Normalize(baseURL, file.Scheme)
	exists, _ := ret.fs.Exists(ctx, ret.baseURL)
	if !exists {
		if err := ret.fs.Create(ctx, ret.baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create artifact location %s: %w", ret.baseURL, err)
		}
	}
	return ret, nil
}
