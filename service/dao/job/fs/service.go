package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/taskd/model/job"
	"github.com/viant/taskd/service/dao"
	"github.com/viant/taskd/service/dao/criteria"
)

// Service implements a filesystem-based job storage, one JSON document per job.
type Service struct {
	basePath string
	fs       afs.Service
	logger   *slog.Logger
	mu       sync.RWMutex
}

// Ensure Service implements dao.Service
var _ dao.Service[string, job.Job] = (*Service)(nil)

// Save persists a job to the filesystem
func (s *Service) Save(ctx context.Context, aJob *job.Job) error {
	if aJob == nil {
		return dao.ErrNilEntity
	}
	if aJob.ID == "" {
		return dao.ErrInvalidID
	}
	data, err := json.Marshal(aJob)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	filePath := s.jobPath(aJob.ID)
	if err = s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save job to file %s: %w", filePath, err)
	}
	return nil
}

// Load retrieves a job from the filesystem
func (s *Service) Load(ctx context.Context, id string) (*job.Job, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := s.jobPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if job exists: %w", err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	var ret job.Job
	if err := json.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &ret, nil
}

// Delete removes a job from the filesystem
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.jobPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check if job exists: %w", err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	if err := s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("failed to delete job file: %w", err)
	}
	return nil
}

// List returns stored jobs matching parameters. Unreadable documents are
// logged and skipped.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list job files: %w", err)
	}
	var jobs []*job.Job
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			s.logger.Warn("failed to read job file", "url", object.URL(), "error", err)
			continue
		}
		aJob := &job.Job{}
		if err := json.Unmarshal(data, aJob); err != nil {
			s.logger.Warn("failed to unmarshal job file", "url", object.URL(), "error", err)
			continue
		}
		if !criteria.Match(aJob.Field, parameters) {
			continue
		}
		jobs = append(jobs, aJob)
	}
	return jobs, nil
}

func (s *Service) jobPath(id string) string {
	return url.Join(s.basePath, id+".json")
}

// Option customises the filesystem job storage
type Option func(*Service)

// WithLogger sets the logger used to report unreadable documents
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFs overrides the afs service
func WithFs(fs afs.Service) Option {
	return func(s *Service) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// New creates a new filesystem job storage service
func New(ctx context.Context, basePath string, options ...Option) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	ret := &Service{fs: afs.New(), logger: slog.Default()}
	for _, opt := range options {
		opt(ret)
	}
	ret.basePath = url.Normalize(basePath, file.Scheme)
	exists, _ := ret.fs.Exists(ctx, ret.basePath)
	if !exists {
		if err := ret.fs.Create(ctx, ret.basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}
	return ret, nil
}
