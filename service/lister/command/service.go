// Package command lists bundle tasks by running an external inspector
// command through a local gosh shell.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	"github.com/viant/taskd/internal/idgen"
	"github.com/viant/taskd/model"
	"github.com/viant/taskd/service/lister"
)

// Service runs "<command> <bundle-path>" and reads one task name per stdout line.
type Service struct {
	command string
	tempURL string
	timeout time.Duration
	env     map[string]string
	fs      afs.Service
	mux     sync.Mutex
	shell   *gosh.Service
}

var _ lister.Lister = (*Service)(nil)

// List writes the bundle to a temporary location and runs the inspector on it.
func (s *Service) List(ctx context.Context, blob []byte) ([]string, error) {
	bundleURL := url.Join(s.tempURL, idgen.New()+".bundle")
	if err := s.fs.Upload(ctx, bundleURL, file.DefaultFileOsMode, bytes.NewReader(blob)); err != nil {
		return nil, fmt.Errorf("failed to stage bundle: %w", err)
	}
	defer func() { _ = s.fs.Delete(context.Background(), bundleURL) }()

	shell, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	s.mux.Lock()
	stdout, status, err := shell.Run(ctx, s.command+" "+url.Path(bundleURL), runner.WithTimeout(int(s.timeout.Milliseconds())))
	s.mux.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: inspector failed: %v", model.ErrCorruptArtifact, err)
	}
	if status != 0 {
		return nil, fmt.Errorf("%w: inspector exited with status %d: %s", model.ErrCorruptArtifact, status, strings.TrimSpace(stdout))
	}
	return parse(stdout), nil
}

func parse(stdout string) []string {
	var ret []string
	seen := map[string]bool{}
	for _, line := range strings.Split(stdout, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		ret = append(ret, name)
	}
	return ret
}

func (s *Service) session(ctx context.Context) (*gosh.Service, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.shell != nil {
		return s.shell, nil
	}
	var options []runner.Option
	if len(s.env) > 0 {
		options = append(options, runner.WithEnvironment(s.env))
	}
	shell, err := gosh.New(ctx, local.New(options...))
	if err != nil {
		return nil, fmt.Errorf("failed to start inspector shell: %w", err)
	}
	s.shell = shell
	return shell, nil
}

// Close releases the shell session.
func (s *Service) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.shell == nil {
		return nil
	}
	err := s.shell.Close()
	s.shell = nil
	return err
}

// Option customises the command lister
type Option func(*Service)

// WithTimeout bounds a single inspector run
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithEnvironment sets inspector environment variables
func WithEnvironment(env map[string]string) Option {
	return func(s *Service) {
		s.env = env
	}
}

// WithTempURL sets where bundles are staged before inspection
func WithTempURL(URL string) Option {
	return func(s *Service) {
		if URL != "" {
			s.tempURL = url.Normalize(URL, file.Scheme)
		}
	}
}

// New creates a command lister
func New(command string, options ...Option) *Service {
	ret := &Service{
		command: command,
		timeout: time.Minute,
		fs:      afs.New(),
		tempURL: url.Normalize(path.Join(os.TempDir(), "taskd", "inspect"), file.Scheme),
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}
