package local

import (
	"log/slog"

	"github.com/viant/afs"
)

// Option customises the local spawner
type Option func(*Service)

// WithDefaultCommand sets the command used for tasks without one; the task
// name is appended as the last argument
func WithDefaultCommand(command ...string) Option {
	return func(s *Service) {
		s.defaultCommand = command
	}
}

// WithKeepWorkDir keeps job working directories after exit
func WithKeepWorkDir(keep bool) Option {
	return func(s *Service) {
		s.keepWorkDir = keep
	}
}

// WithEnvironment adds variables to every job process
func WithEnvironment(env map[string]string) Option {
	return func(s *Service) {
		s.env = env
	}
}

// WithFs overrides the afs service used for bundle extraction
func WithFs(fs afs.Service) Option {
	return func(s *Service) {
		if fs != nil {
			s.fs = fs
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
