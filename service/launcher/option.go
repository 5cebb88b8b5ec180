package launcher

import (
	"log/slog"

	"github.com/viant/taskd/service/artifact"
	"github.com/viant/taskd/service/ledger"
	"github.com/viant/taskd/service/lister"
	"github.com/viant/taskd/service/process"
)

// Option customises the launcher
type Option func(*Service)

// WithConfig sets the launcher configuration
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithArtifacts sets the artifact store used for dispatch-time resolution
func WithArtifacts(store artifact.Store) Option {
	return func(s *Service) {
		s.artifacts = store
	}
}

// WithLister sets the task lister
func WithLister(aLister lister.Lister) Option {
	return func(s *Service) {
		s.lister = aLister
	}
}

// WithSpawner sets the process spawner
func WithSpawner(spawner process.Spawner) Option {
	return func(s *Service) {
		s.spawner = spawner
	}
}

// WithLedger sets the job ledger
func WithLedger(aLedger *ledger.Service) Option {
	return func(s *Service) {
		s.ledger = aLedger
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
