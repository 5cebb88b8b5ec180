package taskd

import (
	"log/slog"

	"github.com/viant/taskd/model/job"
	"github.com/viant/taskd/service/artifact"
	"github.com/viant/taskd/service/dao"
	"github.com/viant/taskd/service/event"
	"github.com/viant/taskd/service/lister"
	"github.com/viant/taskd/service/process"
	"github.com/viant/taskd/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the taskd service
type Option func(s *Service)

// WithConfig sets the configuration used to build components that were not
// supplied explicitly.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithNode overrides the node name echoed in every mutation
func WithNode(node string) Option {
	return func(s *Service) {
		s.node = node
	}
}

// WithArtifactStore sets the artifact store
func WithArtifactStore(store artifact.Store) Option {
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

// WithJobDAO sets the ledger storage
func WithJobDAO(jobs dao.Service[string, job.Job]) Option {
	return func(s *Service) {
		s.jobs = jobs
	}
}

// WithEventService publishes every job transition through the supplied
// event service.
func WithEventService(service *event.Service) Option {
	return func(s *Service) {
		s.events = service
	}
}

// WithLogger sets the logger shared by all components
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracing configures OpenTelemetry tracing for the service. If outputFile is empty the
// stdout exporter is used; otherwise traces are written to the supplied file path. The first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		if err := tracing.Init(serviceName, serviceVersion, outputFile); err != nil {
			s.logger.Warn("failed to initialise tracing", "error", err)
		}
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter, for example
// OTLP, Jaeger or Zipkin. The first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		if err := tracing.InitWithExporter(serviceName, serviceVersion, exporter); err != nil {
			s.logger.Warn("failed to initialise tracing", "error", err)
		}
	}
}
