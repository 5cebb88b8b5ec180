package taskd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/viant/afs/url"
	"github.com/viant/taskd/model"
	"github.com/viant/taskd/model/job"
	"github.com/viant/taskd/progress"
	"github.com/viant/taskd/service/artifact"
	afstore "github.com/viant/taskd/service/artifact/fs"
	"github.com/viant/taskd/service/bundle"
	"github.com/viant/taskd/service/dao"
	jfs "github.com/viant/taskd/service/dao/job/fs"
	jmemory "github.com/viant/taskd/service/dao/job/memory"
	"github.com/viant/taskd/service/event"
	"github.com/viant/taskd/service/launcher"
	"github.com/viant/taskd/service/ledger"
	"github.com/viant/taskd/service/lister"
	"github.com/viant/taskd/service/lister/command"
	"github.com/viant/taskd/service/messaging"
	mfs "github.com/viant/taskd/service/messaging/fs"
	mmemory "github.com/viant/taskd/service/messaging/memory"
	"github.com/viant/taskd/service/process"
	"github.com/viant/taskd/service/process/local"
	"github.com/viant/taskd/service/secret"
	"github.com/viant/taskd/tracing"
)

// Service is the taskd daemon core: it stores versioned bundles, accepts
// job requests and runs them through the launcher.
type Service struct {
	config    *Config
	node      string
	artifacts artifact.Store
	lister    lister.Lister
	spawner   process.Spawner
	jobs      dao.Service[string, job.Job]
	events    *event.Service
	publisher *event.Publisher[job.Job]
	ledger    *ledger.Service
	launcher  *launcher.Service
	progress  *progress.Progress
	logger    *slog.Logger
	closers   []io.Closer
	ownEvents bool
}

// New creates a service. Components not supplied through options are built
// from the configuration.
func New(ctx context.Context, options ...Option) (*Service, error) {
	ret := &Service{logger: slog.Default()}
	for _, option := range options {
		option(ret)
	}
	if err := ret.init(ctx); err != nil {
		_ = ret.close()
		return nil, err
	}
	return ret, nil
}

func (s *Service) init(ctx context.Context) error {
	if s.config == nil {
		s.config = DefaultConfig("")
	}
	config := s.config
	if s.node == "" {
		s.node = config.Node
	}
	if s.node == "" {
		return fmt.Errorf("node name is required")
	}
	if config.Tracing.Enabled {
		if err := tracing.Init(config.Tracing.ServiceName, Version, config.Tracing.OutputFile); err != nil {
			return fmt.Errorf("failed to initialise tracing: %w", err)
		}
	}
	var err error
	if s.artifacts == nil {
		if s.artifacts, err = afstore.New(ctx, config.Storage.ArtifactsURL); err != nil {
			return err
		}
	}
	if s.lister == nil {
		s.lister = bundle.Lister{}
		if config.Lister.Command != "" {
			inspector := command.New(config.Lister.Command, command.WithTimeout(config.Lister.Timeout), command.WithTempURL(config.Lister.TempURL))
			s.closers = append(s.closers, inspector)
			s.lister = inspector
		}
	}
	if s.spawner == nil {
		env, err := secret.New().Environment(ctx, config.Process.Env, config.Process.Secrets)
		if err != nil {
			return fmt.Errorf("failed to reveal process secrets: %w", err)
		}
		s.spawner = local.New(config.Storage.WorkDir, config.Storage.LogsDir,
			local.WithDefaultCommand(config.Process.DefaultCommand...),
			local.WithKeepWorkDir(config.Process.KeepWorkDir),
			local.WithEnvironment(env),
			local.WithLogger(s.logger))
	}
	if s.jobs == nil {
		if config.Storage.LedgerURL == "" {
			s.jobs = jmemory.New()
		} else if s.jobs, err = jfs.New(ctx, config.Storage.LedgerURL, jfs.WithLogger(s.logger)); err != nil {
			return err
		}
	}
	if s.events == nil && config.Events.Vendor != "" {
		if s.events, err = newEventService(ctx, config.Events, s.logger); err != nil {
			return err
		}
		s.ownEvents = true
	}
	if s.events != nil {
		if s.publisher, err = event.PublisherOf[job.Job](ctx, s.events); err != nil {
			return fmt.Errorf("failed to create job event publisher: %w", err)
		}
	}
	s.progress = progress.New(s.node)
	s.ledger = ledger.New(
		ledger.WithDAO(s.jobs),
		ledger.WithFinishedToKeep(config.Ledger.FinishedToKeep),
		ledger.WithObserver(s.observe),
		ledger.WithLogger(s.logger),
	)
	existing, err := s.ledger.List(ctx, "", job.StatePending, job.StateRunning)
	if err != nil {
		return fmt.Errorf("failed to read job ledger: %w", err)
	}
	s.progress.Seed(existing)
	s.launcher, err = launcher.New(
		launcher.WithConfig(config.Launcher),
		launcher.WithArtifacts(s.artifacts),
		launcher.WithLister(s.lister),
		launcher.WithSpawner(s.spawner),
		launcher.WithLedger(s.ledger),
		launcher.WithLogger(s.logger),
	)
	return err
}

func newEventService(ctx context.Context, config EventsConfig, logger *slog.Logger) (*event.Service, error) {
	options := []event.Option{event.WithLogger(logger)}
	switch config.Vendor {
	case messaging.VendorFs:
		options = append(options, event.WithNewFsQueueConfig(func(name string) mfs.Config {
			return mfs.Config{BaseURL: url.Join(config.BaseURL, name), MaxRetries: config.MaxRetries}
		}))
	case messaging.VendorMemory:
		options = append(options, event.WithNewMemoryQueueConfig(func(string) mmemory.Config {
			ret := mmemory.DefaultConfig()
			ret.DropWhenFull = true
			if config.BufferSize > 0 {
				ret.QueueBuffer = config.BufferSize
			}
			if config.MaxRetries > 0 {
				ret.MaxRetries = config.MaxRetries
			}
			return ret
		}))
	}
	return event.New(ctx, config.Vendor, options...)
}

// observe keeps the counters and the transition feed in step with the ledger.
func (s *Service) observe(ctx context.Context, previous job.State, snapshot *job.Job) {
	if previous != snapshot.State {
		s.progress.Transition(previous, snapshot.State)
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event.NewJobEvent(s.node, previous, snapshot)); err != nil {
		s.logger.Warn("failed to publish job event", "job", snapshot.ID, "state", snapshot.State, "error", err)
	}
}

// Node returns the node name
func (s *Service) Node() string {
	return s.node
}

// Events returns the transition feed, or nil when it is disabled
func (s *Service) Events() *event.Service {
	return s.events
}

// Start recovers queued jobs from the ledger and starts admitting them.
func (s *Service) Start(ctx context.Context) error {
	if err := s.launcher.Start(ctx); err != nil {
		return err
	}
	s.logger.Info("taskd started", "node", s.node, "slots", s.launcher.Slots())
	return nil
}

// Shutdown stops the launcher and releases the resources the service owns.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.launcher.Shutdown(ctx)
	s.ledger.WaitPruned()
	return errors.Join(err, s.close())
}

func (s *Service) close() error {
	var errs []error
	for _, closer := range s.closers {
		errs = append(errs, closer.Close())
	}
	s.closers = nil
	if s.ownEvents && s.events != nil {
		s.events.Close()
	}
	return errors.Join(errs...)
}

// UploadVersion inspects blob and stores it as project/version. Corrupt
// bundles are rejected before anything is stored.
func (s *Service) UploadVersion(ctx context.Context, project, version string, blob []byte) (ret *VersionReceipt, err error) {
	ctx, span := tracing.StartSpan(ctx, "taskd.uploadVersion", "INTERNAL")
	span.WithAttributes(map[string]string{"project": project, "version": version})
	defer func() { tracing.EndSpan(span, err) }()

	if err = model.ValidateIdentifiers("project", project, "version", version); err != nil {
		return nil, err
	}
	tasks, err := s.lister.List(ctx, blob)
	if err != nil {
		return nil, err
	}
	if err = s.artifacts.Put(ctx, project, version, blob); err != nil {
		return nil, err
	}
	s.logger.Info("version uploaded", "project", project, "version", version, "tasks", len(tasks))
	return &VersionReceipt{Node: s.node, Project: project, Version: version, Tasks: tasks}, nil
}

// DeleteVersion removes one version of a project.
func (s *Service) DeleteVersion(ctx context.Context, project, version string) (*Receipt, error) {
	if err := s.artifacts.DeleteVersion(ctx, project, version); err != nil {
		return nil, err
	}
	s.logger.Info("version deleted", "project", project, "version", version)
	return &Receipt{Node: s.node}, nil
}

// DeleteProject removes a project with all its versions. Queued jobs of the
// project stay queued; they fail with noSuchVersion when admitted unless a
// new version is uploaded first.
func (s *Service) DeleteProject(ctx context.Context, project string) (*Receipt, error) {
	if err := s.artifacts.DeleteProject(ctx, project); err != nil {
		return nil, err
	}
	s.logger.Info("project deleted", "project", project)
	return &Receipt{Node: s.node}, nil
}

// ListProjects returns every known project, including empty ones.
func (s *Service) ListProjects(ctx context.Context) ([]string, error) {
	return s.artifacts.Projects(ctx)
}

// ListVersions returns project versions in ascending order.
func (s *Service) ListVersions(ctx context.Context, project string) ([]string, error) {
	return s.artifacts.Versions(ctx, project)
}

// ListTasks returns the task names of a version, or of the latest version
// when version is empty.
func (s *Service) ListTasks(ctx context.Context, project, version string) ([]string, error) {
	anArtifact, err := s.resolve(ctx, project, version)
	if err != nil {
		return nil, err
	}
	return s.lister.List(ctx, anArtifact.Blob)
}

func (s *Service) resolve(ctx context.Context, project, version string) (*artifact.Artifact, error) {
	if err := model.ValidateIdentifier("project", project); err != nil {
		return nil, err
	}
	if version != "" {
		if err := model.ValidateIdentifier("version", version); err != nil {
			return nil, err
		}
	}
	ret, err := s.artifacts.Get(ctx, project, version)
	if err != nil {
		return nil, err
	}
	if ret == nil {
		if version == "" {
			return nil, fmt.Errorf("project %s has no versions: %w", project, model.ErrNotFound)
		}
		return nil, fmt.Errorf("project %s version %s: %w", project, version, model.ErrNotFound)
	}
	return ret, nil
}

// Enqueue validates a request, records a PENDING job and hands it to the
// launcher. A rejected request never creates a job.
func (s *Service) Enqueue(ctx context.Context, request *EnqueueRequest) (ret *JobReceipt, err error) {
	if request == nil {
		return nil, fmt.Errorf("enqueue request was nil")
	}
	ctx, span := tracing.StartSpan(ctx, "taskd.enqueue", "INTERNAL")
	span.WithAttributes(map[string]string{"project": request.Project, "task": request.Task, "version": request.Version})
	defer func() { tracing.EndSpan(span, err) }()

	if err = model.ValidateIdentifiers("project", request.Project, "task", request.Task); err != nil {
		return nil, err
	}
	tasks, err := s.ListTasks(ctx, request.Project, request.Version)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(tasks, request.Task) {
		return nil, fmt.Errorf("task %s in project %s: %w", request.Task, request.Project, model.ErrNoSuchTask)
	}
	if !s.launcher.Accepting() {
		return nil, launcher.ErrStopped
	}
	aJob := job.New(request.Project, request.Task, request.Version, request.Args)
	if err = s.ledger.Create(ctx, aJob); err != nil {
		return nil, err
	}
	if err = s.launcher.Submit(ctx, aJob.Project, aJob.ID); err != nil {
		s.withdraw(aJob)
		return nil, err
	}
	s.logger.Debug("job enqueued", "job", aJob.ID, "project", aJob.Project, "task", aJob.Task)
	return &JobReceipt{Node: s.node, JobID: aJob.ID}, nil
}

// withdraw removes a job that was recorded but could not be queued.
func (s *Service) withdraw(aJob *job.Job) {
	if err := s.ledger.Delete(context.Background(), aJob.ID); err != nil {
		s.logger.Error("failed to withdraw unqueued job", "job", aJob.ID, "error", err)
		return
	}
	s.progress.Transition(job.StatePending, "")
}

// Cancel cancels a pending or running job. Cancelling a job that already
// ended is a no-op reporting its final state.
func (s *Service) Cancel(ctx context.Context, id string) (*CancelReceipt, error) {
	previous, err := s.launcher.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CancelReceipt{Node: s.node, Previous: previous}, nil
}

// JobStatus returns a job snapshot.
func (s *Service) JobStatus(ctx context.Context, id string) (*job.Job, error) {
	return s.ledger.Get(ctx, id)
}

// ListJobs returns jobs of project (every project when empty), optionally
// filtered by state, ordered by enqueue time.
func (s *Service) ListJobs(ctx context.Context, project string, states ...job.State) ([]*job.Job, error) {
	if project != "" {
		if err := model.ValidateIdentifier("project", project); err != nil {
			return nil, err
		}
	}
	for _, state := range states {
		if !state.IsValid() {
			return nil, fmt.Errorf("unknown job state: %q", state)
		}
	}
	return s.ledger.List(ctx, project, states...)
}

// Status reports scheduler load and outcome counters.
func (s *Service) Status(ctx context.Context) (*DaemonStatus, error) {
	stats, err := s.launcher.Stats(ctx)
	if err != nil {
		return nil, err
	}
	counters := s.progress.Snapshot()
	return &DaemonStatus{
		Node:      s.node,
		Slots:     stats.Slots,
		Pending:   stats.Pending,
		Launching: stats.Launching,
		Running:   stats.Running,
		Finished:  counters.Finished,
		Failed:    counters.Failed,
		Cancelled: counters.Cancelled,
	}, nil
}
