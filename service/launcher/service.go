// Package launcher admits queued jobs into a bounded number of execution
// slots, spawns one supervised process per job and records every outcome in
// the ledger.
//
// All scheduling state is owned by a single coordinator goroutine. Callers,
// launch workers and exit watchers talk to it through its inbox, so slot
// accounting and queue mutation never race.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/taskd/internal/clock"
	"github.com/viant/taskd/model"
	"github.com/viant/taskd/model/job"
	"github.com/viant/taskd/service/artifact"
	"github.com/viant/taskd/service/ledger"
	"github.com/viant/taskd/service/lister"
	"github.com/viant/taskd/service/process"
	"github.com/viant/taskd/service/queue"
	"github.com/viant/taskd/tracing"
)

const inboxSize = 1024

// ErrStopped is returned for requests made after Shutdown.
var ErrStopped = errors.New("launcher stopped")

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Slots     int
	Pending   int
	Launching int
	Running   int
}

// Service is the launcher.
type Service struct {
	config    Config
	artifacts artifact.Store
	lister    lister.Lister
	spawner   process.Spawner
	ledger    *ledger.Service
	logger    *slog.Logger

	inbox     chan any
	done      chan struct{}
	lifecycle sync.Mutex
	started   atomic.Bool
	stopped   atomic.Bool
	stopOnce  sync.Once
	workers  sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	// coordinator state
	queue     *queue.Queue
	launching map[string]*launch
	running   map[string]*supervised
	attempts  map[string]int
	stopping  bool
	wake      *time.Timer
}

type launch struct {
	job       *job.Job
	cancelled bool
}

type supervised struct {
	job             *job.Job
	handle          process.Handle
	cancelRequested bool
	shutdown        bool
	killTimer       *time.Timer
}

type (
	enqueueMsg struct {
		project, id string
	}
	cancelMsg struct {
		id    string
		reply chan cancelResult
	}
	cancelResult struct {
		previous job.State
		err      error
	}
	launchedMsg struct {
		id      string
		version string
		handle  process.Handle
		reason  job.Reason
		message string
		err     error
	}
	exitedMsg struct {
		id   string
		exit job.Exit
	}
	killMsg struct {
		id string
	}
	statsMsg struct {
		reply chan Stats
	}
	wakeMsg     struct{}
	shutdownMsg struct{}
	killAllMsg  struct{}
)

// New creates a launcher
func New(options ...Option) (*Service, error) {
	ret := &Service{
		config:    DefaultConfig(),
		logger:    slog.Default(),
		inbox:     make(chan any, inboxSize),
		done:      make(chan struct{}),
		queue:     queue.New(),
		launching: make(map[string]*launch),
		running:   make(map[string]*supervised),
		attempts:  make(map[string]int),
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.artifacts == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if ret.lister == nil {
		return nil, fmt.Errorf("task lister is required")
	}
	if ret.spawner == nil {
		return nil, fmt.Errorf("process spawner is required")
	}
	if ret.ledger == nil {
		return nil, fmt.Errorf("job ledger is required")
	}
	if err := ret.config.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// Slots returns the configured number of execution slots.
func (s *Service) Slots() int {
	return s.config.Slots()
}

// Start recovers ledger state from a previous run and starts the coordinator.
// PENDING jobs are queued again in enqueue order; RUNNING jobs cannot be
// adopted and are recorded as orphaned failures.
func (s *Service) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.stopped.Load() {
		return ErrStopped
	}
	if s.started.Load() {
		return fmt.Errorf("launcher already started")
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	// TODO: adopt orphaned processes by pid instead of failing them once the
	// ledger records enough to re-attach exit watchers.
	orphans, err := s.ledger.List(ctx, "", job.StateRunning)
	if err != nil {
		return fmt.Errorf("failed to recover running jobs: %w", err)
	}
	pending, err := s.ledger.List(ctx, "", job.StatePending)
	if err != nil {
		return fmt.Errorf("failed to recover pending jobs: %w", err)
	}
	for _, orphan := range orphans {
		s.logger.Warn("failing orphaned job", "job", orphan.ID, "project", orphan.Project, "pid", orphan.PID)
		if _, err := s.ledger.RecordTransition(ctx, orphan.ID, &job.Transition{
			To:     job.StateFailed,
			Detail: job.NewDetail(job.ReasonOrphaned, fmt.Sprintf("daemon restarted while pid %d was running", orphan.PID)),
		}); err != nil {
			return fmt.Errorf("failed to record orphaned job %s: %w", orphan.ID, err)
		}
	}
	for _, aJob := range pending {
		s.queue.Push(aJob.Project, aJob.ID)
	}
	if len(pending) > 0 {
		s.logger.Info("recovered pending jobs", "count", len(pending))
	}

	s.started.Store(true)
	go s.run()
	return nil
}

// Submit queues a job already recorded PENDING in the ledger. It never
// blocks on execution. Before Start it is a no-op: Start queues every
// PENDING job it finds in the ledger.
func (s *Service) Submit(ctx context.Context, project, id string) error {
	if s.stopped.Load() {
		return ErrStopped
	}
	s.lifecycle.Lock()
	started := s.started.Load()
	s.lifecycle.Unlock()
	if !started {
		return nil
	}
	return s.post(ctx, enqueueMsg{project: project, id: id})
}

// Accepting reports whether Submit still takes new jobs.
func (s *Service) Accepting() bool {
	return !s.stopped.Load()
}

// Cancel cancels a job and returns the state it was in before the call.
// A RUNNING job is signalled and finalised asynchronously when it exits;
// cancelling a terminal job is a no-op.
func (s *Service) Cancel(ctx context.Context, id string) (job.State, error) {
	if !s.started.Load() {
		return s.cancelStored(ctx, id)
	}
	reply := make(chan cancelResult, 1)
	if err := s.post(ctx, cancelMsg{id: id, reply: reply}); err != nil {
		return "", err
	}
	select {
	case result := <-reply:
		return result.previous, result.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return s.cancelStored(ctx, id)
	}
}

// Stats returns the current scheduler counters.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	if !s.started.Load() {
		return &Stats{Slots: s.Slots()}, nil
	}
	reply := make(chan Stats, 1)
	if err := s.post(ctx, statsMsg{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case stats := <-reply:
		return &stats, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return &Stats{Slots: s.Slots()}, nil
	}
}

// Shutdown stops admission and terminates running jobs, recording them as
// failed with reason shutdown. Jobs still alive when ctx ends are killed.
// Queued jobs stay PENDING in the ledger for the next start.
func (s *Service) Shutdown(ctx context.Context) error {
	s.lifecycle.Lock()
	s.stopped.Store(true)
	started := s.started.Load()
	s.lifecycle.Unlock()
	if !started {
		return nil
	}
	s.stopOnce.Do(func() {
		_ = s.post(context.Background(), shutdownMsg{})
	})
	var err error
	select {
	case <-s.done:
	case <-ctx.Done():
		err = ctx.Err()
		_ = s.post(context.Background(), killAllMsg{})
		<-s.done
	}
	s.workers.Wait()
	s.cancel()
	return err
}

func (s *Service) post(ctx context.Context, msg any) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case s.inbox <- msg:
		return nil
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run() {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()
	s.admit()
	for {
		select {
		case msg := <-s.inbox:
			s.handle(msg)
		case <-ticker.C:
			s.admit()
		}
		if s.stopping && len(s.running) == 0 && len(s.launching) == 0 {
			if s.wake != nil {
				s.wake.Stop()
			}
			close(s.done)
			return
		}
	}
}

func (s *Service) handle(msg any) {
	switch actual := msg.(type) {
	case enqueueMsg:
		if _, ok := s.launching[actual.id]; ok {
			return
		}
		if _, ok := s.running[actual.id]; ok {
			return
		}
		s.queue.Push(actual.project, actual.id)
		s.admit()
	case cancelMsg:
		previous, err := s.cancelJob(actual.id)
		actual.reply <- cancelResult{previous: previous, err: err}
	case launchedMsg:
		s.launched(actual)
		s.admit()
	case exitedMsg:
		s.exited(actual)
		s.admit()
	case killMsg:
		if r, ok := s.running[actual.id]; ok {
			s.logger.Warn("grace period elapsed, killing job", "job", actual.id, "pid", r.handle.PID())
			if err := r.handle.Kill(); err != nil {
				s.logger.Error("failed to kill job", "job", actual.id, "error", err)
			}
		}
	case statsMsg:
		actual.reply <- Stats{
			Slots:     s.Slots(),
			Pending:   s.queue.Len(),
			Launching: len(s.launching),
			Running:   len(s.running),
		}
	case wakeMsg:
		s.admit()
	case shutdownMsg:
		s.stopping = true
		for id, r := range s.running {
			r.shutdown = true
			if err := r.handle.Terminate(); err != nil {
				s.logger.Error("failed to terminate job", "job", id, "error", err)
			}
		}
		s.logger.Info("launcher stopping", "running", len(s.running), "launching", len(s.launching), "queued", s.queue.Len())
	case killAllMsg:
		s.cancel()
		for id, r := range s.running {
			if err := r.handle.Kill(); err != nil {
				s.logger.Error("failed to kill job", "job", id, "error", err)
			}
		}
	}
}

// admit moves queued jobs into free slots. The slow part of a launch runs in
// a worker goroutine that reports back with launchedMsg.
func (s *Service) admit() {
	if s.stopping {
		return
	}
	now := clock.Now()
	for len(s.running)+len(s.launching) < s.Slots() {
		project, id, ok := s.queue.Next(now)
		if !ok {
			break
		}
		aJob, err := s.ledger.Get(s.ctx, id)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				s.logger.Warn("dropping queued job missing from the ledger", "job", id)
				continue
			}
			s.logger.Error("failed to read queued job, deferring", "job", id, "error", err)
			s.queue.PushFront(project, id, now.Add(s.config.PollInterval))
			continue
		}
		if aJob.State != job.StatePending {
			continue
		}
		l := &launch{job: aJob}
		s.launching[id] = l
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			s.launch(s.ctx, l.job)
		}()
	}
	s.scheduleWake(now)
}

// scheduleWake re-runs admission when a deferred retry becomes ready before
// the next poll.
func (s *Service) scheduleWake(now time.Time) {
	next := s.queue.NextReady(now)
	if next.IsZero() {
		return
	}
	delay := next.Sub(now)
	if s.wake == nil {
		s.wake = time.AfterFunc(delay, func() { _ = s.post(context.Background(), wakeMsg{}) })
		return
	}
	s.wake.Reset(delay)
}

// launch resolves the version at dispatch time, validates the task and
// spawns the process. It runs outside the coordinator.
func (s *Service) launch(ctx context.Context, aJob *job.Job) {
	result := launchedMsg{id: aJob.ID}
	ctx, span := tracing.StartSpan(ctx, "launcher.launch", "INTERNAL")
	span.WithAttributes(map[string]string{"job.id": aJob.ID, "job.project": aJob.Project, "job.task": aJob.Task})
	defer func() {
		tracing.EndSpan(span, errors.Join(result.err, reasonError(result.reason, result.message)))
		_ = s.post(context.Background(), result)
	}()

	anArtifact, err := s.artifacts.Get(ctx, aJob.Project, aJob.Version)
	if err != nil {
		result.err = fmt.Errorf("%w: failed to read artifact: %v", model.ErrSpawnFailure, err)
		return
	}
	if anArtifact == nil {
		version := aJob.Version
		if version == "" {
			version = "latest"
		}
		result.reason, result.message = job.ReasonNoSuchVersion, fmt.Sprintf("project %s has no version %s", aJob.Project, version)
		return
	}
	result.version = anArtifact.Version
	tasks, err := s.lister.List(ctx, anArtifact.Blob)
	if err != nil {
		if errors.Is(err, model.ErrCorruptArtifact) {
			result.reason, result.message = job.ReasonCorruptArtifact, err.Error()
			return
		}
		result.err = fmt.Errorf("%w: failed to list tasks: %v", model.ErrSpawnFailure, err)
		return
	}
	if !slices.Contains(tasks, aJob.Task) {
		result.reason, result.message = job.ReasonNoSuchTask, fmt.Sprintf("task %s not found in %s/%s", aJob.Task, aJob.Project, anArtifact.Version)
		return
	}
	handle, err := s.spawner.Spawn(ctx, &process.Spec{
		JobID:   aJob.ID,
		Project: aJob.Project,
		Task:    aJob.Task,
		Version: anArtifact.Version,
		Args:    aJob.Args,
		Bundle:  anArtifact.Blob,
	})
	if err != nil {
		if errors.Is(err, model.ErrCorruptArtifact) {
			result.reason, result.message = job.ReasonCorruptArtifact, err.Error()
			return
		}
		result.err = err
		return
	}
	result.handle = handle
}

func reasonError(reason job.Reason, message string) error {
	if reason == "" {
		return nil
	}
	return fmt.Errorf("%s: %s", reason, message)
}

func (s *Service) launched(msg launchedMsg) {
	l, ok := s.launching[msg.id]
	if !ok {
		return
	}
	delete(s.launching, msg.id)
	aJob := l.job

	switch {
	case msg.handle != nil:
		delete(s.attempts, msg.id)
		r := &supervised{job: aJob, handle: msg.handle}
		s.running[msg.id] = r
		s.record(msg.id, &job.Transition{
			To:      job.StateRunning,
			PID:     msg.handle.PID(),
			Version: msg.version,
			LogURL:  msg.handle.LogURL(),
		})
		s.logger.Info("job started", "job", msg.id, "project", aJob.Project, "task", aJob.Task, "version", msg.version, "pid", msg.handle.PID())
		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			exit := msg.handle.Wait()
			_ = s.post(context.Background(), exitedMsg{id: msg.id, exit: exit})
		}()
		switch {
		case l.cancelled:
			s.terminate(r)
		case s.stopping:
			r.shutdown = true
			_ = msg.handle.Terminate()
		}
	case l.cancelled:
		delete(s.attempts, msg.id)
		s.record(msg.id, &job.Transition{To: job.StateCancelled, Detail: job.NewDetail(job.ReasonCancelled, "cancelled before start")})
	case msg.reason != "":
		delete(s.attempts, msg.id)
		s.logger.Warn("job failed to resolve", "job", msg.id, "project", aJob.Project, "reason", msg.reason, "message", msg.message)
		s.record(msg.id, &job.Transition{To: job.StateFailed, Version: msg.version, Detail: job.NewDetail(msg.reason, msg.message)})
	case s.stopping:
		s.logger.Info("spawn abandoned on shutdown, job stays pending", "job", msg.id)
	default:
		s.attempts[msg.id]++
		attempts := s.attempts[msg.id]
		retry, delay := s.config.shouldRetry(attempts)
		if !retry {
			delete(s.attempts, msg.id)
			s.logger.Error("job spawn failed", "job", msg.id, "project", aJob.Project, "attempts", attempts, "error", msg.err)
			s.record(msg.id, &job.Transition{To: job.StateFailed, Version: msg.version, Detail: job.NewDetail(job.ReasonSpawnFailure, msg.err.Error())})
			return
		}
		s.logger.Warn("job spawn failed, retrying", "job", msg.id, "project", aJob.Project, "attempt", attempts, "delay", delay, "error", msg.err)
		s.queue.PushFront(aJob.Project, msg.id, clock.Now().Add(delay))
	}
}

func (s *Service) exited(msg exitedMsg) {
	r, ok := s.running[msg.id]
	if !ok {
		return
	}
	delete(s.running, msg.id)
	if r.killTimer != nil {
		r.killTimer.Stop()
	}
	exit := msg.exit
	transition := &job.Transition{Exit: &exit}
	switch {
	case r.cancelRequested:
		transition.To, transition.Detail = job.StateCancelled, job.NewDetail(job.ReasonCancelled, exit.String())
	case r.shutdown:
		transition.To, transition.Detail = job.StateFailed, job.NewDetail(job.ReasonShutdown, exit.String())
	case exit.Success():
		transition.To, transition.Detail = job.StateFinished, job.NewDetail(job.ReasonCompleted, "")
	case exit.Signal != "":
		transition.To, transition.Detail = job.StateFailed, job.NewDetail(job.ReasonSignaled, exit.String())
	default:
		transition.To, transition.Detail = job.StateFailed, job.NewDetail(job.ReasonExitCode, exit.String())
	}
	s.record(msg.id, transition)
	s.logger.Info("job exited", "job", msg.id, "project", r.job.Project, "state", transition.To, "exit", exit.String())
}

func (s *Service) cancelJob(id string) (job.State, error) {
	if project, ok := s.queuedProject(id); ok {
		s.queue.Remove(id)
		delete(s.attempts, id)
		s.record(id, &job.Transition{To: job.StateCancelled, Detail: job.NewDetail(job.ReasonCancelled, "cancelled while pending")})
		s.logger.Info("pending job cancelled", "job", id, "project", project)
		return job.StatePending, nil
	}
	if l, ok := s.launching[id]; ok {
		if !l.cancelled {
			l.cancelled = true
			if _, err := s.ledger.MarkCancelRequested(s.ctx, id); err != nil {
				s.logger.Warn("failed to flag cancel", "job", id, "error", err)
			}
		}
		return job.StatePending, nil
	}
	if r, ok := s.running[id]; ok {
		if !r.cancelRequested {
			if _, err := s.ledger.MarkCancelRequested(s.ctx, id); err != nil {
				s.logger.Warn("failed to flag cancel", "job", id, "error", err)
			}
			s.terminate(r)
		}
		return job.StateRunning, nil
	}
	return s.cancelStored(s.ctx, id)
}

func (s *Service) queuedProject(id string) (string, bool) {
	if !s.queue.Contains(id) {
		return "", false
	}
	aJob, err := s.ledger.Get(s.ctx, id)
	if err != nil {
		return "", true
	}
	return aJob.Project, true
}

// terminate signals a running job and arms the kill escalation.
func (s *Service) terminate(r *supervised) {
	r.cancelRequested = true
	id := r.job.ID
	if err := r.handle.Terminate(); err != nil {
		s.logger.Error("failed to terminate job", "job", id, "error", err)
	}
	r.killTimer = time.AfterFunc(s.config.GracePeriod, func() {
		_ = s.post(context.Background(), killMsg{id: id})
	})
}

// cancelStored handles jobs the coordinator does not track.
func (s *Service) cancelStored(ctx context.Context, id string) (job.State, error) {
	aJob, err := s.ledger.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if aJob.State != job.StatePending {
		return aJob.State, nil
	}
	if _, err = s.ledger.RecordTransition(ctx, id, &job.Transition{To: job.StateCancelled, Detail: job.NewDetail(job.ReasonCancelled, "cancelled while pending")}); err != nil {
		return "", err
	}
	return job.StatePending, nil
}

func (s *Service) record(id string, transition *job.Transition) {
	if _, err := s.ledger.RecordTransition(context.WithoutCancel(s.ctx), id, transition); err != nil {
		s.logger.Error("failed to record job transition", "job", id, "state", transition.To, "error", err)
	}
}
