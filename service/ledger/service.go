// Package ledger records every job and its state transitions on top of a
// generic DAO, and prunes old terminal jobs per project.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/viant/taskd/model"
	"github.com/viant/taskd/model/job"
	"github.com/viant/taskd/service/dao"
	"github.com/viant/taskd/service/dao/job/memory"
)

// DefaultFinishedToKeep caps terminal jobs retained per project.
const DefaultFinishedToKeep = 100

// Observer is notified after every recorded change. previous is empty for a
// newly created job.
type Observer func(ctx context.Context, previous job.State, snapshot *job.Job)

// Service is the job ledger.
type Service struct {
	dao            dao.Service[string, job.Job]
	finishedToKeep int
	observers      []Observer
	logger         *slog.Logger
	mux            sync.Mutex

	// pruning runs in the background; pruneCond signals when it goes idle
	pruneMux  sync.Mutex
	pruneCond *sync.Cond
	dirty     map[string]bool
	pruning   bool
}

// Create records a new job.
func (s *Service) Create(ctx context.Context, aJob *job.Job) error {
	if aJob == nil {
		return dao.ErrNilEntity
	}
	if err := s.dao.Save(ctx, aJob); err != nil {
		return fmt.Errorf("failed to create job %s: %w", aJob.ID, err)
	}
	s.notify(ctx, "", aJob)
	return nil
}

// Get returns a job snapshot or model.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*job.Job, error) {
	if id == "" {
		return nil, fmt.Errorf("job %q: %w", id, model.ErrNotFound)
	}
	ret, err := s.dao.Load(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
		}
		return nil, err
	}
	return ret, nil
}

// List returns jobs of project (all projects when empty) in any of states
// (all states when none), ordered by enqueue time.
func (s *Service) List(ctx context.Context, project string, states ...job.State) ([]*job.Job, error) {
	var parameters []*dao.Parameter
	if project != "" {
		parameters = append(parameters, dao.NewParameter("Project", project))
	}
	if len(states) > 0 {
		values := make([]string, len(states))
		for i, state := range states {
			values[i] = string(state)
		}
		parameters = append(parameters, &dao.Parameter{Name: "State", Value: values})
	}
	ret, err := s.dao.List(ctx, parameters...)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ret, func(i, j int) bool {
		if ret[i].EnqueuedAt.Equal(ret[j].EnqueuedAt) {
			return ret[i].ID < ret[j].ID
		}
		return ret[i].EnqueuedAt.Before(ret[j].EnqueuedAt)
	})
	return ret, nil
}

// Delete removes a job record. It is used to withdraw a job that was created
// but could not be queued.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if err := s.dao.Delete(ctx, id); err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return fmt.Errorf("job %s: %w", id, model.ErrNotFound)
		}
		return err
	}
	return nil
}

// RecordTransition applies a transition through the job state machine and
// persists the result. Terminal transitions schedule a background prune of
// the project.
func (s *Service) RecordTransition(ctx context.Context, id string, transition *job.Transition) (*job.Job, error) {
	s.mux.Lock()
	aJob, err := s.Get(ctx, id)
	if err != nil {
		s.mux.Unlock()
		return nil, err
	}
	previous := aJob.State
	if err = aJob.Apply(transition); err != nil {
		s.mux.Unlock()
		return nil, err
	}
	if err = s.dao.Save(ctx, aJob); err != nil {
		s.mux.Unlock()
		return nil, fmt.Errorf("failed to record job %s transition: %w", id, err)
	}
	s.mux.Unlock()

	s.notify(ctx, previous, aJob)
	if aJob.State.IsTerminal() && s.finishedToKeep > 0 {
		s.schedulePrune(ctx, aJob.Project)
	}
	return aJob.Clone(), nil
}

// MarkCancelRequested flags a job so that its exit is recorded as cancelled.
func (s *Service) MarkCancelRequested(ctx context.Context, id string) (*job.Job, error) {
	s.mux.Lock()
	defer s.mux.Unlock()
	aJob, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if aJob.CancelRequested || aJob.State.IsTerminal() {
		return aJob, nil
	}
	aJob.CancelRequested = true
	if err = s.dao.Save(ctx, aJob); err != nil {
		return nil, fmt.Errorf("failed to flag job %s: %w", id, err)
	}
	return aJob.Clone(), nil
}

// Prune evicts the oldest terminal jobs of project beyond FinishedToKeep.
func (s *Service) Prune(ctx context.Context, project string) error {
	if s.finishedToKeep <= 0 {
		return nil
	}
	terminal, err := s.List(ctx, project, job.StateFinished, job.StateFailed, job.StateCancelled)
	if err != nil {
		return err
	}
	excess := len(terminal) - s.finishedToKeep
	if excess <= 0 {
		return nil
	}
	sort.SliceStable(terminal, func(i, j int) bool {
		return endedAt(terminal[i]).Before(endedAt(terminal[j]))
	})
	var errs []error
	for _, aJob := range terminal[:excess] {
		if err := s.dao.Delete(ctx, aJob.ID); err != nil && !errors.Is(err, dao.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// schedulePrune marks project for pruning and starts the pruning goroutine
// unless one is already draining the marked projects.
func (s *Service) schedulePrune(ctx context.Context, project string) {
	s.pruneMux.Lock()
	defer s.pruneMux.Unlock()
	s.dirty[project] = true
	if s.pruning {
		return
	}
	s.pruning = true
	go s.pruneDirty(context.WithoutCancel(ctx))
}

func (s *Service) pruneDirty(ctx context.Context) {
	for {
		s.pruneMux.Lock()
		if len(s.dirty) == 0 {
			s.pruning = false
			s.pruneCond.Broadcast()
			s.pruneMux.Unlock()
			return
		}
		projects := make([]string, 0, len(s.dirty))
		for project := range s.dirty {
			projects = append(projects, project)
		}
		clear(s.dirty)
		s.pruneMux.Unlock()

		for _, project := range projects {
			if err := s.Prune(ctx, project); err != nil {
				s.logger.Warn("failed to prune jobs", "project", project, "error", err)
			}
		}
	}
}

// WaitPruned blocks until no background prune is in progress.
func (s *Service) WaitPruned() {
	s.pruneMux.Lock()
	defer s.pruneMux.Unlock()
	for s.pruning {
		s.pruneCond.Wait()
	}
}

func endedAt(aJob *job.Job) time.Time {
	if aJob.EndedAt != nil {
		return *aJob.EndedAt
	}
	return aJob.EnqueuedAt
}

func (s *Service) notify(ctx context.Context, previous job.State, aJob *job.Job) {
	for _, observer := range s.observers {
		observer(ctx, previous, aJob.Clone())
	}
}

// New creates a ledger. Without WithDAO jobs are kept in memory.
func New(options ...Option) *Service {
	ret := &Service{
		finishedToKeep: DefaultFinishedToKeep,
		logger:         slog.Default(),
		dirty:          make(map[string]bool),
	}
	ret.pruneCond = sync.NewCond(&ret.pruneMux)
	for _, opt := range options {
		opt(ret)
	}
	if ret.dao == nil {
		ret.dao = memory.New()
	}
	return ret
}
