package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/taskd/internal/clock"
	"github.com/viant/taskd/model"
	"github.com/viant/taskd/model/job"
	"github.com/viant/taskd/service/dao"
	"github.com/viant/taskd/service/dao/job/fs"
	"github.com/viant/taskd/service/dao/job/memory"
)

// steppingClock advances by one second on every call.
func steppingClock(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	prev := clock.NowFunc
	clock.NowFunc = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	t.Cleanup(func() { clock.NowFunc = prev })
}

func TestService_Lifecycle(t *testing.T) {
	steppingClock(t)
	ctx := context.Background()
	type change struct {
		previous job.State
		state    job.State
	}
	var changes []change
	srv := New(WithObserver(func(_ context.Context, previous job.State, snapshot *job.Job) {
		changes = append(changes, change{previous, snapshot.State})
	}))

	first := job.New("p1", "spiderA", "", nil)
	second := job.New("p1", "spiderB", "", nil)
	other := job.New("p2", "spiderA", "", nil)
	for _, aJob := range []*job.Job{second, other, first} {
		require.NoError(t, srv.Create(ctx, aJob))
	}

	listed, err := srv.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, first.ID, listed[0].ID, "ordered by enqueue time")

	running, err := srv.RecordTransition(ctx, first.ID, &job.Transition{To: job.StateRunning, PID: 10, Version: "3"})
	require.NoError(t, err)
	assert.Equal(t, job.StateRunning, running.State)
	assert.Equal(t, "3", running.ResolvedVersion)

	flagged, err := srv.MarkCancelRequested(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, flagged.CancelRequested)

	_, err = srv.RecordTransition(ctx, first.ID, &job.Transition{To: job.StateCancelled, Detail: job.NewDetail(job.ReasonCancelled, "")})
	require.NoError(t, err)
	_, err = srv.RecordTransition(ctx, first.ID, &job.Transition{To: job.StateFinished})
	assert.Error(t, err, "terminal states never change")

	pending, err := srv.List(ctx, "", job.StatePending)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	terminal, err := srv.List(ctx, "p1", job.StateCancelled, job.StateFailed)
	require.NoError(t, err)
	assert.Len(t, terminal, 1)

	_, err = srv.Get(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = srv.RecordTransition(ctx, "missing", &job.Transition{To: job.StateRunning})
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.Equal(t, []change{
		{"", job.StatePending},
		{"", job.StatePending},
		{"", job.StatePending},
		{job.StatePending, job.StateRunning},
		{job.StateRunning, job.StateCancelled},
	}, changes)
}

func TestService_Prune(t *testing.T) {
	steppingClock(t)
	ctx := context.Background()
	jobs, err := fs.New(ctx, t.TempDir())
	require.NoError(t, err)
	srv := New(WithDAO(jobs), WithFinishedToKeep(2))

	var ids []string
	for i := 0; i < 4; i++ {
		aJob := job.New("p1", "spiderA", "", nil)
		require.NoError(t, srv.Create(ctx, aJob))
		ids = append(ids, aJob.ID)
	}
	live := job.New("p1", "spiderA", "", nil)
	require.NoError(t, srv.Create(ctx, live))
	unrelated := job.New("p2", "spiderA", "", nil)
	require.NoError(t, srv.Create(ctx, unrelated))
	_, err = srv.RecordTransition(ctx, unrelated.ID, &job.Transition{To: job.StateFailed, Detail: job.NewDetail(job.ReasonNoSuchVersion, "")})
	require.NoError(t, err)

	for _, id := range ids {
		_, err := srv.RecordTransition(ctx, id, &job.Transition{To: job.StateFailed, Detail: job.NewDetail(job.ReasonNoSuchTask, "")})
		require.NoError(t, err)
	}
	srv.WaitPruned()

	remaining, err := srv.List(ctx, "p1")
	require.NoError(t, err)
	var remainingIDs []string
	for _, aJob := range remaining {
		remainingIDs = append(remainingIDs, aJob.ID)
	}
	assert.ElementsMatch(t, []string{ids[2], ids[3], live.ID}, remainingIDs)

	_, err = srv.Get(ctx, unrelated.ID)
	assert.NoError(t, err, "other projects are pruned independently")
}

func TestService_KeepEverything(t *testing.T) {
	ctx := context.Background()
	srv := New(WithFinishedToKeep(0))
	for i := 0; i < 3; i++ {
		aJob := job.New("p", "t", "", nil)
		require.NoError(t, srv.Create(ctx, aJob))
		_, err := srv.RecordTransition(ctx, aJob.ID, &job.Transition{To: job.StateCancelled, Detail: job.NewDetail(job.ReasonCancelled, "")})
		require.NoError(t, err)
	}
	srv.WaitPruned()
	all, err := srv.List(ctx, "p")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// blockingDAO holds List calls until release is closed.
type blockingDAO struct {
	*memory.Service
	listing chan struct{}
	release chan struct{}
}

func (d *blockingDAO) List(ctx context.Context, parameters ...*dao.Parameter) ([]*job.Job, error) {
	select {
	case d.listing <- struct{}{}:
	default:
	}
	<-d.release
	return d.Service.List(ctx, parameters...)
}

func TestService_PruneRunsInBackground(t *testing.T) {
	ctx := context.Background()
	jobs := &blockingDAO{Service: memory.New(), listing: make(chan struct{}, 1), release: make(chan struct{})}
	srv := New(WithDAO(jobs), WithFinishedToKeep(1))

	var ids []string
	for i := 0; i < 3; i++ {
		aJob := job.New("p", "t", "", nil)
		require.NoError(t, srv.Create(ctx, aJob))
		ids = append(ids, aJob.ID)
	}
	recorded := make(chan error, 1)
	go func() {
		var err error
		for _, id := range ids {
			if _, err = srv.RecordTransition(ctx, id, &job.Transition{To: job.StateCancelled, Detail: job.NewDetail(job.ReasonCancelled, "")}); err != nil {
				break
			}
		}
		recorded <- err
	}()
	select {
	case err := <-recorded:
		require.NoError(t, err, "terminal transitions do not wait for pruning")
	case <-time.After(2 * time.Second):
		t.Fatal("RecordTransition blocked on a pending prune")
	}
	select {
	case <-jobs.listing:
	case <-time.After(2 * time.Second):
		t.Fatal("prune never started")
	}
	close(jobs.release)
	srv.WaitPruned()

	remaining, err := jobs.Service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	srv := New()
	aJob := job.New("p", "t", "", nil)
	require.NoError(t, srv.Create(ctx, aJob))
	require.NoError(t, srv.Delete(ctx, aJob.ID))
	_, err := srv.Get(ctx, aJob.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, srv.Delete(ctx, aJob.ID), model.ErrNotFound)
}
