package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/taskd/model/job"
)

func TestProgress_Transition(t *testing.T) {
	tracker := New("node-1")

	tracker.Transition("", job.StatePending)
	tracker.Transition(job.StatePending, job.StateRunning)
	assert.Equal(t, 1, tracker.Snapshot().Running)
	tracker.Transition(job.StateRunning, job.StateFinished)
	tracker.Transition("", job.StatePending)
	tracker.Transition(job.StatePending, job.StateCancelled)

	snapshot := tracker.Snapshot()
	assert.Equal(t, "node-1", snapshot.Node)
	assert.False(t, snapshot.StartedAt.IsZero())
	assert.Equal(t, 0, snapshot.Pending)
	assert.Equal(t, 0, snapshot.Running)
	assert.Equal(t, 1, snapshot.Finished)
	assert.Equal(t, 1, snapshot.Cancelled)
}

func TestProgress_Seed(t *testing.T) {
	tracker := New("n")
	pending := job.New("p", "a", "", nil)
	running := job.New("p", "b", "", nil)
	running.State = job.StateRunning
	tracker.Seed([]*job.Job{pending, running})
	tracker.Transition(job.StateRunning, job.StateFailed)

	snapshot := tracker.Snapshot()
	assert.Equal(t, 1, snapshot.Pending)
	assert.Equal(t, 0, snapshot.Running)
	assert.Equal(t, 1, snapshot.Failed)
}

func TestProgress_Concurrent(t *testing.T) {
	tracker := New("n")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Update(Delta{Failed: 1})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, tracker.Snapshot().Failed)

	var nilTracker *Progress
	assert.NotPanics(t, func() { nilTracker.Update(Delta{Failed: 1}) })
	assert.Equal(t, Counters{}, nilTracker.Snapshot())
}
