package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/taskd/model/job"
)

func snapshot(aJob *job.Job, state job.State) *job.Job {
	ret := aJob.Clone()
	ret.State = state
	return ret
}

func TestQueue_TransitionOrder(t *testing.T) {
	queue := NewQueue[job.Job](DefaultConfig())
	ctx := context.Background()
	aJob := job.New("p1", "spiderA", "", nil)

	states := []job.State{job.StatePending, job.StateRunning, job.StateFinished}
	for _, state := range states {
		require.NoError(t, queue.Publish(ctx, snapshot(aJob, state)))
	}
	assert.Equal(t, 3, queue.Size())

	for _, expected := range states {
		message, err := queue.Consume(ctx)
		require.NoError(t, err)
		assert.Equal(t, aJob.ID, message.T().ID)
		assert.Equal(t, expected, message.T().State)
		require.NoError(t, message.Ack())
		assert.Error(t, message.Ack(), "a message is acknowledged once")
	}
	assert.Equal(t, 0, queue.Size())
}

func TestQueue_DropWhenFull(t *testing.T) {
	testCases := []struct {
		description string
		buffer      int
		published   int
		kept        int
	}{
		{description: "room left", buffer: 4, published: 3, kept: 3},
		{description: "exactly full", buffer: 2, published: 2, kept: 2},
		{description: "overflow dropped", buffer: 2, published: 5, kept: 2},
	}
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			config := DefaultConfig()
			config.QueueBuffer = tc.buffer
			config.DropWhenFull = true
			queue := NewQueue[job.Job](config)
			ctx := context.Background()

			var ids []string
			dropped := 0
			for i := 0; i < tc.published; i++ {
				aJob := job.New("p1", "spiderA", "", nil)
				ids = append(ids, aJob.ID)
				err := queue.Publish(ctx, aJob)
				if errors.Is(err, ErrFull) {
					dropped++
					continue
				}
				require.NoError(t, err)
			}
			assert.Equal(t, tc.kept, queue.Size())
			assert.Equal(t, tc.published-tc.kept, dropped)

			for i := 0; i < tc.kept; i++ {
				message, err := queue.Consume(ctx)
				require.NoError(t, err)
				assert.Equal(t, ids[i], message.T().ID, "the oldest transitions are kept")
			}
			assert.NoError(t, queue.Publish(ctx, job.New("p1", "spiderA", "", nil)), "a drained queue accepts again")
		})
	}
}

func TestQueue_NackRedelivers(t *testing.T) {
	config := DefaultConfig()
	config.MaxRetries = 2
	config.RetryDelay = 5 * time.Millisecond
	queue := NewQueue[job.Job](config)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	aJob := job.New("p1", "spiderA", "", nil)
	require.NoError(t, queue.Publish(ctx, aJob))
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		message, err := queue.Consume(ctx)
		require.NoError(t, err, "attempt %d", attempt)
		assert.Equal(t, aJob.ID, message.T().ID)
		require.NoError(t, message.Nack(errors.New("notifier unavailable")))
	}
	assert.Eventually(t, func() bool { return queue.DLQSize() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, queue.Size())
}

func TestQueue_Context(t *testing.T) {
	queue := NewQueue[job.Job](DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := queue.Consume(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	assert.ErrorIs(t, queue.Publish(cancelled, job.New("p", "t", "", nil)), context.Canceled)
	assert.Equal(t, 0, queue.Size())
}

func TestQueue_ConcurrentPublishers(t *testing.T) {
	config := DefaultConfig()
	config.QueueBuffer = 8
	queue := NewQueue[job.Job](config)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const publishers, perPublisher = 4, 25
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				assert.NoError(t, queue.Publish(ctx, job.New("p", "spiderA", "", nil)))
			}
		}()
	}

	seen := map[string]bool{}
	for len(seen) < publishers*perPublisher {
		message, err := queue.Consume(ctx)
		require.NoError(t, err)
		seen[message.T().ID] = true
		require.NoError(t, message.Ack())
	}
	wg.Wait()
	assert.Equal(t, 0, queue.Size())
}
