package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/taskd/internal/clock"
	"github.com/viant/taskd/internal/idgen"
)

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		from, to State
		allowed  bool
	}{
		{StatePending, StateRunning, true},
		{StatePending, StateFailed, true},
		{StatePending, StateCancelled, true},
		{StatePending, StateFinished, false},
		{StateRunning, StateFinished, true},
		{StateRunning, StateFailed, true},
		{StateRunning, StateCancelled, true},
		{StateRunning, StatePending, false},
		{StateFinished, StateFailed, false},
		{StateFailed, StateRunning, false},
		{StateCancelled, StateCancelled, false},
	}
	for _, tc := range testCases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to))
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	prevNow, prevID := clock.NowFunc, idgen.NewFunc
	clock.NowFunc = func() time.Time { return now }
	idgen.NewFunc = func() string { return "job-1" }
	defer func() {
		clock.NowFunc, idgen.NewFunc = prevNow, prevID
	}()

	aJob := New("quotesbot", "spiderA", "", map[string]string{"k": "v"})
	assert.Equal(t, "job-1", aJob.ID)
	assert.Equal(t, StatePending, aJob.State)
	assert.Equal(t, now, aJob.EnqueuedAt)

	started := now.Add(time.Second)
	require.NoError(t, aJob.Apply(&Transition{To: StateRunning, At: started, PID: 42, Version: "10", LogURL: "file:///logs/job-1.log"}))
	assert.Equal(t, 42, aJob.PID)
	assert.Equal(t, "10", aJob.ResolvedVersion)
	assert.Equal(t, started, *aJob.StartedAt)

	ended := started.Add(2 * time.Second)
	require.NoError(t, aJob.Apply(&Transition{To: StateFinished, At: ended, Exit: &Exit{}, Detail: NewDetail(ReasonCompleted, "")}))
	assert.Equal(t, 0, aJob.PID)
	assert.Equal(t, 2*time.Second, aJob.Duration())
	assert.Equal(t, ReasonCompleted, aJob.Detail.Reason)

	err := aJob.Apply(&Transition{To: StateCancelled})
	assert.Error(t, err)
	assert.Equal(t, StateFinished, aJob.State)
}

func TestJob_Clone(t *testing.T) {
	aJob := New("p", "t", "1", map[string]string{"a": "1"})
	require.NoError(t, aJob.Apply(&Transition{To: StateFailed, Detail: NewDetail(ReasonNoSuchTask, "t")}))
	clone := aJob.Clone()
	clone.Args["a"] = "2"
	clone.Detail.Message = "changed"
	*clone.EndedAt = time.Time{}
	assert.Equal(t, "1", aJob.Args["a"])
	assert.Equal(t, "t", aJob.Detail.Message)
	assert.False(t, aJob.EndedAt.IsZero())
}

func TestExit_String(t *testing.T) {
	assert.Equal(t, "exit status 3", Exit{Code: 3}.String())
	assert.Equal(t, "signal: killed", Exit{Code: -1, Signal: "killed"}.String())
	assert.True(t, Exit{}.Success())
	assert.False(t, Exit{Code: -1, Signal: "terminated"}.Success())
}
