package taskd_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/taskd"
	"github.com/viant/taskd/model"
	"github.com/viant/taskd/model/job"
	"github.com/viant/taskd/service/bundle"
	"github.com/viant/taskd/service/event"
	"github.com/viant/taskd/service/launcher"
	"github.com/viant/taskd/service/messaging"
	"github.com/viant/taskd/service/secret"
)

func newConfig(t *testing.T) *taskd.Config {
	config := taskd.DefaultConfig(t.TempDir())
	config.Node = "node-a"
	config.Launcher.MaxProc = 2
	config.Launcher.PollInterval = 50 * time.Millisecond
	config.Launcher.GracePeriod = 200 * time.Millisecond
	return config
}

func newService(t *testing.T, config *taskd.Config) *taskd.Service {
	t.Helper()
	ctx := context.Background()
	srv, err := taskd.New(ctx, taskd.WithConfig(config))
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func shellBundle(t *testing.T, tasks map[string]string) []byte {
	t.Helper()
	manifest := &bundle.Manifest{}
	for _, name := range []string{"spiderA", "spiderB", "sleeper"} {
		script, ok := tasks[name]
		if !ok {
			continue
		}
		manifest.Tasks = append(manifest.Tasks, &bundle.Task{Name: name, Command: []string{"/bin/sh", "-c", script}})
	}
	blob, err := bundle.Build(manifest, nil)
	require.NoError(t, err)
	return blob
}

func waitState(t *testing.T, srv *taskd.Service, id string, state job.State) *job.Job {
	t.Helper()
	var ret *job.Job
	require.Eventually(t, func() bool {
		aJob, err := srv.JobStatus(context.Background(), id)
		if err != nil {
			return false
		}
		ret = aJob
		return aJob.State == state
	}, 10*time.Second, 10*time.Millisecond, "job %s never reached %s", id, state)
	return ret
}

func TestService_RoundTrip(t *testing.T) {
	srv := newService(t, newConfig(t))
	ctx := context.Background()

	receipt, err := srv.UploadVersion(ctx, "quotesbot", "0.1", shellBundle(t, map[string]string{"spiderA": "exit 0"}))
	require.NoError(t, err)
	assert.Equal(t, &taskd.VersionReceipt{Node: "node-a", Project: "quotesbot", Version: "0.1", Tasks: []string{"spiderA"}}, receipt)

	tasks, err := srv.ListTasks(ctx, "quotesbot", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"spiderA"}, tasks)

	jobReceipt, err := srv.Enqueue(ctx, &taskd.EnqueueRequest{Project: "quotesbot", Task: "spiderA", Args: map[string]string{"arg1": "val1"}})
	require.NoError(t, err)
	assert.Equal(t, "node-a", jobReceipt.Node)
	assert.NotEmpty(t, jobReceipt.JobID)

	aJob := waitState(t, srv, jobReceipt.JobID, job.StateFinished)
	assert.Equal(t, "0.1", aJob.ResolvedVersion)
	assert.Equal(t, map[string]string{"arg1": "val1"}, aJob.Args)
	assert.Equal(t, job.ReasonCompleted, aJob.Detail.Reason)

	status, err := srv.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "node-a", status.Node)
	assert.Equal(t, 2, status.Slots)
	assert.Equal(t, 1, status.Finished)

	jobs, err := srv.ListJobs(ctx, "quotesbot", job.StateFinished)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, jobReceipt.JobID, jobs[0].ID)
}

func TestService_RejectsInvalidIdentifiers(t *testing.T) {
	srv := newService(t, newConfig(t))
	ctx := context.Background()
	blob := shellBundle(t, map[string]string{"spiderA": "exit 0"})

	_, err := srv.UploadVersion(ctx, "../etc", "1", blob)
	assert.True(t, errors.Is(err, model.ErrInvalidIdentifier))
	_, err = srv.UploadVersion(ctx, "p", "..", blob)
	assert.True(t, errors.Is(err, model.ErrInvalidIdentifier))
	projects, err := srv.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)

	_, err = srv.Enqueue(ctx, &taskd.EnqueueRequest{Project: "/abs/path", Task: "task"})
	assert.True(t, errors.Is(err, model.ErrInvalidIdentifier))
	_, err = srv.ListVersions(ctx, "a/b")
	assert.True(t, errors.Is(err, model.ErrInvalidIdentifier))
	_, err = srv.ListJobs(ctx, "a b")
	assert.True(t, errors.Is(err, model.ErrInvalidIdentifier))

	jobs, err := srv.ListJobs(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestService_UploadRejectsCorruptBundle(t *testing.T) {
	srv := newService(t, newConfig(t))
	ctx := context.Background()
	_, err := srv.UploadVersion(ctx, "p", "1", []byte("not a zip"))
	assert.True(t, errors.Is(err, model.ErrCorruptArtifact))
	versions, err := srv.ListVersions(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestService_EnqueueErrors(t *testing.T) {
	srv := newService(t, newConfig(t))
	ctx := context.Background()
	_, err := srv.UploadVersion(ctx, "p", "1", shellBundle(t, map[string]string{"spiderA": "exit 0"}))
	require.NoError(t, err)

	testCases := []struct {
		description string
		request     *taskd.EnqueueRequest
		expect      error
	}{
		{description: "unknown task", request: &taskd.EnqueueRequest{Project: "p", Task: "spiderZ"}, expect: model.ErrNoSuchTask},
		{description: "unknown project", request: &taskd.EnqueueRequest{Project: "q", Task: "spiderA"}, expect: model.ErrNotFound},
		{description: "unknown version", request: &taskd.EnqueueRequest{Project: "p", Task: "spiderA", Version: "7"}, expect: model.ErrNotFound},
		{description: "invalid task", request: &taskd.EnqueueRequest{Project: "p", Task: "../x"}, expect: model.ErrInvalidIdentifier},
	}
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			_, err := srv.Enqueue(ctx, tc.request)
			assert.True(t, errors.Is(err, tc.expect), "got %v", err)
		})
	}
	jobs, err := srv.ListJobs(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, jobs, "rejected requests never create jobs")
}

func TestService_VersionOrder(t *testing.T) {
	srv := newService(t, newConfig(t))
	ctx := context.Background()
	testCases := []struct {
		project  string
		uploads  []string
		expected []string
	}{
		{project: "numeric", uploads: []string{"10", "2", "1"}, expected: []string{"1", "2", "10"}},
		{project: "mixed", uploads: []string{"10", "0.2", "0.1"}, expected: []string{"0.1", "0.2", "10"}},
	}
	for _, tc := range testCases {
		t.Run(tc.project, func(t *testing.T) {
			for _, version := range tc.uploads {
				_, err := srv.UploadVersion(ctx, tc.project, version, shellBundle(t, map[string]string{"spiderA": "exit 0"}))
				require.NoError(t, err)
			}
			versions, err := srv.ListVersions(ctx, tc.project)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, versions)
		})
	}

	_, err := srv.UploadVersion(ctx, "numeric", "10", shellBundle(t, map[string]string{"spiderB": "exit 0"}))
	require.NoError(t, err)
	tasks, err := srv.ListTasks(ctx, "numeric", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"spiderB"}, tasks, "latest numeric version was overwritten")
}

func TestService_DeleteProject(t *testing.T) {
	srv := newService(t, newConfig(t))
	ctx := context.Background()
	_, err := srv.DeleteProject(ctx, "missing")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	blob := shellBundle(t, map[string]string{"spiderA": "exit 0"})
	_, err = srv.UploadVersion(ctx, "p", "1", blob)
	require.NoError(t, err)
	_, err = srv.UploadVersion(ctx, "p", "2", blob)
	require.NoError(t, err)

	receipt, err := srv.DeleteVersion(ctx, "p", "2")
	require.NoError(t, err)
	assert.Equal(t, "node-a", receipt.Node)
	_, err = srv.DeleteVersion(ctx, "p", "2")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	_, err = srv.DeleteProject(ctx, "p")
	require.NoError(t, err)
	_, err = srv.ListTasks(ctx, "p", "")
	assert.True(t, errors.Is(err, model.ErrNotFound))
	projects, err := srv.ListProjects(ctx)
	require.NoError(t, err)
	assert.NotContains(t, projects, "p")
}

func TestService_Cancel(t *testing.T) {
	srv := newService(t, newConfig(t))
	ctx := context.Background()
	_, err := srv.UploadVersion(ctx, "p", "1", shellBundle(t, map[string]string{
		"sleeper": "sleep 30",
		"spiderA": "exit 0",
	}))
	require.NoError(t, err)

	_, err = srv.Cancel(ctx, "no-such-job")
	assert.True(t, errors.Is(err, model.ErrNotFound))

	running, err := srv.Enqueue(ctx, &taskd.EnqueueRequest{Project: "p", Task: "sleeper"})
	require.NoError(t, err)
	waitState(t, srv, running.JobID, job.StateRunning)
	receipt, err := srv.Cancel(ctx, running.JobID)
	require.NoError(t, err)
	assert.Equal(t, &taskd.CancelReceipt{Node: "node-a", Previous: job.StateRunning}, receipt)
	cancelled := waitState(t, srv, running.JobID, job.StateCancelled)
	assert.Equal(t, job.ReasonCancelled, cancelled.Detail.Reason)

	finished, err := srv.Enqueue(ctx, &taskd.EnqueueRequest{Project: "p", Task: "spiderA"})
	require.NoError(t, err)
	waitState(t, srv, finished.JobID, job.StateFinished)
	receipt, err = srv.Cancel(ctx, finished.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StateFinished, receipt.Previous, "cancelling a finished job is a no-op")
	waitState(t, srv, finished.JobID, job.StateFinished)
}

func TestService_PublishesTransitions(t *testing.T) {
	config := newConfig(t)
	config.Events.Vendor = messaging.VendorMemory
	srv := newService(t, config)
	ctx := context.Background()

	var mux sync.Mutex
	var states []string
	require.NoError(t, event.SetListenerOf[job.Job](ctx, srv.Events(), func(e *event.Event[job.Job]) {
		mux.Lock()
		states = append(states, e.Context.EventType)
		mux.Unlock()
	}))

	_, err := srv.UploadVersion(ctx, "p", "1", shellBundle(t, map[string]string{"spiderA": "exit 0"}))
	require.NoError(t, err)
	receipt, err := srv.Enqueue(ctx, &taskd.EnqueueRequest{Project: "p", Task: "spiderA"})
	require.NoError(t, err)
	waitState(t, srv, receipt.JobID, job.StateFinished)

	require.Eventually(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		return len(states) == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{string(job.StatePending), string(job.StateRunning), string(job.StateFinished)}, states)
}

func TestService_DurableLedgerRecovery(t *testing.T) {
	ctx := context.Background()
	config := newConfig(t)
	config.Storage.LedgerURL = filepath.Join(t.TempDir(), "jobs")

	first, err := taskd.New(ctx, taskd.WithConfig(config))
	require.NoError(t, err)
	_, err = first.UploadVersion(ctx, "p", "1", shellBundle(t, map[string]string{"spiderA": "exit 0"}))
	require.NoError(t, err)
	receipt, err := first.Enqueue(ctx, &taskd.EnqueueRequest{Project: "p", Task: "spiderA"})
	require.NoError(t, err, "jobs are accepted before the launcher starts")
	require.NoError(t, first.Shutdown(ctx))

	second := newService(t, config)
	waitState(t, second, receipt.JobID, job.StateFinished)
}

func TestService_EnqueueAfterShutdown(t *testing.T) {
	ctx := context.Background()
	srv, err := taskd.New(ctx, taskd.WithConfig(newConfig(t)))
	require.NoError(t, err)
	_, err = srv.UploadVersion(ctx, "p", "1", shellBundle(t, map[string]string{"spiderA": "exit 0"}))
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))
	require.NoError(t, srv.Shutdown(ctx))

	_, err = srv.Enqueue(ctx, &taskd.EnqueueRequest{Project: "p", Task: "spiderA"})
	assert.ErrorIs(t, err, launcher.ErrStopped)
	jobs, err := srv.ListJobs(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, jobs, "a rejected enqueue leaves no job behind")
}

func TestService_ProcessSecrets(t *testing.T) {
	ctx := context.Background()
	ref := &secret.Ref{URL: filepath.Join(t.TempDir(), "token.enc")}
	require.NoError(t, secret.New().Secure(ctx, ref, "s3cr3t"))
	config := newConfig(t)
	config.Process.Secrets = map[string]*secret.Ref{"API_TOKEN": ref}
	srv := newService(t, config)

	_, err := srv.UploadVersion(ctx, "p", "1", shellBundle(t, map[string]string{"spiderA": `test "$API_TOKEN" = s3cr3t`}))
	require.NoError(t, err)
	receipt, err := srv.Enqueue(ctx, &taskd.EnqueueRequest{Project: "p", Task: "spiderA"})
	require.NoError(t, err)
	waitState(t, srv, receipt.JobID, job.StateFinished)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TASKD_TEST_NODE", "node-b")
	location := filepath.Join(t.TempDir(), "taskd.yaml")
	require.NoError(t, os.WriteFile(location, []byte(`
node: ${env.TASKD_TEST_NODE}
storage:
  artifactsURL: /var/lib/taskd/eggs
  workDir: /var/lib/taskd/work
  logsDir: /var/log/taskd
launcher:
  maxProc: 8
  pollInterval: 2s
  gracePeriod: 1m
process:
  defaultCommand: [python3, -m, runner]
ledger:
  finishedToKeep: 5
log:
  format: json
  level: debug
`), 0o644))

	config, err := taskd.LoadConfig(context.Background(), location)
	require.NoError(t, err)
	assert.Equal(t, "node-b", config.Node)
	assert.Equal(t, "/var/lib/taskd/eggs", config.Storage.ArtifactsURL)
	assert.Equal(t, 8, config.Launcher.MaxProc)
	assert.Equal(t, 8, config.Launcher.Slots())
	assert.Equal(t, 2*time.Second, config.Launcher.PollInterval)
	assert.Equal(t, time.Minute, config.Launcher.GracePeriod)
	assert.Equal(t, 3, config.Launcher.SpawnAttempts, "unset values keep defaults")
	assert.Equal(t, []string{"python3", "-m", "runner"}, config.Process.DefaultCommand)
	assert.Equal(t, 5, config.Ledger.FinishedToKeep)
	_, err = config.Log.NewLogger(os.Stderr)
	assert.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	config := taskd.DefaultConfig(t.TempDir())
	assert.NoError(t, config.Validate())

	config.Node = "bad node"
	config.Launcher.PollInterval = 0
	config.Events.Vendor = "kafka"
	config.Log.Level = "loud"
	err := config.Validate()
	require.Error(t, err)
	for _, fragment := range []string{"invalid node name", "pollInterval", "unsupported events vendor", "unsupported log level"} {
		assert.Contains(t, err.Error(), fragment)
	}
}
