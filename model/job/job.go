package job

import (
	"fmt"
	"time"

	"github.com/viant/taskd/internal/clock"
	"github.com/viant/taskd/internal/idgen"
)

// Job represents one requested execution of a project task
type Job struct {
	ID              string            `json:"id"`
	Project         string            `json:"project"`
	Task            string            `json:"task"`
	Version         string            `json:"version,omitempty"`
	ResolvedVersion string            `json:"resolvedVersion,omitempty"`
	Args            map[string]string `json:"args,omitempty"`
	State           State             `json:"state"`
	PID             int               `json:"pid,omitempty"`
	CancelRequested bool              `json:"cancelRequested,omitempty"`
	EnqueuedAt      time.Time         `json:"enqueuedAt"`
	StartedAt       *time.Time        `json:"startedAt,omitempty"`
	EndedAt         *time.Time        `json:"endedAt,omitempty"`
	Exit            *Exit             `json:"exit,omitempty"`
	Detail          *Detail           `json:"detail,omitempty"`
	LogURL          string            `json:"logURL,omitempty"`
}

// Transition describes a state change recorded in the ledger. Fields other
// than To and At are optional and only applied when set.
type Transition struct {
	To      State
	At      time.Time
	Detail  *Detail
	PID     int
	Version string
	Exit    *Exit
	LogURL  string
}

// New creates a pending job with a fresh identifier. An empty version means
// "latest at dispatch time".
func New(project, task, version string, args map[string]string) *Job {
	ret := &Job{
		ID:         idgen.New(),
		Project:    project,
		Task:       task,
		Version:    version,
		State:      StatePending,
		EnqueuedAt: clock.Now(),
	}
	if len(args) > 0 {
		ret.Args = make(map[string]string, len(args))
		for k, v := range args {
			ret.Args[k] = v
		}
	}
	return ret
}

// Apply validates and applies a transition.
func (j *Job) Apply(t *Transition) error {
	if t == nil {
		return fmt.Errorf("job %s: nil transition", j.ID)
	}
	if !CanTransition(j.State, t.To) {
		return fmt.Errorf("job %s: disallowed transition %s -> %s", j.ID, j.State, t.To)
	}
	at := t.At
	if at.IsZero() {
		at = clock.Now()
	}
	j.State = t.To
	if t.Detail != nil {
		detail := *t.Detail
		j.Detail = &detail
	}
	if t.Version != "" {
		j.ResolvedVersion = t.Version
	}
	if t.LogURL != "" {
		j.LogURL = t.LogURL
	}
	switch t.To {
	case StateRunning:
		j.StartedAt = &at
		j.PID = t.PID
	default:
		j.EndedAt = &at
		j.PID = 0
		if t.Exit != nil {
			exit := *t.Exit
			j.Exit = &exit
		}
	}
	return nil
}

// Duration returns the run time of a started job, measured up to now when it
// has not ended yet.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := clock.Now()
	if j.EndedAt != nil {
		end = *j.EndedAt
	}
	return end.Sub(*j.StartedAt)
}

// Clone creates a deep copy so that callers can never mutate ledger state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	ret := *j
	if j.Args != nil {
		ret.Args = make(map[string]string, len(j.Args))
		for k, v := range j.Args {
			ret.Args[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		ret.StartedAt = &t
	}
	if j.EndedAt != nil {
		t := *j.EndedAt
		ret.EndedAt = &t
	}
	if j.Exit != nil {
		e := *j.Exit
		ret.Exit = &e
	}
	if j.Detail != nil {
		d := *j.Detail
		ret.Detail = &d
	}
	return &ret
}

// Field exposes filterable job attributes by name for DAO list parameters.
func (j *Job) Field(name string) (string, bool) {
	switch name {
	case "ID":
		return j.ID, true
	case "Project":
		return j.Project, true
	case "Task":
		return j.Task, true
	case "State":
		return string(j.State), true
	}
	return "", false
}
