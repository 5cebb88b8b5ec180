// Package event publishes job transition events onto a messaging queue so
// that external notifiers can follow job progress.
package event

import (
	"time"

	"github.com/viant/taskd/model/job"
)

// Context identifies what an event is about.
type Context struct {
	Node      string    `json:"node"`
	JobID     string    `json:"jobID"`
	Project   string    `json:"project"`
	Task      string    `json:"task"`
	EventType string    `json:"eventType"`
	Previous  job.State `json:"previous,omitempty"`
}

// Event wraps a payload with its context.
type Event[T any] struct {
	Context   *Context               `json:"context"`
	CreatedAt time.Time              `json:"createdAt"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Data      T                      `json:"data"`
}

// NewEvent creates an event
func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
		Data:      data,
	}
}

// NewJobEvent creates a transition event for a job snapshot. An empty
// previous state marks a newly created job.
func NewJobEvent(node string, previous job.State, snapshot *job.Job) *Event[job.Job] {
	return NewEvent(&Context{
		Node:      node,
		JobID:     snapshot.ID,
		Project:   snapshot.Project,
		Task:      snapshot.Task,
		EventType: string(snapshot.State),
		Previous:  previous,
	}, *snapshot)
}
