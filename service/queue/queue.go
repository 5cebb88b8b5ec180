// Package queue holds pending job ids per project and decides which project
// is served next.
package queue

import (
	"time"
)

type entry struct {
	id        string
	notBefore time.Time
}

// Queue is a set of per-project FIFO queues with round-robin admission.
// It is not safe for concurrent use; a single owner goroutine drives it.
type Queue struct {
	pending map[string][]*entry
	owner   map[string]string
	ring    []string
	cursor  int
}

// New creates an empty queue
func New() *Queue {
	return &Queue{
		pending: make(map[string][]*entry),
		owner:   make(map[string]string),
	}
}

// Push appends id to the project queue. It returns false when id is
// already queued.
func (q *Queue) Push(project, id string) bool {
	if _, ok := q.owner[id]; ok {
		return false
	}
	q.activate(project)
	q.pending[project] = append(q.pending[project], &entry{id: id})
	q.owner[id] = project
	return true
}

// PushFront puts id at the head of the project queue; it is not handed out
// by Next before notBefore.
func (q *Queue) PushFront(project, id string, notBefore time.Time) bool {
	if _, ok := q.owner[id]; ok {
		return false
	}
	q.activate(project)
	q.pending[project] = append([]*entry{{id: id, notBefore: notBefore}}, q.pending[project]...)
	q.owner[id] = project
	return true
}

// Peek returns the oldest id of a project without removing it.
func (q *Queue) Peek(project string) (string, bool) {
	entries := q.pending[project]
	if len(entries) == 0 {
		return "", false
	}
	return entries[0].id, true
}

// Pop removes and returns the oldest id of a project.
func (q *Queue) Pop(project string) (string, bool) {
	id, ok := q.Peek(project)
	if !ok {
		return "", false
	}
	q.shift(project)
	return id, true
}

// Next picks the project following the last served one that has a ready
// head, and pops that head.
func (q *Queue) Next(now time.Time) (project, id string, ok bool) {
	count := len(q.ring)
	for i := 0; i < count; i++ {
		position := (q.cursor + i) % count
		candidate := q.ring[position]
		head := q.pending[candidate][0]
		if head.notBefore.After(now) {
			continue
		}
		q.cursor = position + 1
		q.shift(candidate)
		return candidate, head.id, true
	}
	return "", "", false
}

// Remove drops id from whichever queue holds it.
func (q *Queue) Remove(id string) bool {
	project, ok := q.owner[id]
	if !ok {
		return false
	}
	entries := q.pending[project]
	for i, item := range entries {
		if item.id != id {
			continue
		}
		if i == 0 {
			q.shift(project)
			return true
		}
		q.pending[project] = append(entries[:i], entries[i+1:]...)
		delete(q.owner, id)
		return true
	}
	return false
}

// Contains reports whether id is queued.
func (q *Queue) Contains(id string) bool {
	_, ok := q.owner[id]
	return ok
}

// Len returns the number of queued ids across all projects.
func (q *Queue) Len() int {
	return len(q.owner)
}

// Size returns the number of queued ids of a project.
func (q *Queue) Size(project string) int {
	return len(q.pending[project])
}

// Projects returns projects with pending work in service order.
func (q *Queue) Projects() []string {
	ret := make([]string, len(q.ring))
	copy(ret, q.ring)
	return ret
}

// NextReady returns the earliest time a deferred head becomes ready, or the
// zero time when no head is deferred past now.
func (q *Queue) NextReady(now time.Time) time.Time {
	var ret time.Time
	for _, project := range q.ring {
		head := q.pending[project][0]
		if !head.notBefore.After(now) {
			continue
		}
		if ret.IsZero() || head.notBefore.Before(ret) {
			ret = head.notBefore
		}
	}
	return ret
}

func (q *Queue) activate(project string) {
	if len(q.pending[project]) > 0 {
		return
	}
	q.ring = append(q.ring, project)
}

func (q *Queue) shift(project string) {
	entries := q.pending[project]
	delete(q.owner, entries[0].id)
	entries[0] = nil
	entries = entries[1:]
	if len(entries) > 0 {
		q.pending[project] = entries
		return
	}
	delete(q.pending, project)
	for i, candidate := range q.ring {
		if candidate != project {
			continue
		}
		q.ring = append(q.ring[:i], q.ring[i+1:]...)
		if i < q.cursor {
			q.cursor--
		}
		break
	}
}
