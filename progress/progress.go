package progress

import (
	"sync"
	"time"

	"github.com/viant/taskd/model/job"
)

// Delta represents an incremental counter change. Fields are signed so a
// transition can move one job from one counter to another.
type Delta struct {
	Pending   int
	Running   int
	Finished  int
	Failed    int
	Cancelled int
}

// Counters is a point-in-time copy of the tracked job counts.
type Counters struct {
	Node      string
	StartedAt time.Time

	Pending   int
	Running   int
	Finished  int
	Failed    int
	Cancelled int
}

// Progress keeps job counters since the daemon started. It is safe for
// concurrent use.
type Progress struct {
	mu       sync.Mutex
	counters Counters
}

// Update applies the supplied delta.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters.Pending += d.Pending
	p.counters.Running += d.Running
	p.counters.Finished += d.Finished
	p.counters.Failed += d.Failed
	p.counters.Cancelled += d.Cancelled
}

// Transition moves one job between the counters of the from and to states.
// An empty from counts a newly created job.
func (p *Progress) Transition(from, to job.State) {
	var d Delta
	d.add(from, -1)
	d.add(to, 1)
	p.Update(d)
}

// Seed counts jobs that already existed before the tracker was created.
func (p *Progress) Seed(jobs []*job.Job) {
	var d Delta
	for _, aJob := range jobs {
		d.add(aJob.State, 1)
	}
	p.Update(d)
}

func (d *Delta) add(state job.State, n int) {
	switch state {
	case job.StatePending:
		d.Pending += n
	case job.StateRunning:
		d.Running += n
	case job.StateFinished:
		d.Finished += n
	case job.StateFailed:
		d.Failed += n
	case job.StateCancelled:
		d.Cancelled += n
	}
}

// Snapshot returns a copy of the counters.
func (p *Progress) Snapshot() Counters {
	if p == nil {
		return Counters{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

// New creates a tracker for node.
func New(node string) *Progress {
	return &Progress{counters: Counters{Node: node, StartedAt: time.Now()}}
}
