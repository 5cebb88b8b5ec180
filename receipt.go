package taskd

import "github.com/viant/taskd/model/job"

// VersionReceipt acknowledges an uploaded version.
type VersionReceipt struct {
	Node    string   `json:"node"`
	Project string   `json:"project"`
	Version string   `json:"version"`
	Tasks   []string `json:"tasks"`
}

// Receipt acknowledges a mutation without a payload.
type Receipt struct {
	Node string `json:"node"`
}

// EnqueueRequest asks for one run of a project task. An empty Version runs
// whatever version is latest when the job is admitted.
type EnqueueRequest struct {
	Project string            `json:"project"`
	Task    string            `json:"task"`
	Version string            `json:"version,omitempty"`
	Args    map[string]string `json:"args,omitempty"`
}

// JobReceipt acknowledges an enqueued job.
type JobReceipt struct {
	Node  string `json:"node"`
	JobID string `json:"jobID"`
}

// CancelReceipt reports the state a job was in when cancel was requested.
type CancelReceipt struct {
	Node     string    `json:"node"`
	Previous job.State `json:"previous"`
}

// DaemonStatus summarises scheduler load and job outcomes since start.
type DaemonStatus struct {
	Node      string `json:"node"`
	Slots     int    `json:"slots"`
	Pending   int    `json:"pending"`
	Launching int    `json:"launching"`
	Running   int    `json:"running"`
	Finished  int    `json:"finished"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
}
