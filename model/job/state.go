package job

import "strconv"

// State represents the lifecycle state of a job
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateFinished  State = "finished"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// IsTerminal reports whether the state never transitions further.
func (s State) IsTerminal() bool {
	switch s {
	case StateFinished, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateRunning, StateFinished, StateFailed, StateCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateFailed || to == StateCancelled
	case StateRunning:
		return to == StateFinished || to == StateFailed || to == StateCancelled
	default:
		return false
	}
}

// Reason is a machine-readable explanation attached to terminal states
type Reason string

const (
	ReasonCompleted       Reason = "completed"
	ReasonExitCode        Reason = "exitCode"
	ReasonSignaled        Reason = "signaled"
	ReasonCancelled       Reason = "cancelled"
	ReasonNoSuchVersion   Reason = "noSuchVersion"
	ReasonNoSuchTask      Reason = "noSuchTask"
	ReasonCorruptArtifact Reason = "corruptArtifact"
	ReasonSpawnFailure    Reason = "spawnFailure"
	ReasonOrphaned        Reason = "orphaned"
	ReasonShutdown        Reason = "shutdown"
)

// Detail describes why a job reached its current state
type Detail struct {
	Reason  Reason `json:"reason" yaml:"reason"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// NewDetail creates a detail
func NewDetail(reason Reason, message string) *Detail {
	return &Detail{Reason: reason, Message: message}
}

// Exit captures how a child process terminated. Signal is empty unless the
// process was killed by a signal, in which case Code is -1.
type Exit struct {
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

// Success reports a clean zero exit.
func (e Exit) Success() bool {
	return e.Code == 0 && e.Signal == ""
}

func (e Exit) String() string {
	if e.Signal != "" {
		return "signal: " + e.Signal
	}
	if e.Code < 0 {
		return "abnormal termination"
	}
	return "exit status " + strconv.Itoa(e.Code)
}
