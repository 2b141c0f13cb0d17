package agent

import (
	"context"
	"time"
)

// Action is the unit of work a task invokes. The returned string is the
// task's result message; a non-nil error marks the run as failed.
//
// Actions must tolerate being called from the run loop: the agent does not
// enforce timeouts, and Stop() never cancels an in-flight action.
type Action func(ctx context.Context) (string, error)

// TaskState mirrors the lifecycle of a task's most recent run.
type TaskState string

const (
	StatePending   TaskState = "pending"
	StateRunning   TaskState = "running"
	StateCompleted TaskState = "completed"
	StateFailed    TaskState = "failed"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// TaskOptions control registration via AddTaskOpt.
//
// Interval semantics: 0 means "run exactly once"; the task is never due again
// after its first invocation, success or failure. AddTask (without options)
// instead applies the configured default_interval.
type TaskOptions struct {
	Interval time.Duration
	// Disabled inverts the default so the zero value registers an enabled task.
	Disabled bool
}

// Result is one entry of a sweep's ordered result list.
type Result struct {
	ID        string        `json:"id"`
	Task      string        `json:"task"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Failed reports whether the invocation recorded an error.
func (r Result) Failed() bool { return r.Status == StatusFailed }

// TaskStatus is a read-only snapshot of one task, as returned by Status().
type TaskStatus struct {
	Name     string        `json:"name"`
	State    TaskState     `json:"state"`
	Enabled  bool          `json:"enabled"`
	Interval time.Duration `json:"interval"`
	// Schedule is the original cron/interval spec string, if the task was
	// registered via AddSchedule.
	Schedule   string    `json:"schedule,omitempty"`
	RunCount   int       `json:"run_count"`
	LastRun    time.Time `json:"last_run"`
	LastResult string    `json:"last_result,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// TaskEvent is emitted on the event bus for task lifecycle events.
type TaskEvent struct {
	ID       string        `json:"id"`
	Agent    string        `json:"agent"`
	Task     string        `json:"task"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	RunCount int           `json:"run_count"`
	Error    string        `json:"error,omitempty"`
}
