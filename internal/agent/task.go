package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is one schedulable unit of work. It is owned by exactly one Agent and
// mutated only through that Agent's methods.
type Task struct {
	name   string
	action Action

	// Exactly one of interval/schedule drives due-ness. interval == 0 with a
	// nil schedule means "run once".
	interval time.Duration
	schedule cron.Schedule
	spec     string // original schedule string, for Status()

	mu         sync.Mutex
	enabled    bool
	lastRun    time.Time // zero = never run
	runCount   int
	state      TaskState
	lastResult string
	lastErr    string
}

func newTask(name string, action Action, opt TaskOptions) *Task {
	return &Task{
		name:     name,
		action:   action,
		interval: opt.Interval,
		enabled:  !opt.Disabled,
		state:    StatePending,
	}
}

func (t *Task) Name() string { return t.name }

// Enabled reports whether sweeps consider this task.
func (t *Task) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetEnabled toggles the task. Disabled tasks are skipped by sweeps but still
// appear in Status().
func (t *Task) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// due reports whether the task should be invoked in a sweep starting at now.
//
// A task is due if it is enabled AND (it has never run, OR its cron schedule
// fires at or before now, OR interval > 0 and at least interval has elapsed
// since lastRun). An interval-0 task that has run once (success or failure)
// is never due again.
func (t *Task) due(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return false
	}
	if t.lastRun.IsZero() {
		return true
	}
	if t.schedule != nil {
		return !t.schedule.Next(t.lastRun).After(now)
	}
	if t.interval > 0 {
		return now.Sub(t.lastRun) >= t.interval
	}
	return false
}

// record commits the outcome of one invocation.
//
// lastRun is always updated, success or failure. Result and error are
// mutually exclusive per run: a failure clears any prior result and vice
// versa. runCount counts successful runs only.
func (t *Task) record(started time.Time, result string, err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastRun = started
	if err != nil {
		t.state = StateFailed
		t.lastErr = err.Error()
		t.lastResult = ""
		return t.runCount
	}
	t.runCount++
	t.state = StateCompleted
	t.lastResult = result
	t.lastErr = ""
	return t.runCount
}

func (t *Task) markRunning() {
	t.mu.Lock()
	t.state = StateRunning
	t.mu.Unlock()
}

// status snapshots the task without mutating it.
func (t *Task) status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TaskStatus{
		Name:       t.name,
		State:      t.state,
		Enabled:    t.enabled,
		Interval:   t.interval,
		Schedule:   t.spec,
		RunCount:   t.runCount,
		LastRun:    t.lastRun,
		LastResult: t.lastResult,
		LastError:  t.lastErr,
	}
}

// run invokes the action, converting panics into errors so a misbehaving
// action cannot take down the sweep.
func (t *Task) run(ctx context.Context) (msg string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return t.action(ctx)
}
