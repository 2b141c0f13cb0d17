package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc/pool"

	"automat/internal/eventbus"
	logx "automat/pkg/logx"
)

// ErrAlreadyRunning is returned by Run when a loop is active on this agent.
var ErrAlreadyRunning = errors.New("agent already running")

// RunOnce sweeps the registry exactly once: every enabled, due task is
// invoked in registration order and yields one Result. A failing task is
// recorded as a failed entry; it never aborts the sweep.
func (a *Agent) RunOnce(ctx context.Context) []Result {
	now := a.now()

	a.mu.Lock()
	due := make([]*Task, 0, len(a.tasks))
	for _, t := range a.tasks {
		if t.due(now) {
			due = append(due, t)
		}
	}
	width := a.cfg.MaxConcurrentTasks
	a.mu.Unlock()

	results := make([]Result, len(due))
	if width <= 1 {
		// Reference behavior: strictly sequential, one task at a time.
		for i, t := range due {
			results[i] = a.invoke(ctx, t)
		}
		return results
	}

	// Bounded-parallel sweep. Results are indexed by registry order so the
	// returned list stays deterministic regardless of completion order.
	p := pool.New().WithMaxGoroutines(width)
	for i, t := range due {
		i, t := i, t
		p.Go(func() {
			results[i] = a.invoke(ctx, t)
		})
	}
	p.Wait()
	return results
}

// Run repeats sweeps with a tick pause between them until Stop() is called,
// ctx is cancelled, or maxIterations sweeps completed (0 = unbounded).
//
// Stop is cooperative: it is checked between sweeps, so an in-flight sweep
// always completes first.
func (a *Agent) Run(ctx context.Context, maxIterations int) error {
	a.runMu.Lock()
	if a.stopCh != nil {
		a.runMu.Unlock()
		return ErrAlreadyRunning
	}
	stop := make(chan struct{})
	a.stopCh = stop
	a.runMu.Unlock()

	defer func() {
		a.runMu.Lock()
		if a.stopCh == stop {
			a.stopCh = nil
		}
		a.runMu.Unlock()
		a.log.Info("agent stopped")
		a.publish(eventbus.TypeAgentStopped, a.name)
	}()

	a.log.Info("agent started", logx.Duration("tick", a.tick()), logx.Int("tasks", a.Len()))
	a.publish(eventbus.TypeAgentStarted, a.name)

	for iteration := 0; maxIterations <= 0 || iteration < maxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		a.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-time.After(a.tick()):
		}
	}
	return nil
}

// tick is re-read every iteration so config reloads take effect between sweeps.
func (a *Agent) tick() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.TickDuration()
}

// Stop requests the run loop to exit before its next sweep. It is safe to
// call from any goroutine and when no loop is running.
func (a *Agent) Stop() {
	a.runMu.Lock()
	stop := a.stopCh
	a.stopCh = nil
	a.runMu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// Running reports whether a Run loop is active.
func (a *Agent) Running() bool {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.stopCh != nil
}

// invoke executes one task and records the outcome on the task, in the
// returned Result, and on the event bus.
func (a *Agent) invoke(ctx context.Context, t *Task) Result {
	started := a.now()
	res := Result{
		ID:        ulid.Make().String(),
		Task:      t.name,
		Timestamp: started,
	}

	a.log.Debug("executing task", logx.String("task", t.name))
	t.markRunning()
	msg, err := t.run(ctx)
	count := t.record(started, msg, err)
	res.Duration = a.now().Sub(started)

	ev := TaskEvent{
		ID:       res.ID,
		Agent:    a.name,
		Task:     t.name,
		Started:  started,
		Duration: res.Duration,
		RunCount: count,
	}
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		ev.Error = err.Error()
		a.log.Warn("task failed", logx.String("task", t.name), logx.Err(err))
		a.publish(eventbus.TypeTaskFailed, ev)
		return res
	}

	res.Status = StatusSuccess
	res.Message = msg
	if res.Message == "" {
		res.Message = fmt.Sprintf("task completed successfully (run #%d)", count)
	}
	a.log.Info("task ok", logx.String("task", t.name), logx.Duration("took", res.Duration))
	a.publish(eventbus.TypeTaskCompleted, ev)
	return res
}
