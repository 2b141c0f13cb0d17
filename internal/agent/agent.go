package agent

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"automat/internal/config"
	"automat/internal/eventbus"
	logx "automat/pkg/logx"
)

// Agent owns an ordered registry of tasks and runs the ones that are due.
//
// The run/stop flag is per-instance state, so multiple independent Agents can
// coexist in one process.
type Agent struct {
	name string
	cfg  *config.Config
	log  logx.Logger
	bus  eventbus.Bus

	// now is the clock; tests swap it for deterministic interval checks.
	now func() time.Time

	mu    sync.Mutex
	tasks []*Task
	index map[string]int

	runMu  sync.Mutex
	stopCh chan struct{}
}

// New creates an agent. cfg may be nil (built-in defaults), log may be the
// zero Logger (no output) and bus may be nil (no events).
func New(name string, cfg *config.Config, log logx.Logger, bus eventbus.Bus) *Agent {
	if cfg == nil {
		cfg = config.Default()
	}
	if strings.TrimSpace(name) == "" {
		name = cfg.AgentName
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Agent{
		name:  name,
		cfg:   cfg,
		log:   log.With(logx.String("agent", name)),
		bus:   bus,
		now:   time.Now,
		index: map[string]int{},
	}
}

func (a *Agent) Name() string { return a.name }

// Apply swaps the agent's configuration. It affects the sweep width, the
// run-loop tick and the default interval of tasks registered afterwards;
// already-registered tasks keep their interval.
func (a *Agent) Apply(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
}

// Len reports the number of registered tasks.
func (a *Agent) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tasks)
}

// AddTask registers a task with the configured default_interval and returns
// the agent for chaining. A duplicate name REPLACES the existing task in
// place (same registry position, bookkeeping reset).
func (a *Agent) AddTask(name string, action Action) *Agent {
	a.mu.Lock()
	def := a.cfg.TaskDefaultInterval()
	a.mu.Unlock()
	return a.AddTaskOpt(name, action, TaskOptions{Interval: def})
}

// AddTaskOpt registers a task with explicit options. Interval 0 means "run
// exactly once". Duplicate names replace, as in AddTask.
func (a *Agent) AddTaskOpt(name string, action Action, opt TaskOptions) *Agent {
	name = strings.TrimSpace(name)
	if name == "" || action == nil {
		a.log.Warn("task rejected: name and action are required", logx.String("name", name))
		return a
	}
	if opt.Interval < 0 {
		opt.Interval = 0
	}
	a.register(newTask(name, action, opt))
	return a
}

// AddSchedule registers a task driven by a schedule string: a cron expression
// ("*/5 * * * *", "@hourly", "@every 55m"), a Go duration ("55m") or HH:MM
// shorthand ("02:30" = every 2h30m). Duplicate names replace.
func (a *Agent) AddSchedule(name, schedule string, action Action) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("task name required")
	}
	if action == nil {
		return errors.New("task action required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	t := newTask(name, action, TaskOptions{})
	switch ps.Kind {
	case SpecCron:
		sched, err := cronParser.Parse(ps.Cron)
		if err != nil {
			return fmt.Errorf("invalid cron schedule %q: %w", ps.Cron, err)
		}
		t.schedule = sched
		t.spec = strings.TrimSpace(schedule)
	case SpecInterval:
		t.interval = ps.Every
	}
	a.register(t)
	return nil
}

func (a *Agent) register(t *Task) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i, ok := a.index[t.name]; ok {
		// Upsert by name: keep the registry position so sweep order stays
		// stable across re-registrations.
		a.tasks[i] = t
		a.log.Info("task replaced", logx.String("task", t.name), logx.Duration("interval", t.interval))
		return
	}
	a.index[t.name] = len(a.tasks)
	a.tasks = append(a.tasks, t)
	a.log.Info("task added", logx.String("task", t.name), logx.Duration("interval", t.interval))
}

// RemoveTask removes a task by name and reports whether a removal occurred.
// Removed tasks no longer appear in sweeps or Status().
func (a *Agent) RemoveTask(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	i, ok := a.index[name]
	if !ok {
		return false
	}
	a.tasks = append(a.tasks[:i], a.tasks[i+1:]...)
	delete(a.index, name)
	for j := i; j < len(a.tasks); j++ {
		a.index[a.tasks[j].name] = j
	}
	a.log.Info("task removed", logx.String("task", name))
	return true
}

// Task returns the named task, or nil.
func (a *Agent) Task(name string) *Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i, ok := a.index[name]; ok {
		return a.tasks[i]
	}
	return nil
}

// Status snapshots every registered task in registration order, including
// disabled ones. It never mutates task state.
func (a *Agent) Status() []TaskStatus {
	a.mu.Lock()
	tasks := append([]*Task(nil), a.tasks...)
	a.mu.Unlock()

	out := make([]TaskStatus, len(tasks))
	for i, t := range tasks {
		out[i] = t.status()
	}
	return out
}

func (a *Agent) publish(typ string, data any) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
