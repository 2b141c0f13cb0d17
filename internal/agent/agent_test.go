package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"automat/internal/config"
	"automat/internal/eventbus"
	logx "automat/pkg/logx"
)

// fakeClock lets tests advance agent time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestAgent(t *testing.T, cfg *config.Config) (*Agent, *fakeClock) {
	t.Helper()
	a := New("test-agent", cfg, logx.Nop(), nil)
	clock := newFakeClock()
	a.now = clock.Now
	return a, clock
}

func taskNames(results []Result) []string {
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Task
	}
	return names
}

func TestRunOnceInvokesInRegistrationOrder(t *testing.T) {
	t.Parallel()
	a, _ := newTestAgent(t, nil)

	var order []string
	mk := func(name string) Action {
		return func(ctx context.Context) (string, error) {
			order = append(order, name)
			return "", nil
		}
	}
	a.AddTask("charlie", mk("charlie")).
		AddTask("alpha", mk("alpha")).
		AddTask("bravo", mk("bravo"))

	results := a.RunOnce(context.Background())
	want := []string{"charlie", "alpha", "bravo"}
	if fmt.Sprint(taskNames(results)) != fmt.Sprint(want) {
		t.Fatalf("result order = %v, want %v", taskNames(results), want)
	}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Fatalf("invocation order = %v, want %v", order, want)
	}
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	t.Parallel()
	a, _ := newTestAgent(t, nil)

	var ranAfter bool
	a.AddTask("ok1", noop)
	a.AddTask("broken", func(ctx context.Context) (string, error) {
		return "", errors.New("kaput")
	})
	a.AddTask("ok2", func(ctx context.Context) (string, error) {
		ranAfter = true
		return "", nil
	})

	results := a.RunOnce(context.Background())
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if !results[1].Failed() || results[1].Error != "kaput" {
		t.Fatalf("failed entry not recorded: %+v", results[1])
	}
	if results[0].Failed() || results[2].Failed() {
		t.Fatalf("healthy tasks marked failed: %+v", results)
	}
	if !ranAfter {
		t.Fatal("task after the failing one did not run")
	}
}

func TestRunOnceSkipsDisabledTasks(t *testing.T) {
	t.Parallel()
	a, _ := newTestAgent(t, nil)
	a.AddTask("on", noop)
	a.AddTaskOpt("off", noop, TaskOptions{Disabled: true})

	results := a.RunOnce(context.Background())
	if len(results) != 1 || results[0].Task != "on" {
		t.Fatalf("results = %v", taskNames(results))
	}

	// Disabled tasks still show up in the status snapshot.
	st := a.Status()
	if len(st) != 2 {
		t.Fatalf("status entries = %d, want 2", len(st))
	}
	if st[1].Name != "off" || st[1].Enabled {
		t.Fatalf("disabled task snapshot: %+v", st[1])
	}
}

func TestIntervalScenario(t *testing.T) {
	t.Parallel()
	a, clock := newTestAgent(t, nil)
	a.AddTaskOpt("A", noop, TaskOptions{Interval: 0})
	a.AddTaskOpt("B", noop, TaskOptions{Interval: 5 * time.Second})

	// First sweep invokes both.
	if got := taskNames(a.RunOnce(context.Background())); fmt.Sprint(got) != fmt.Sprint([]string{"A", "B"}) {
		t.Fatalf("first sweep = %v", got)
	}

	// Immediately after: neither is due.
	if got := a.RunOnce(context.Background()); len(got) != 0 {
		t.Fatalf("second sweep = %v, want empty", taskNames(got))
	}

	// After 5s only B is due; A ran once and never again.
	clock.Advance(5 * time.Second)
	if got := taskNames(a.RunOnce(context.Background())); fmt.Sprint(got) != fmt.Sprint([]string{"B"}) {
		t.Fatalf("third sweep = %v, want [B]", got)
	}
}

func TestOnceTaskNotRetriedAfterFailure(t *testing.T) {
	t.Parallel()
	a, clock := newTestAgent(t, nil)
	var calls int32
	a.AddTaskOpt("flaky", func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", errors.New("nope")
	}, TaskOptions{Interval: 0})

	a.RunOnce(context.Background())
	clock.Advance(time.Hour)
	a.RunOnce(context.Background())

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls = %d; an interval-0 task runs at most once, success or failure", n)
	}
}

func TestAddTaskDuplicateReplaces(t *testing.T) {
	t.Parallel()
	a, _ := newTestAgent(t, nil)

	var first, second int32
	a.AddTask("anchor", noop)
	a.AddTask("dup", func(ctx context.Context) (string, error) {
		atomic.AddInt32(&first, 1)
		return "", nil
	})
	a.AddTask("dup", func(ctx context.Context) (string, error) {
		atomic.AddInt32(&second, 1)
		return "", nil
	})

	if a.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (replace, not append)", a.Len())
	}
	results := a.RunOnce(context.Background())
	if fmt.Sprint(taskNames(results)) != fmt.Sprint([]string{"anchor", "dup"}) {
		t.Fatalf("replacement must keep registry position: %v", taskNames(results))
	}
	if first != 0 || second != 1 {
		t.Fatalf("replaced action still ran: first=%d second=%d", first, second)
	}
}

func TestRemoveTask(t *testing.T) {
	t.Parallel()
	a, _ := newTestAgent(t, nil)
	a.AddTask("keep", noop)
	a.AddTask("gone", noop)

	if !a.RemoveTask("gone") {
		t.Fatal("RemoveTask returned false for an existing task")
	}
	if a.RemoveTask("gone") {
		t.Fatal("RemoveTask returned true for a missing task")
	}

	if got := taskNames(a.RunOnce(context.Background())); fmt.Sprint(got) != fmt.Sprint([]string{"keep"}) {
		t.Fatalf("sweep after removal = %v", got)
	}
	for _, st := range a.Status() {
		if st.Name == "gone" {
			t.Fatal("removed task still present in Status()")
		}
	}
}

func TestDefaultIntervalFromConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.DefaultInterval = 10
	a, clock := newTestAgent(t, cfg)
	a.AddTask("periodic", noop)

	a.RunOnce(context.Background())
	clock.Advance(9 * time.Second)
	if got := a.RunOnce(context.Background()); len(got) != 0 {
		t.Fatalf("due before default_interval elapsed: %v", taskNames(got))
	}
	clock.Advance(time.Second)
	if got := a.RunOnce(context.Background()); len(got) != 1 {
		t.Fatal("not due after default_interval elapsed")
	}
}

func TestBoundedParallelSweepKeepsOrder(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.MaxConcurrentTasks = 4
	a, _ := newTestAgent(t, cfg)

	var inFlight, maxSeen int32
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("t%d", i)
		a.AddTask(name, func(ctx context.Context) (string, error) {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if cur <= old || atomic.CompareAndSwapInt32(&maxSeen, old, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return "", nil
		})
	}

	results := a.RunOnce(context.Background())
	if len(results) != 8 {
		t.Fatalf("results = %d, want 8", len(results))
	}
	for i, r := range results {
		if r.Task != fmt.Sprintf("t%d", i) {
			t.Fatalf("result %d = %s; parallel sweep must keep registration order", i, r.Task)
		}
	}
	if m := atomic.LoadInt32(&maxSeen); m > 4 {
		t.Fatalf("observed %d concurrent tasks, limit is 4", m)
	}
}

func TestResultMessageMirrorsRunCount(t *testing.T) {
	t.Parallel()
	a, clock := newTestAgent(t, nil)
	a.AddTaskOpt("counted", noop, TaskOptions{Interval: time.Second})

	res := a.RunOnce(context.Background())
	if res[0].Message != "task completed successfully (run #1)" {
		t.Fatalf("message = %q", res[0].Message)
	}
	clock.Advance(time.Second)
	res = a.RunOnce(context.Background())
	if res[0].Message != "task completed successfully (run #2)" {
		t.Fatalf("message = %q", res[0].Message)
	}
}

func TestInvokePublishesEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	a := New("evented", nil, logx.Nop(), bus)
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	a.AddTask("good", noop)
	a.AddTask("bad", func(ctx context.Context) (string, error) {
		return "", errors.New("boom")
	})
	a.RunOnce(context.Background())

	var types []string
	for len(types) < 2 {
		select {
		case e := <-ch:
			types = append(types, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("missing events, got %v", types)
		}
	}
	if types[0] != eventbus.TypeTaskCompleted || types[1] != eventbus.TypeTaskFailed {
		t.Fatalf("event types = %v", types)
	}
}
