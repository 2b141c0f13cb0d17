package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"automat/internal/config"
	logx "automat/pkg/logx"
)

func fastConfig(tick string) *config.Config {
	cfg := config.Default()
	cfg.Tick = tick
	return cfg
}

func TestRunHonorsMaxIterations(t *testing.T) {
	t.Parallel()
	a := New("looper", fastConfig("1ms"), logx.Nop(), nil)

	var sweeps int32
	a.AddTaskOpt("tick", func(ctx context.Context) (string, error) {
		atomic.AddInt32(&sweeps, 1)
		return "", nil
	}, TaskOptions{Interval: time.Nanosecond})

	if err := a.Run(context.Background(), 3); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := atomic.LoadInt32(&sweeps); n != 3 {
		t.Fatalf("sweeps = %d, want 3", n)
	}
	if a.Running() {
		t.Fatal("agent still marked running after Run returned")
	}
}

func TestStopEndsRunLoop(t *testing.T) {
	t.Parallel()
	a := New("stopper", fastConfig("5ms"), logx.Nop(), nil)

	started := make(chan struct{})
	var once atomic.Bool
	a.AddTaskOpt("beat", func(ctx context.Context) (string, error) {
		if once.CompareAndSwap(false, true) {
			close(started)
		}
		return "", nil
	}, TaskOptions{Interval: time.Nanosecond})

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), 0) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop never swept")
	}
	a.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v after Stop", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRunReturnsContextError(t *testing.T) {
	t.Parallel()
	a := New("ctx", fastConfig("5ms"), logx.Nop(), nil)
	a.AddTask("idle", noop)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, 0) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunRejectsConcurrentLoops(t *testing.T) {
	t.Parallel()
	a := New("single", fastConfig("5ms"), logx.Nop(), nil)
	a.AddTask("idle", noop)

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), 0) }()
	defer func() {
		a.Stop()
		<-done
	}()

	// wait for the loop to register itself
	deadline := time.Now().Add(2 * time.Second)
	for !a.Running() {
		if time.Now().After(deadline) {
			t.Fatal("loop never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := a.Run(context.Background(), 1); err != ErrAlreadyRunning {
		t.Fatalf("second Run = %v, want ErrAlreadyRunning", err)
	}
}

func TestStopBeforeRunIsNoop(t *testing.T) {
	t.Parallel()
	a := New("idle", nil, logx.Nop(), nil)
	a.Stop() // must not panic or block
	if a.Running() {
		t.Fatal("agent running without Run")
	}
}

func TestTwoAgentsRunIndependently(t *testing.T) {
	t.Parallel()
	a := New("first", fastConfig("5ms"), logx.Nop(), nil)
	b := New("second", fastConfig("5ms"), logx.Nop(), nil)
	a.AddTask("idle", noop)
	b.AddTask("idle", noop)

	doneA := make(chan error, 1)
	doneB := make(chan error, 1)
	go func() { doneA <- a.Run(context.Background(), 0) }()
	go func() { doneB <- b.Run(context.Background(), 0) }()

	deadline := time.Now().Add(2 * time.Second)
	for !a.Running() || !b.Running() {
		if time.Now().After(deadline) {
			t.Fatal("loops never started")
		}
		time.Sleep(time.Millisecond)
	}

	// Stopping one agent must not stop the other.
	a.Stop()
	select {
	case <-doneA:
	case <-time.After(2 * time.Second):
		t.Fatal("first agent did not stop")
	}
	if !b.Running() {
		t.Fatal("stopping one agent stopped the other")
	}
	b.Stop()
	<-doneB
}
