package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"automat/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewAppDefaults(t *testing.T) {
	a, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := a.Config().AgentName; got != "Automat" {
		t.Fatalf("AgentName = %q, want Automat", got)
	}
	if a.Agent() == nil {
		t.Fatal("Agent() is nil")
	}
}

func TestNewAppFromFile(t *testing.T) {
	path := writeConfig(t, `{"agent_name":"ops","log_level":"ERROR","tick":"10ms"}`)

	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := a.Agent().Name(); got != "ops" {
		t.Fatalf("agent name = %q, want ops", got)
	}
	if got := a.Config().TickDuration(); got != 10*time.Millisecond {
		t.Fatalf("tick = %v, want 10ms", got)
	}
}

func TestNewAppMalformedFileFallsBack(t *testing.T) {
	path := writeConfig(t, `{"agent_name": nope`)

	a, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := a.Config().AgentName; got != "Automat" {
		t.Fatalf("AgentName = %q, want default", got)
	}
}

func TestAppStartStop(t *testing.T) {
	a, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestMapNotifyConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Notify.MinLevel = "WARN"
	if nc := mapNotifyConfig(cfg); !nc.Enabled {
		t.Fatal("WARN floor should keep notifier enabled")
	}

	cfg.Notify.MinLevel = "ERROR"
	if nc := mapNotifyConfig(cfg); nc.Enabled {
		t.Fatal("ERROR floor should mute the notifier")
	}
}
