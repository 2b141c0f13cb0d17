// Package tasks ships a small set of ready-made actions that exercise the
// agent without external dependencies. They are wired in by the demo mode
// of the CLI and double as realistic examples for callers building their
// own actions.
package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"automat/internal/agent"
)

// HealthCheck reports process-level vitals.
func HealthCheck(ctx context.Context) (string, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return fmt.Sprintf("healthy: go=%s goroutines=%d heap=%s",
		runtime.Version(), runtime.NumGoroutine(), formatBytes(ms.HeapAlloc)), nil
}

// DiskUsage reports entry count and total size of the given directory.
// Empty dir means the system temp directory.
func DiskUsage(dir string) agent.Action {
	if dir == "" {
		dir = os.TempDir()
	}
	return func(ctx context.Context) (string, error) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", dir, err)
		}
		var total int64
		for _, e := range entries {
			if info, err := e.Info(); err == nil && !info.IsDir() {
				total += info.Size()
			}
		}
		return fmt.Sprintf("%s: %d entries, %s", dir, len(entries), formatBytes(uint64(total))), nil
	}
}

// CleanupTempFiles removes files matching pattern under dir that are older
// than maxAge. It reports what it removed and never fails on individual
// unlink errors.
func CleanupTempFiles(dir, pattern string, maxAge time.Duration) agent.Action {
	if dir == "" {
		dir = os.TempDir()
	}
	if pattern == "" {
		pattern = "automat-*"
	}
	return func(ctx context.Context) (string, error) {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", fmt.Errorf("glob %s: %w", pattern, err)
		}
		cutoff := time.Now().Add(-maxAge)
		removed := 0
		for _, m := range matches {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			default:
			}
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if os.Remove(m) == nil {
				removed++
			}
		}
		return fmt.Sprintf("removed %d of %d matching files", removed, len(matches)), nil
	}
}

// StatusReport renders the agent's task table as a one-line summary.
func StatusReport(a *agent.Agent) agent.Action {
	return func(ctx context.Context) (string, error) {
		statuses := a.Status()
		parts := make([]string, 0, len(statuses))
		for _, st := range statuses {
			parts = append(parts, fmt.Sprintf("%s=%s/%d", st.Name, st.State, st.RunCount))
		}
		if len(parts) == 0 {
			return "no tasks registered", nil
		}
		return strings.Join(parts, " "), nil
	}
}

// Announce returns an action that emits a fixed message. Useful as a
// heartbeat or notification placeholder.
func Announce(message string) agent.Action {
	return func(ctx context.Context) (string, error) {
		return message, nil
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for u := n / unit; u >= unit; u /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMGTPE"[exp])
}
