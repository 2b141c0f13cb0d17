package config

import (
	"time"
)

// Config is the agent configuration resolved from an optional file,
// environment overrides, and built-in defaults (in that order of precedence:
// env > file > defaults).
//
// Recognized keys:
//   - agent_name: overrides the agent's display name
//   - log_level: TRACE/DEBUG/INFO/WARN/ERROR (verbosity only)
//   - default_interval: integer seconds, applied when a task omits its interval
//   - max_concurrent_tasks: bounded-parallel sweep width; <= 1 means serial
//   - tick: Go duration string, pause between run-loop sweeps (default "1s")
//   - logging: console/file sink settings
//   - notify: failure notification throttling
//   - watch: reload the file on change (fsnotify)
//
// Unknown keys are ignored so configs can be shared across versions.
type Config struct {
	AgentName string `json:"agent_name,omitempty"`
	LogLevel  string `json:"log_level,omitempty"`

	// DefaultInterval is in whole seconds (0 = tasks default to run-once).
	DefaultInterval int `json:"default_interval,omitempty"`

	// MaxConcurrentTasks is advisory; values <= 1 keep the reference
	// strictly-sequential sweep.
	MaxConcurrentTasks int `json:"max_concurrent_tasks,omitempty"`

	// Tick is a Go duration string (e.g. "1s", "500ms").
	Tick string `json:"tick,omitempty"`

	Logging LoggingConfig `json:"logging,omitempty"`
	Notify  NotifyConfig  `json:"notify,omitempty"`

	Watch bool `json:"watch,omitempty"`
}

type LoggingConfig struct {
	// Console is a pointer so "omitted" defaults to true without a custom
	// unmarshaler.
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// NotifyConfig throttles task-failure notifications.
type NotifyConfig struct {
	// Enabled is a pointer for the same reason as Logging.Console: the
	// default is on, and only an explicit false turns it off.
	Enabled *bool `json:"enabled,omitempty"`
	// MinLevel is the lowest severity forwarded (default WARN).
	MinLevel string `json:"min_level,omitempty"`
	// RatePerSec caps notifications per second (default 1).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

const defaultTick = time.Second

// Default returns the built-in defaults used when the config file or
// individual keys are missing.
func Default() *Config {
	console := true
	notify := true
	return &Config{
		AgentName:          "Automat",
		LogLevel:           "INFO",
		DefaultInterval:    0,
		MaxConcurrentTasks: 1,
		Tick:               defaultTick.String(),
		Logging: LoggingConfig{
			Console: &console,
		},
		Notify: NotifyConfig{
			Enabled:    &notify,
			MinLevel:   "WARN",
			RatePerSec: 1,
		},
	}
}

// merge overlays non-zero values of src onto dst.
func merge(dst, src *Config) {
	if src == nil {
		return
	}
	if src.AgentName != "" {
		dst.AgentName = src.AgentName
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.DefaultInterval != 0 {
		dst.DefaultInterval = src.DefaultInterval
	}
	if src.MaxConcurrentTasks != 0 {
		dst.MaxConcurrentTasks = src.MaxConcurrentTasks
	}
	if src.Tick != "" {
		dst.Tick = src.Tick
	}
	if src.Logging.Console != nil {
		dst.Logging.Console = src.Logging.Console
	}
	if src.Logging.File.Enabled {
		dst.Logging.File.Enabled = true
	}
	if src.Logging.File.Path != "" {
		dst.Logging.File.Path = src.Logging.File.Path
	}
	if src.Notify.Enabled != nil {
		dst.Notify.Enabled = src.Notify.Enabled
	}
	if src.Notify.MinLevel != "" {
		dst.Notify.MinLevel = src.Notify.MinLevel
	}
	if src.Notify.RatePerSec != 0 {
		dst.Notify.RatePerSec = src.Notify.RatePerSec
	}
	if src.Watch {
		dst.Watch = true
	}
}

// TickDuration resolves the sweep pause, falling back to 1s on bad input.
func (c *Config) TickDuration() time.Duration {
	d, err := ParseDurationOrDefault("tick", c.Tick, defaultTick)
	if err != nil || d <= 0 {
		return defaultTick
	}
	return d
}

// TaskDefaultInterval resolves default_interval as a duration.
func (c *Config) TaskDefaultInterval() time.Duration {
	if c.DefaultInterval <= 0 {
		return 0
	}
	return time.Duration(c.DefaultInterval) * time.Second
}

// ConsoleEnabled reports whether console logging is on (default true).
func (c *Config) ConsoleEnabled() bool {
	return c.Logging.Console == nil || *c.Logging.Console
}

// NotifyEnabled reports whether failure notifications are on (default true).
func (c *Config) NotifyEnabled() bool {
	return c.Notify.Enabled == nil || *c.Notify.Enabled
}
