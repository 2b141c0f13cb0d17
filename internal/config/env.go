package config

import (
	"github.com/kelseyhightower/envconfig"
)

// envOverrides maps AUTOMAT_* environment variables onto config keys.
// Pointer fields distinguish "unset" from explicit zero values.
type envOverrides struct {
	AgentName          *string `envconfig:"AGENT_NAME"`
	LogLevel           *string `envconfig:"LOG_LEVEL"`
	DefaultInterval    *int    `envconfig:"DEFAULT_INTERVAL"`
	MaxConcurrentTasks *int    `envconfig:"MAX_CONCURRENT_TASKS"`
	Tick               *string `envconfig:"TICK"`
	Watch              *bool   `envconfig:"WATCH"`
}

const envPrefix = "automat"

// applyEnv overlays environment variables onto cfg.
// Env always wins over file values.
func applyEnv(cfg *Config) error {
	var e envOverrides
	if err := envconfig.Process(envPrefix, &e); err != nil {
		return err
	}
	if e.AgentName != nil {
		cfg.AgentName = *e.AgentName
	}
	if e.LogLevel != nil {
		cfg.LogLevel = *e.LogLevel
	}
	if e.DefaultInterval != nil {
		cfg.DefaultInterval = *e.DefaultInterval
	}
	if e.MaxConcurrentTasks != nil {
		cfg.MaxConcurrentTasks = *e.MaxConcurrentTasks
	}
	if e.Tick != nil {
		cfg.Tick = *e.Tick
	}
	if e.Watch != nil {
		cfg.Watch = *e.Watch
	}
	return nil
}
