// Package app wires the config manager, logging service, event bus,
// notifier and agent into one runnable unit.
package app

import (
	"context"
	"fmt"
	"time"

	"automat/internal/agent"
	"automat/internal/config"
	"automat/internal/eventbus"
	"automat/internal/notifier"
	"automat/internal/runtime/supervisor"
	logx "automat/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	notif *notifier.Service
	agent *agent.Agent
}

// New builds the app from an optional config file path. A missing or
// malformed file falls back to built-in defaults; it is never fatal.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetLogger(logx.NewConsole("INFO").With(logx.String("comp", "config")))
	cfg := cfgm.LoadOrDefault()

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()
	notifSvc := notifier.New(mapNotifyConfig(cfg), log.With(logx.String("comp", "notifier")), bus)
	ag := agent.New(cfg.AgentName, cfg, logSvc.Logger().With(logx.String("comp", "agent")), bus)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		notif:   notifSvc,
		agent:   ag,
	}, nil
}

func (a *App) Agent() *agent.Agent { return a.agent }

func (a *App) Config() *config.Config { return a.cfgm.Get() }

func (a *App) Notifier() *notifier.Service { return a.notif }

// Done is closed when the app supervisor context is cancelled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the background loops: notifier, event logging, config
// reload fan-out and (when enabled) the config file watcher. The agent's
// run loop is driven separately by the caller.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return fmt.Errorf("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if cfg.MaxConcurrentTasks < 0 {
			return fmt.Errorf("max_concurrent_tasks must be >= 0")
		}
		if cfg.Notify.RatePerSec < 0 {
			return fmt.Errorf("notify.rate_per_sec must be >= 0")
		}
		return nil
	})

	a.sup.Go("notifier", func(c context.Context) error {
		return a.notif.Run(c)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.logs.Apply(mapLogConfig(newCfg))
				a.notif.Apply(mapNotifyConfig(newCfg))
				a.agent.Apply(newCfg)
				a.log.Info("config reloaded",
					logx.String("log_level", newCfg.LogLevel),
					logx.Int("max_concurrent_tasks", newCfg.MaxConcurrentTasks),
					logx.Duration("tick", newCfg.TickDuration()))
			}
		}
	})

	if a.Config().Watch {
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	a.log.Info("app started", logx.String("config", a.cfgPath))
	return nil
}

// Stop cancels background loops and waits for them, bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.agent.Stop()
	a.sup.Cancel()

	waitCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	err := a.sup.Wait(waitCtx)

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return err
}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.LogLevel,
		Console: cfg.ConsoleEnabled(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapNotifyConfig(cfg *config.Config) notifier.Config {
	// Failure notices carry warn severity. A floor above WARN mutes them,
	// which is the documented way to silence the notifier besides enabled.
	floor := logx.ParseLevel(cfg.Notify.MinLevel, logx.LevelWarn)
	return notifier.Config{
		Enabled:    cfg.NotifyEnabled() && floor <= logx.LevelWarn,
		RatePerSec: cfg.Notify.RatePerSec,
	}
}
