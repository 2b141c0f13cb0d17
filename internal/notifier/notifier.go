package notifier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"automat/internal/agent"
	"automat/internal/eventbus"
	logx "automat/pkg/logx"
)

// Config controls failure notification throttling.
type Config struct {
	Enabled    bool
	RatePerSec int
	// DedupWindow suppresses repeats of the same task failure (default 1m).
	DedupWindow time.Duration
	HistorySize int
}

type HistoryItem struct {
	At    time.Time
	Task  string
	Error string
}

// Service drains task failure events from the bus and logs throttled
// warnings. It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log logx.Logger
	bus eventbus.Bus

	// dedup: task -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem

	dropped uint64
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log,
		bus:   bus,
		dedup: map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = time.Minute
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Run consumes bus events until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.bus == nil {
		<-ctx.Done()
		return nil
	}
	ch, unsub := s.bus.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if e.Type != eventbus.TypeTaskFailed {
				continue
			}
			ev, ok := e.Data.(agent.TaskEvent)
			if !ok {
				continue
			}
			s.notify(e.Time, ev)
		}
	}
}

func (s *Service) notify(at time.Time, ev agent.TaskEvent) {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	window := s.cfg.DedupWindow
	lim := s.limiter
	s.mu.Unlock()
	if !enabled {
		return
	}

	s.dmu.Lock()
	until, seen := s.dedup[ev.Task]
	suppressed := seen && at.Before(until)
	if !suppressed {
		s.dedup[ev.Task] = at.Add(window)
	}
	s.dmu.Unlock()
	if suppressed {
		s.drop()
		return
	}

	if !lim.Allow() {
		s.drop()
		return
	}

	s.log.Warn("task failure",
		logx.String("task", ev.Task),
		logx.String("agent", ev.Agent),
		logx.String("err", ev.Error),
		logx.Duration("took", ev.Duration),
	)
	s.remember(HistoryItem{At: at, Task: ev.Task, Error: ev.Error})
}

func (s *Service) drop() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

// Dropped reports suppressed notifications (dedup + rate limit).
func (s *Service) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Service) remember(it HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, it)
	s.mu.Lock()
	max := s.cfg.HistorySize
	s.mu.Unlock()
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
}

// History returns a copy of recent notifications, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}
