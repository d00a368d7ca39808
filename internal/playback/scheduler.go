package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler runs tick callbacks cooperatively. A callback registered with
// ScheduleTick runs once, on the scheduler's next tick, with that tick's time.
type Scheduler interface {
	ScheduleTick(fn func(now time.Time))
	Now() time.Time
}

// ManualScheduler is a Scheduler driven by explicit clock advancement. It is
// meant for tests and batch drivers.
type ManualScheduler struct {
	now     time.Time
	pending []func(time.Time)
}

func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

func (s *ManualScheduler) ScheduleTick(fn func(now time.Time)) {
	s.pending = append(s.pending, fn)
}

func (s *ManualScheduler) Now() time.Time { return s.now }

// Pending is the number of callbacks waiting for the next tick.
func (s *ManualScheduler) Pending() int { return len(s.pending) }

// Advance moves the clock forward by d and fires one tick. Callbacks
// scheduled while the tick runs wait for the following Advance.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.now = s.now.Add(d)
	batch := s.pending
	s.pending = nil
	for _, fn := range batch {
		fn(s.now)
	}
}

// ErrLoopStopped is returned by LoopScheduler.Do when the loop is not running.
var ErrLoopStopped = errors.New("playback loop is not running")

// LoopScheduler ticks at a fixed interval on a single goroutine. Work posted
// with Do runs on the same goroutine, between ticks, so a timeline edited
// through Do needs no locking against the playback controller.
type LoopScheduler struct {
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending []func(time.Time)

	tasks   chan task
	started atomic.Bool
	running atomic.Bool
	done    chan struct{}
}

type task struct {
	fn   func()
	done chan struct{}
}

func NewLoopScheduler(interval time.Duration, logger *slog.Logger) *LoopScheduler {
	if interval <= 0 {
		interval = time.Second / 60
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LoopScheduler{
		interval: interval,
		logger:   logger,
		tasks:    make(chan task),
		done:     make(chan struct{}),
	}
}

func (s *LoopScheduler) ScheduleTick(fn func(now time.Time)) {
	s.mu.Lock()
	s.pending = append(s.pending, fn)
	s.mu.Unlock()
}

func (s *LoopScheduler) Now() time.Time { return time.Now() }

// Run drives the loop until ctx is cancelled. Only the first call runs;
// later calls return immediately.
func (s *LoopScheduler) Run(ctx context.Context) {
	if s.started.Swap(true) {
		return
	}
	s.running.Store(true)
	defer close(s.done)

	s.logger.Info("playback loop started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("playback loop stopping")
			s.running.Store(false)
			return
		case now := <-ticker.C:
			s.mu.Lock()
			batch := s.pending
			s.pending = nil
			s.mu.Unlock()
			for _, fn := range batch {
				fn(now)
			}
		case t := <-s.tasks:
			t.fn()
			close(t.done)
		}
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (s *LoopScheduler) Do(ctx context.Context, fn func()) error {
	if !s.running.Load() {
		return ErrLoopStopped
	}
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case s.tasks <- t:
	case <-s.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-t.done
	return nil
}

// IsRunning reports whether Run is active.
func (s *LoopScheduler) IsRunning() bool { return s.running.Load() }
