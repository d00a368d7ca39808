package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/ivlev/nlecore/internal/compositor"
	"github.com/ivlev/nlecore/internal/playback"
	"github.com/ivlev/nlecore/internal/timeline"
)

// Session is one editing session: an editor and its playback controller,
// both driven from the playback loop goroutine. HTTP handlers never touch
// them directly; they post work with Do.
type Session struct {
	name   string
	editor *timeline.Editor
	player *playback.Controller
	loop   *playback.LoopScheduler
	logger *slog.Logger

	// frame is the last frame the controller emitted. Loop goroutine only.
	frame compositor.Frame
}

type SessionOptions struct {
	// Name identifies the project in snapshots and logs.
	Name         string
	Editor       *timeline.Editor
	TickInterval time.Duration
	Loop         bool
	Logger       *slog.Logger
}

func NewSession(opts SessionOptions) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Editor == nil {
		opts.Editor = timeline.NewEditor(timeline.Options{Logger: opts.Logger})
	}
	if opts.Name == "" {
		opts.Name = "untitled"
	}
	s := &Session{
		name:   opts.Name,
		editor: opts.Editor,
		loop:   playback.NewLoopScheduler(opts.TickInterval, opts.Logger),
		logger: opts.Logger,
	}
	s.player = playback.NewController(opts.Editor, playback.Options{
		Loop:      opts.Loop,
		Scheduler: s.loop,
		OnFrame:   func(f compositor.Frame) { s.frame = f },
		Logger:    opts.Logger,
	})
	return s
}

func (s *Session) Name() string { return s.name }

// Run drives the playback loop until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	s.loop.Run(ctx)
}

// Running reports whether the loop accepts work.
func (s *Session) Running() bool { return s.loop.IsRunning() }

// Do runs fn on the loop goroutine and returns its error. It fails with
// playback.ErrLoopStopped when the loop is not running.
func (s *Session) Do(ctx context.Context, fn func(ed *timeline.Editor, p *playback.Controller) error) error {
	var err error
	if doErr := s.loop.Do(ctx, func() { err = fn(s.editor, s.player) }); doErr != nil {
		return doErr
	}
	return err
}

// LastFrame returns the frame the controller emitted most recently.
func (s *Session) LastFrame(ctx context.Context) (compositor.Frame, error) {
	var f compositor.Frame
	err := s.Do(ctx, func(*timeline.Editor, *playback.Controller) error {
		f = s.frame
		return nil
	})
	return f, err
}
