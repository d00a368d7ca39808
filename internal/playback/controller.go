// Package playback advances the playhead of a timeline and samples a frame on
// every tick.
package playback

import (
	"log/slog"
	"time"

	"github.com/ivlev/nlecore/internal/compositor"
	"github.com/ivlev/nlecore/internal/timeline"
)

type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// FrameHandler receives the frame sampled after each tick or seek.
type FrameHandler func(compositor.Frame)

type Options struct {
	// Loop wraps the playhead to the start on reaching the end. When false,
	// playback stops at the end.
	Loop      bool
	Scheduler Scheduler
	OnFrame   FrameHandler
	Logger    *slog.Logger
}

// Controller is the playback state machine. It borrows the editor's state:
// ticks move the playhead through Editor.Seek and read everything else. A
// Controller and its Editor must be driven from the same logical thread,
// which is the scheduler's.
type Controller struct {
	editor  *timeline.Editor
	sched   Scheduler
	onFrame FrameHandler
	loop    bool
	logger  *slog.Logger

	state State
	last  time.Time
	frac  float64
	// gen invalidates tick callbacks scheduled before a pause, stop or
	// restart.
	gen uint64
}

func NewController(editor *timeline.Editor, opts Options) *Controller {
	c := &Controller{
		editor:  editor,
		sched:   opts.Scheduler,
		onFrame: opts.OnFrame,
		loop:    opts.Loop,
		logger:  opts.Logger,
	}
	if c.sched == nil {
		c.sched = NewManualScheduler(time.Now())
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c
}

func (c *Controller) State() State { return c.state }

// Time is the current playhead position.
func (c *Controller) Time() int64 { return c.editor.State().CurrentTime }

// Loop reports whether playback wraps at the end.
func (c *Controller) Loop() bool { return c.loop }

func (c *Controller) SetLoop(loop bool) { c.loop = loop }

// Play starts or resumes playback from the current time. Playing from the
// very end of the timeline rewinds to 0 first.
func (c *Controller) Play() {
	if c.state == Playing {
		return
	}
	s := c.editor.State()
	if s.CurrentTime >= s.Duration {
		c.editor.Seek(0)
	}
	c.state = Playing
	c.editor.SetPlaying(true)
	c.last = c.sched.Now()
	c.frac = 0
	c.gen++
	c.schedule()
	c.logger.Debug("playback started", "time", c.Time())
}

// Pause halts playback, keeping the playhead where it is.
func (c *Controller) Pause() {
	if c.state != Playing {
		return
	}
	c.halt(Paused)
	c.logger.Debug("playback paused", "time", c.Time())
}

// Stop halts playback and rewinds to 0.
func (c *Controller) Stop() {
	c.halt(Stopped)
	c.editor.Seek(0)
	c.emit()
}

// Seek moves the playhead to t clamped to [0, duration] without changing
// the playback state, and samples a frame there.
func (c *Controller) Seek(t int64) int64 {
	now := c.editor.Seek(t)
	c.last = c.sched.Now()
	c.frac = 0
	c.emit()
	return now
}

// SetRate changes the playback speed. Rates outside
// [timeline.MinPlaybackRate, timeline.MaxPlaybackRate] fail with
// timeline.ErrInvalidPlaybackRate.
func (c *Controller) SetRate(rate float64) error {
	return c.editor.SetPlaybackRate(rate)
}

func (c *Controller) halt(next State) {
	c.state = next
	c.editor.SetPlaying(false)
	c.gen++
}

func (c *Controller) schedule() {
	gen := c.gen
	c.sched.ScheduleTick(func(now time.Time) { c.tick(gen, now) })
}

func (c *Controller) tick(gen uint64, now time.Time) {
	if gen != c.gen || c.state != Playing {
		return
	}
	s := c.editor.State()

	elapsed := now.Sub(c.last)
	c.last = now
	if elapsed < 0 {
		elapsed = 0
	}
	advance := float64(elapsed)/float64(time.Millisecond)*s.PlaybackRate + c.frac
	step := int64(advance)
	c.frac = advance - float64(step)

	next := s.CurrentTime + step
	if next >= s.Duration {
		if !c.loop || s.Duration <= 0 {
			c.editor.Seek(s.Duration)
			c.halt(Stopped)
			c.emit()
			c.logger.Debug("playback reached end", "time", s.Duration)
			return
		}
		next = 0
		c.frac = 0
	}
	c.editor.Seek(next)
	c.emit()
	c.schedule()
}

func (c *Controller) emit() {
	if c.onFrame == nil {
		return
	}
	c.onFrame(compositor.Sample(c.editor.State(), c.Time()))
}
