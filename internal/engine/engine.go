// Package engine runs the final render pass: every frame of a timeline is
// sampled in order, rasterized by a bounded worker pool and handed to the
// encoder strictly in presentation order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/nlecore/internal/compositor"
	"github.com/ivlev/nlecore/internal/timeline"
	"github.com/ivlev/nlecore/internal/video"
)

// ErrEmptyTimeline is returned when there is nothing to render.
var ErrEmptyTimeline = errors.New("timeline has no duration")

// Rasterizer turns a draw list into pixels; renderer.Renderer implements it.
type Rasterizer interface {
	Render(ctx context.Context, frame compositor.Frame) (*image.RGBA, error)
	Release(img *image.RGBA)
}

type Options struct {
	FPS     int
	Workers int
	Logger  *slog.Logger
	// Progress is called from the encoding goroutine after each frame.
	Progress func(done, total int)
}

type Exporter struct {
	raster  Rasterizer
	encoder video.Encoder
	fps     int
	workers int
	logger  *slog.Logger
	onFrame func(done, total int)
}

func NewExporter(r Rasterizer, enc video.Encoder, opts Options) *Exporter {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{
		raster:  r,
		encoder: enc,
		fps:     opts.FPS,
		workers: opts.Workers,
		logger:  opts.Logger,
		onFrame: opts.Progress,
	}
}

type Report struct {
	Frames   int           `json:"frames"`
	Duration int64         `json:"duration"`
	Elapsed  time.Duration `json:"elapsed"`
	FPS      float64       `json:"fps"`
}

// FrameCount is the number of frames covering [0, duration) at fps.
func FrameCount(duration int64, fps int) int {
	if duration <= 0 || fps <= 0 {
		return 0
	}
	return int((duration*int64(fps) + 999) / 1000)
}

// FrameTime is the timeline time of frame i at fps.
func FrameTime(i, fps int) int64 {
	return int64(i) * 1000 / int64(fps)
}

// SampleFrames calls fn with the draw list of every frame in order. It is
// the export pass without rasterization.
func SampleFrames(ctx context.Context, s *timeline.State, fps int, fn func(compositor.Frame) error) error {
	n := FrameCount(s.Duration, fps)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sampling cancelled at frame %d: %w", i, err)
		}
		if err := fn(compositor.Sample(s, FrameTime(i, fps))); err != nil {
			return err
		}
	}
	return nil
}

// Export renders s. The caller owns s for the duration of the call and must
// not mutate it; sampling happens on the calling goroutine, one frame at a
// time, and cancellation is checked before every frame. The encoder is not
// closed.
func (e *Exporter) Export(ctx context.Context, s *timeline.State) (Report, error) {
	total := FrameCount(s.Duration, e.fps)
	if total == 0 {
		return Report{}, ErrEmptyTimeline
	}
	start := time.Now()
	e.logger.Info("export started", "frames", total, "fps", e.fps, "workers", e.workers, "duration_ms", s.Duration)

	// At most window frames are between sampling and encoding, so slot i%window
	// is always drained before frame i is dispatched.
	window := 2 * e.workers
	slots := make([]chan *image.RGBA, window)
	for i := range slots {
		slots[i] = make(chan *image.RGBA, 1)
	}
	inflight := make(chan struct{}, window)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers + 1)

	encoded := 0
	g.Go(func() error {
		step := max(total/10, 1)
		for i := 0; i < total; i++ {
			var img *image.RGBA
			select {
			case img = <-slots[i%window]:
			case <-gctx.Done():
				return gctx.Err()
			}
			err := e.encoder.WriteFrame(img)
			e.raster.Release(img)
			if err != nil {
				return fmt.Errorf("encode frame %d: %w", i, err)
			}
			encoded++
			<-inflight
			if e.onFrame != nil {
				e.onFrame(encoded, total)
			}
			if encoded%step == 0 {
				e.logger.Debug("export progress", "frames", encoded, "total", total)
			}
		}
		return nil
	})

sampling:
	for i := 0; i < total; i++ {
		select {
		case inflight <- struct{}{}:
		case <-gctx.Done():
			break sampling
		}
		if gctx.Err() != nil {
			break
		}
		frame := compositor.Sample(s, FrameTime(i, e.fps))
		g.Go(func() error {
			img, err := e.raster.Render(gctx, frame)
			if err != nil {
				return fmt.Errorf("render frame %d: %w", i, err)
			}
			slots[i%window] <- img
			return nil
		})
	}

	err := g.Wait()
	elapsed := time.Since(start)
	report := Report{
		Frames:   encoded,
		Duration: s.Duration,
		Elapsed:  elapsed,
		FPS:      float64(encoded) / max(elapsed.Seconds(), 1e-9),
	}
	if err != nil {
		e.logger.Warn("export failed", "frames", encoded, "total", total, "error", err)
		return report, err
	}
	e.logger.Info("export finished", "frames", encoded, "elapsed", elapsed.String(), "fps", report.FPS)
	return report, nil
}

// AudioInputs lists the audio clips the encoder should mix, honouring the
// mute and solo flags of audio tracks the same way sampling does. Volumes
// are the clips' static values.
func AudioInputs(s *timeline.State) []video.AudioInput {
	soloing := false
	for _, tr := range s.Tracks {
		if tr.Kind == timeline.TrackAudio && tr.Solo {
			soloing = true
		}
	}

	var inputs []video.AudioInput
	for _, tr := range s.Tracks {
		if tr.Kind != timeline.TrackAudio || tr.Muted || (soloing && !tr.Solo) {
			continue
		}
		for _, c := range tr.Clips {
			if c.Duration <= 0 || c.Volume <= 0 {
				continue
			}
			inputs = append(inputs, video.AudioInput{
				Path:   c.MediaRef,
				Start:  c.StartTime,
				Offset: c.TrimStart,
				Length: c.Duration,
				Volume: c.Volume,
			})
		}
	}
	return inputs
}
