// Package video is the encoder boundary: it turns a stream of rasterized
// frames (plus the timeline's audio clips) into a container file.
package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strings"
)

// ErrFrameSize is returned when a frame does not match the encoder size.
var ErrFrameSize = errors.New("frame size does not match encoder")

// Encoder consumes frames in presentation order.
type Encoder interface {
	WriteFrame(img *image.RGBA) error
	Close() error
}

// AudioInput places a span of an audio file on the output timeline.
type AudioInput struct {
	Path   string
	Start  int64 // output time, ms
	Offset int64 // source offset, ms
	Length int64 // ms
	Volume float64
}

type Settings struct {
	Width, Height int
	FPS           int
	// Codec is the ffmpeg video encoder name; see system.BestH264Encoder.
	Codec   string
	Quality int
	Audio   []AudioInput
	// FFmpegPath defaults to "ffmpeg".
	FFmpegPath string
}

func (s Settings) Validate() error {
	if s.Width <= 0 || s.Height <= 0 || s.Width%2 != 0 || s.Height%2 != 0 {
		return fmt.Errorf("video size %dx%d must be positive and even", s.Width, s.Height)
	}
	if s.FPS <= 0 {
		return fmt.Errorf("fps %d must be positive", s.FPS)
	}
	return nil
}

// FFmpegEncoder streams raw RGBA frames to an ffmpeg process over stdin.
type FFmpegEncoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	bounds image.Rectangle
	frames int
}

// OpenFFmpeg starts ffmpeg writing to output. The process is killed if ctx
// is cancelled; Close then reports the failure.
func OpenFFmpeg(ctx context.Context, output string, s Settings) (*FFmpegEncoder, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	bin := s.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}

	e := &FFmpegEncoder{bounds: image.Rect(0, 0, s.Width, s.Height)}
	e.cmd = exec.CommandContext(ctx, bin, buildFFmpegArgs(output, s)...)
	e.cmd.Stderr = &e.stderr

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	e.stdin = stdin
	if err := e.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return e, nil
}

func (e *FFmpegEncoder) WriteFrame(img *image.RGBA) error {
	if img.Bounds().Size() != e.bounds.Size() {
		return fmt.Errorf("%w: got %v, want %v", ErrFrameSize, img.Bounds().Size(), e.bounds.Size())
	}
	if err := writeRawRGBA(e.stdin, img); err != nil {
		return fmt.Errorf("write frame %d: %w: %s", e.frames, err, e.tail())
	}
	e.frames++
	return nil
}

// Frames is the number of frames written so far.
func (e *FFmpegEncoder) Frames() int { return e.frames }

func (e *FFmpegEncoder) Close() error {
	e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w: %s", err, e.tail())
	}
	return nil
}

func (e *FFmpegEncoder) tail() string {
	s := strings.TrimSpace(e.stderr.String())
	if len(s) > 512 {
		s = s[len(s)-512:]
	}
	return s
}

func buildFFmpegArgs(output string, s Settings) []string {
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", s.Width, s.Height),
		"-framerate", fmt.Sprintf("%d", s.FPS),
		"-i", "-",
	}
	for _, a := range s.Audio {
		args = append(args, "-i", a.Path)
	}

	if graph := audioGraph(s.Audio); graph != "" {
		args = append(args, "-filter_complex", graph, "-map", "0:v", "-map", "[aout]", "-c:a", "aac", "-b:a", "192k")
	}

	codec := s.Codec
	if codec == "" {
		codec = "libx264"
	}
	args = append(args, "-pix_fmt", "yuv420p", "-c:v", codec)
	args = append(args, qualityArgs(codec, s.Quality)...)
	args = append(args, output)
	return args
}

// qualityArgs maps a single quality knob onto each encoder's rate control.
func qualityArgs(codec string, quality int) []string {
	switch codec {
	case "h264_videotoolbox":
		// VideoToolbox ignores -crf; 75 -> 7.5 Mbit/s.
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	default: // libx264
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", "medium"}
	}
}

// audioGraph trims, delays and scales every input and mixes them into
// [aout]. Input 0 is the video stream, so audio inputs start at 1.
func audioGraph(inputs []AudioInput) string {
	if len(inputs) == 0 {
		return ""
	}
	var g strings.Builder
	for i, a := range inputs {
		fmt.Fprintf(&g, "[%d:a]atrim=start=%.3f:end=%.3f,asetpts=PTS-STARTPTS,adelay=%d|%d,volume=%.3f[a%d];",
			i+1, seconds(a.Offset), seconds(a.Offset+a.Length), a.Start, a.Start, a.Volume, i)
	}
	for i := range inputs {
		fmt.Fprintf(&g, "[a%d]", i)
	}
	fmt.Fprintf(&g, "amix=inputs=%d:dropout_transition=0:normalize=0[aout]", len(inputs))
	return g.String()
}

func seconds(ms int64) float64 { return float64(ms) / 1000 }

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Rect, img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}
