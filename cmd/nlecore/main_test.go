package main

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/ivlev/nlecore/internal/config"
	"github.com/ivlev/nlecore/internal/director"
	"github.com/ivlev/nlecore/internal/project"
	"github.com/ivlev/nlecore/internal/timeline"
)

func TestApplyPreset(t *testing.T) {
	tests := []struct {
		preset string
		w, h   int
	}{
		{"16:9", 1280, 720},
		{"9:16", 720, 1280},
		{"4:5", 1080, 1350},
	}
	for _, tt := range tests {
		cfg := config.Default()
		if err := applyPreset(cfg, tt.preset); err != nil {
			t.Fatalf("%s: %v", tt.preset, err)
		}
		if cfg.Render.Width != tt.w || cfg.Render.Height != tt.h {
			t.Errorf("%s: got %dx%d", tt.preset, cfg.Render.Width, cfg.Render.Height)
		}
	}

	cfg := config.Default()
	if err := applyPreset(cfg, ""); err != nil || cfg.Render.Width != 1280 {
		t.Errorf("empty preset changed size: %v", err)
	}
	if err := applyPreset(cfg, "21:9"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestEncoderQuality(t *testing.T) {
	tests := []struct {
		codec      string
		configured int
		want       int
	}{
		{"h264_videotoolbox", 0, 75},
		{"h264_nvenc", 0, 28},
		{"libx264", 0, 23},
		{"libx264", 18, 18},
	}
	for _, tt := range tests {
		if got := encoderQuality(tt.codec, tt.configured); got != tt.want {
			t.Errorf("encoderQuality(%q, %d) = %d, want %d", tt.codec, tt.configured, got, tt.want)
		}
	}
}

func TestFFprobePath(t *testing.T) {
	tests := map[string]string{
		"ffmpeg":                "ffprobe",
		"/opt/bin/ffmpeg":       "/opt/bin/ffprobe",
		"/opt/bin/ffmpeg-6.1":   "/opt/bin/ffprobe-6.1",
		"/usr/local/bin/avconv": "ffprobe",
	}
	for in, want := range tests {
		if got := ffprobePath(in); got != want {
			t.Errorf("ffprobePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDefaultOutput(t *testing.T) {
	got := defaultOutput("projects/demo.yaml")
	if filepath.Dir(got) != "output" || !strings.HasPrefix(filepath.Base(got), "demo_") || filepath.Ext(got) != ".mp4" {
		t.Errorf("defaultOutput = %q", got)
	}
}

func TestConfigureTransition(t *testing.T) {
	d := director.NewDirector(1280, 720)
	if err := configureTransition(d, "wipe"); err != nil || d.Transition.Kind != timeline.TransitionWipe {
		t.Errorf("wipe: %v, %+v", err, d.Transition)
	}
	if err := configureTransition(d, "none"); err != nil || d.Transition.Duration != 0 {
		t.Errorf("none: %v, %+v", err, d.Transition)
	}
	if err := configureTransition(d, "spin"); err == nil {
		t.Error("expected error for unknown transition")
	}
}

func writePage(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 36))
	for y := 0; y < 36; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestSlideshowFromImageDirectory(t *testing.T) {
	dir := t.TempDir()
	pages := filepath.Join(dir, "pages")
	if err := os.Mkdir(pages, 0755); err != nil {
		t.Fatal(err)
	}
	writePage(t, filepath.Join(pages, "01.png"), color.White)
	writePage(t, filepath.Join(pages, "02.png"), color.Black)

	saved := slideshowFlags
	t.Cleanup(func() { slideshowFlags = saved })
	out := filepath.Join(dir, "show.json")
	slideshowFlags.output = out
	slideshowFlags.detect = true
	slideshowFlags.pace = false
	slideshowFlags.pageDuration = 4000
	slideshowFlags.transition = "fade"

	cfg := config.Default()
	cfg.DataDir = dir
	cmd := &cobra.Command{}
	cmd.SetContext(config.WithConfig(context.Background(), cfg))
	if err := runSlideshow(cmd, []string{pages}); err != nil {
		t.Fatalf("slideshow: %v", err)
	}

	state, err := project.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var v1 *timeline.Track
	for i := range state.Tracks {
		if state.Tracks[i].ID == "V1" {
			v1 = &state.Tracks[i]
		}
	}
	if v1 == nil || len(v1.Clips) != 2 {
		t.Fatalf("V1 = %+v", v1)
	}
	first, second := v1.Clips[0], v1.Clips[1]
	if first.MediaKind != timeline.MediaImage || !strings.HasSuffix(first.MediaRef, "01.png") {
		t.Errorf("first clip = %+v", first)
	}
	if second.StartTime != first.End() {
		t.Errorf("second clip starts at %d, want %d", second.StartTime, first.End())
	}
	if first.Out == nil || first.Out.Kind != timeline.TransitionFade || second.In == nil {
		t.Errorf("transitions: out=%+v in=%+v", first.Out, second.In)
	}
	if state.Duration < 8000 {
		t.Errorf("duration = %d, want at least 8000", state.Duration)
	}
}
