package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ivlev/nlecore/internal/timeline"
)

func clearEnv(t *testing.T) {
	for _, name := range []string{EnvLogLevel, EnvPort, EnvDataDir, EnvFPS, EnvWorkers, EnvEncoder} {
		t.Setenv(name, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != DefaultPort || cfg.Render.FPS != 30 || !cfg.Playback.Loop {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Render.Workers < 1 {
		t.Errorf("workers = %d", cfg.Render.Workers)
	}
	if len(cfg.Timeline.Tracks) != 3 {
		t.Errorf("tracks = %v", cfg.Timeline.Tracks)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nlecore.yaml")
	doc := `
log_level: debug
render:
  width: 640
  height: 360
  fps: 25
playback:
  loop: false
  tick_interval: 20ms
timeline:
  overlap:
    video: true
  tracks:
    - {id: V1, kind: video}
    - {id: FX, kind: effect}
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Render.Width != 640 || cfg.Render.FPS != 25 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Render.Encoder != "auto" {
		t.Errorf("encoder = %q, want default kept", cfg.Render.Encoder)
	}
	if cfg.Playback.Loop || cfg.Playback.TickInterval != 20*time.Millisecond {
		t.Errorf("playback = %+v", cfg.Playback)
	}
	if !cfg.Timeline.Overlap[timeline.TrackVideo] || !cfg.Timeline.Overlap[timeline.TrackAudio] {
		t.Errorf("overlap = %v, want file value merged over defaults", cfg.Timeline.Overlap)
	}
	want := []timeline.TrackSpec{{ID: "V1", Kind: timeline.TrackVideo}, {ID: "FX", Kind: timeline.TrackEffect}}
	if !reflect.DeepEqual(cfg.Timeline.Tracks, want) {
		t.Errorf("tracks = %v", cfg.Timeline.Tracks)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvPort, "9000")
	t.Setenv(EnvWorkers, "3")
	t.Setenv(EnvEncoder, "libx265")
	t.Setenv(EnvDataDir, "/tmp/nle")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9000 || cfg.Render.Workers != 3 || cfg.Render.Encoder != "libx265" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.DBPath() != filepath.Join("/tmp/nle", DBFilename) {
		t.Errorf("DBPath = %q", cfg.DBPath())
	}
	if cfg.Addr() != ":9000" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		doc  string
	}{
		{"port not a number", map[string]string{EnvPort: "http"}, ""},
		{"port out of range", map[string]string{EnvPort: "70000"}, ""},
		{"odd width", nil, "render: {width: 641}"},
		{"bad level", map[string]string{EnvLogLevel: "loud"}, ""},
		{"bad track kind", nil, "timeline: {tracks: [{id: X, kind: hologram}]}"},
		{"zero workers", map[string]string{EnvWorkers: "0"}, ""},
		{"malformed yaml", nil, "render: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "cfg.yaml")
			if err := os.WriteFile(path, []byte(tt.doc), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Render.Quality = 18
	cfg.Playback.TickInterval = 50 * time.Millisecond
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}
}

func TestFromContext(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 1234
	if got := FromContext(WithConfig(context.Background(), cfg)); got != cfg {
		t.Error("FromContext did not return the stored config")
	}
	if got := FromContext(context.Background()); got.Server.Port != DefaultPort {
		t.Errorf("fallback port = %d", got.Server.Port)
	}
}
