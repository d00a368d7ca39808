// Package config loads nlecore settings: built-in defaults, then an optional
// YAML file, then NLE_* environment overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/nlecore/internal/system"
	"github.com/ivlev/nlecore/internal/timeline"
)

const (
	DefaultPort     = 8787
	DefaultLogLevel = "info"
	DefaultDataDir  = ".nlecore"

	EnvLogLevel = "NLE_LOG_LEVEL"
	EnvPort     = "NLE_PORT"
	EnvDataDir  = "NLE_DATA_DIR"
	EnvFPS      = "NLE_FPS"
	EnvWorkers  = "NLE_WORKERS"
	EnvEncoder  = "NLE_ENCODER"

	DBFilename = "nlecore.db"
)

type contextKey string

const configKey contextKey = "config"

type Config struct {
	LogLevel string         `yaml:"log_level"`
	DataDir  string         `yaml:"data_dir"`
	Render   RenderConfig   `yaml:"render"`
	Playback PlaybackConfig `yaml:"playback"`
	Timeline TimelineConfig `yaml:"timeline"`
	Server   ServerConfig   `yaml:"server"`
}

type RenderConfig struct {
	Width   int `yaml:"width"`
	Height  int `yaml:"height"`
	FPS     int `yaml:"fps"`
	Workers int `yaml:"workers"`
	// Encoder is an ffmpeg video codec name; "auto" picks the best H.264
	// encoder the local ffmpeg offers.
	Encoder string `yaml:"encoder"`
	// Quality is in the encoder's own scale; 0 picks a per-encoder default.
	Quality    int    `yaml:"quality"`
	Debug      bool   `yaml:"debug"`
	DPI        int    `yaml:"dpi"`
	CacheSize  int    `yaml:"cache_size"`
	FFmpegPath string `yaml:"ffmpeg_path"`
}

type PlaybackConfig struct {
	Loop         bool          `yaml:"loop"`
	TickInterval time.Duration `yaml:"tick_interval"`
}

type TimelineConfig struct {
	Overlap timeline.OverlapPolicy `yaml:"overlap"`
	Tracks  []timeline.TrackSpec   `yaml:"tracks"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		DataDir:  DefaultDataDir,
		Render: RenderConfig{
			Width:      1280,
			Height:     720,
			FPS:        30,
			Workers:    system.DefaultWorkers(),
			Encoder:    "auto",
			DPI:        150,
			CacheSize:  64,
			FFmpegPath: "ffmpeg",
		},
		Playback: PlaybackConfig{
			Loop:         true,
			TickInterval: time.Second / 30,
		},
		Timeline: TimelineConfig{
			Overlap: timeline.DefaultOverlapPolicy(),
			Tracks:  timeline.DefaultTracks(),
		},
		Server: ServerConfig{Port: DefaultPort},
	}
}

// Load reads configuration from path, or from the first config file found
// in the usual places when path is empty, and applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvEncoder); v != "" {
		c.Render.Encoder = v
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{EnvPort, &c.Server.Port},
		{EnvFPS, &c.Render.FPS},
		{EnvWorkers, &c.Render.Workers},
	}
	for _, it := range ints {
		v := os.Getenv(it.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", it.name, err)
		}
		*it.dst = n
	}
	return nil
}

// Validate reports the first setting that is out of range.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}
	r := c.Render
	if r.Width <= 0 || r.Height <= 0 || r.Width%2 != 0 || r.Height%2 != 0 {
		return fmt.Errorf("invalid render size %dx%d: must be positive and even", r.Width, r.Height)
	}
	if r.FPS <= 0 || r.FPS > 240 {
		return fmt.Errorf("invalid render.fps %d", r.FPS)
	}
	if r.Workers < 1 {
		return fmt.Errorf("invalid render.workers %d", r.Workers)
	}
	if r.Quality < 0 {
		return fmt.Errorf("invalid render.quality %d", r.Quality)
	}
	if r.DPI <= 0 {
		return fmt.Errorf("invalid render.dpi %d", r.DPI)
	}
	if c.Playback.TickInterval <= 0 {
		return fmt.Errorf("invalid playback.tick_interval %s", c.Playback.TickInterval)
	}
	for kind := range c.Timeline.Overlap {
		if !kind.Valid() {
			return fmt.Errorf("invalid timeline.overlap kind %q", kind)
		}
	}
	for _, ts := range c.Timeline.Tracks {
		if !ts.Kind.Valid() {
			return fmt.Errorf("invalid kind %q for track %q", ts.Kind, ts.ID)
		}
	}
	return nil
}

// DBPath is the SQLite snapshot database inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFilename)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// TimelineOptions builds editor options from the timeline section.
func (c *Config) TimelineOptions() timeline.Options {
	return timeline.Options{Overlap: c.Timeline.Overlap, Tracks: c.Timeline.Tracks}
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func findConfigFile() string {
	candidates := []string{
		"./nlecore.yaml",
		"./nlecore.yml",
		filepath.Join(os.Getenv("HOME"), ".nlecore", "config.yaml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// WithConfig stores cfg in ctx.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext returns the config stored by WithConfig, or the defaults.
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
