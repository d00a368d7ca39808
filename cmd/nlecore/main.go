package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ivlev/nlecore/internal/config"
	"github.com/ivlev/nlecore/internal/logging"
	"github.com/ivlev/nlecore/internal/project"
	"github.com/ivlev/nlecore/internal/renderer"
	"github.com/ivlev/nlecore/internal/source"
	"github.com/ivlev/nlecore/internal/system"
	"github.com/ivlev/nlecore/internal/timeline"
)

const version = "0.3.0"

var (
	cfgFile string
	verbose bool
	logger  = slog.New(slog.DiscardHandler)
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "nlecore",
	Short:   "nlecore - timeline editing and rendering engine",
	Long:    "Edit multi-track timelines, preview frames over HTTP and render them to video with ffmpeg.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		logger = logging.NewLogger(cfg.LogLevel)
		system.RaiseFileLimit(4096, logger)

		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./nlecore.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(slideshowCmd)
}

// applyPreset overrides the render size with a named aspect preset.
func applyPreset(cfg *config.Config, preset string) error {
	switch preset {
	case "":
	case "16:9":
		cfg.Render.Width, cfg.Render.Height = 1280, 720
	case "9:16":
		cfg.Render.Width, cfg.Render.Height = 720, 1280
	case "4:5":
		cfg.Render.Width, cfg.Render.Height = 1080, 1350
	default:
		return fmt.Errorf("unknown preset %q: want 16:9, 9:16 or 4:5", preset)
	}
	return nil
}

// projectPath returns args[0], or the newest project in the projects
// directory when no argument was given.
func projectPath(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	latest, err := project.FindLatest(projectsDir(cfg))
	if err != nil {
		return "", err
	}
	fmt.Fprintf(os.Stderr, "[*] Using project: %s\n", latest)
	return latest, nil
}

func projectsDir(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "projects")
}

func openProject(cfg *config.Config, path string) (*timeline.Editor, error) {
	opts := cfg.TimelineOptions()
	opts.Logger = logging.WithComponent(logger, "timeline")
	return project.Open(path, opts)
}

// newRasterizer builds the media router and frame renderer for cfg.
func newRasterizer(cfg *config.Config) (*renderer.Renderer, error) {
	router, err := source.NewRouter(source.RouterOptions{
		CacheSize:  cfg.Render.CacheSize,
		DPI:        cfg.Render.DPI,
		FFmpegPath: cfg.Render.FFmpegPath,
		Logger:     logging.WithComponent(logger, "source"),
	})
	if err != nil {
		return nil, err
	}
	return renderer.New(renderer.Options{
		Width:    cfg.Render.Width,
		Height:   cfg.Render.Height,
		Resolver: router,
		Debug:    cfg.Render.Debug,
		Pool:     system.NewImagePool(),
		Logger:   logging.WithComponent(logger, "renderer"),
	})
}
