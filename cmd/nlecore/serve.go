package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivlev/nlecore/internal/api"
	"github.com/ivlev/nlecore/internal/config"
	"github.com/ivlev/nlecore/internal/logging"
	"github.com/ivlev/nlecore/internal/store"
	"github.com/ivlev/nlecore/internal/timeline"
)

var serveFlags struct {
	name    string
	port    int
	restore bool
}

var serveCmd = &cobra.Command{
	Use:   "serve [project file]",
	Short: "Serve an editing session over HTTP",
	Long: "Open a project, or an empty timeline, and expose editing, playback, " +
		"frame previews and snapshots over HTTP until interrupted.",
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.name, "name", "", "project name for snapshots (default: file name or untitled)")
	f.IntVar(&serveFlags.port, "port", 0, "listen port (default from config)")
	f.BoolVar(&serveFlags.restore, "restore", false, "start from the latest snapshot of the project")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	if serveFlags.port > 0 {
		cfg.Server.Port = serveFlags.port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	name := serveFlags.name
	var ed *timeline.Editor
	if len(args) > 0 {
		var err error
		if ed, err = openProject(cfg, args[0]); err != nil {
			return err
		}
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}
	}
	if name == "" {
		name = "untitled"
	}

	st, err := store.New(cfg.DBPath(), logging.WithComponent(logger, "store"))
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer st.Close()

	if serveFlags.restore {
		snap, state, err := st.Latest(ctx, name)
		switch {
		case errors.Is(err, store.ErrNotFound):
			logger.Info("no snapshot to restore", "project", name)
		case err != nil:
			return err
		default:
			opts := cfg.TimelineOptions()
			opts.Logger = logging.WithComponent(logger, "timeline")
			opts.Tracks = []timeline.TrackSpec{}
			ed = timeline.NewEditor(opts)
			if err := ed.Load(state); err != nil {
				return fmt.Errorf("restore snapshot %s: %w", snap.ID, err)
			}
			logger.Info("restored snapshot", "id", snap.ID, "project", name)
		}
	}
	if ed == nil {
		opts := cfg.TimelineOptions()
		opts.Logger = logging.WithComponent(logger, "timeline")
		ed = timeline.NewEditor(opts)
	}

	raster, err := newRasterizer(cfg)
	if err != nil {
		return err
	}

	sessionLogger := logging.WithProjectID(logging.WithComponent(logger, "session"), name)
	session := api.NewSession(api.SessionOptions{
		Name:         name,
		Editor:       ed,
		TickInterval: cfg.Playback.TickInterval,
		Loop:         cfg.Playback.Loop,
		Logger:       sessionLogger,
	})
	server := api.NewServer(api.ServerConfig{
		Addr:      cfg.Addr(),
		Session:   session,
		Renderer:  raster,
		Store:     st,
		Logger:    logging.WithComponent(logger, "api"),
		StartTime: time.Now(),
		Version:   version,
	})

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		session.Run(loopCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err = <-serverErr:
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = server.Shutdown(shutdownCtx)
		cancel()
	}

	stopLoop()
	<-loopDone
	return err
}
