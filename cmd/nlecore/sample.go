package main

import (
	"encoding/json"
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/ivlev/nlecore/internal/compositor"
	"github.com/ivlev/nlecore/internal/config"
	"github.com/ivlev/nlecore/internal/engine"
)

var sampleFlags struct {
	at     int64
	all    bool
	pngOut string
	preset string
}

var sampleCmd = &cobra.Command{
	Use:   "sample [project file]",
	Short: "Print the composited frame at a time",
	Long: "Sample the timeline and print the draw and mix instructions as JSON. " +
		"With --all every frame is printed as one JSON line; with --png the frame is rendered to an image.",
	Args: cobra.MaximumNArgs(1),
	RunE: runSample,
}

func init() {
	f := sampleCmd.Flags()
	f.Int64Var(&sampleFlags.at, "at", 0, "timeline time in ms")
	f.BoolVar(&sampleFlags.all, "all", false, "print every frame at the configured fps")
	f.StringVar(&sampleFlags.pngOut, "png", "", "render the frame to this PNG file")
	f.StringVar(&sampleFlags.preset, "preset", "", "size preset for --png: 16:9, 9:16, 4:5")
}

func runSample(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	if err := applyPreset(cfg, sampleFlags.preset); err != nil {
		return err
	}
	path, err := projectPath(cfg, args)
	if err != nil {
		return err
	}
	ed, err := openProject(cfg, path)
	if err != nil {
		return err
	}
	state := ed.Snapshot()
	enc := json.NewEncoder(os.Stdout)

	if sampleFlags.all {
		return engine.SampleFrames(ctx, &state, cfg.Render.FPS, func(f compositor.Frame) error {
			return enc.Encode(f)
		})
	}

	if sampleFlags.at < 0 || sampleFlags.at > state.Duration {
		return fmt.Errorf("time %d outside [0, %d]", sampleFlags.at, state.Duration)
	}
	frame := compositor.Sample(&state, sampleFlags.at)
	if sampleFlags.pngOut == "" {
		enc.SetIndent("", "  ")
		return enc.Encode(frame)
	}

	raster, err := newRasterizer(cfg)
	if err != nil {
		return err
	}
	img, err := raster.Render(ctx, frame)
	if err != nil {
		return err
	}
	defer raster.Release(img)

	out, err := os.Create(sampleFlags.pngOut)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "[+] Frame %d written to %s\n", frame.Time, sampleFlags.pngOut)
	return nil
}
