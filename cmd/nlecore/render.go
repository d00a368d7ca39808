package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivlev/nlecore/internal/config"
	"github.com/ivlev/nlecore/internal/engine"
	"github.com/ivlev/nlecore/internal/logging"
	"github.com/ivlev/nlecore/internal/system"
	"github.com/ivlev/nlecore/internal/video"
)

var renderFlags struct {
	output    string
	framesDir string
	preset    string
	fps       int
	workers   int
	quality   int
	encoder   string
	debug     bool
}

var renderCmd = &cobra.Command{
	Use:   "render [project file]",
	Short: "Render a project to video",
	Long:  "Render every frame of a project and encode it with ffmpeg, or write a PNG sequence with --frames.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRender,
}

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderFlags.output, "output", "o", "", "output video (default: output/<project>_<timestamp>.mp4)")
	f.StringVar(&renderFlags.framesDir, "frames", "", "write a PNG sequence to this directory instead of encoding")
	f.StringVar(&renderFlags.preset, "preset", "", "size preset: 16:9, 9:16 (Shorts/TikTok), 4:5 (Instagram)")
	f.IntVar(&renderFlags.fps, "fps", 0, "frames per second (default from config)")
	f.IntVar(&renderFlags.workers, "workers", 0, "parallel rasterizers (default from config)")
	f.IntVar(&renderFlags.quality, "quality", 0, "encoder quality (0 = per-encoder default)")
	f.StringVar(&renderFlags.encoder, "encoder", "", "ffmpeg video codec, or auto")
	f.BoolVar(&renderFlags.debug, "debug", false, "stamp timecode and QR code on each frame")
}

func runRender(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	if err := applyRenderFlags(cfg); err != nil {
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
	if state.Duration == 0 {
		return fmt.Errorf("project %s is empty", path)
	}

	raster, err := newRasterizer(cfg)
	if err != nil {
		return err
	}

	var enc video.Encoder
	var output string
	if renderFlags.framesDir != "" {
		seq, err := video.NewPNGSequence(renderFlags.framesDir)
		if err != nil {
			return err
		}
		enc, output = seq, renderFlags.framesDir
	} else {
		output = renderFlags.output
		if output == "" {
			output = defaultOutput(path)
		}
		if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
			return err
		}
		codec := cfg.Render.Encoder
		if codec == "auto" {
			codec = system.BestH264Encoder(ctx, cfg.Render.FFmpegPath)
		}
		ff, err := video.OpenFFmpeg(ctx, output, video.Settings{
			Width:      cfg.Render.Width,
			Height:     cfg.Render.Height,
			FPS:        cfg.Render.FPS,
			Codec:      codec,
			Quality:    encoderQuality(codec, cfg.Render.Quality),
			Audio:      engine.AudioInputs(&state),
			FFmpegPath: cfg.Render.FFmpegPath,
		})
		if err != nil {
			return err
		}
		enc = ff
		fmt.Fprintf(os.Stderr, "[*] Encoder: %s\n", codec)
	}

	total := engine.FrameCount(state.Duration, cfg.Render.FPS)
	fmt.Fprintf(os.Stderr, "[*] Rendering %s: %d frames at %dx%d, %d fps\n",
		path, total, cfg.Render.Width, cfg.Render.Height, cfg.Render.FPS)

	exporter := engine.NewExporter(raster, enc, engine.Options{
		FPS:      cfg.Render.FPS,
		Workers:  cfg.Render.Workers,
		Logger:   logging.WithComponent(logger, "engine"),
		Progress: progressPrinter(),
	})
	report, err := exporter.Export(ctx, &state)
	closeErr := enc.Close()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}

	fmt.Fprintf(os.Stderr, "[+++] Done: %s (%d frames in %s, %.1f fps)\n",
		output, report.Frames, report.Elapsed.Round(time.Millisecond), report.FPS)
	return json.NewEncoder(os.Stdout).Encode(report)
}

func applyRenderFlags(cfg *config.Config) error {
	if err := applyPreset(cfg, renderFlags.preset); err != nil {
		return err
	}
	if renderFlags.fps > 0 {
		cfg.Render.FPS = renderFlags.fps
	}
	if renderFlags.workers > 0 {
		cfg.Render.Workers = renderFlags.workers
	}
	if renderFlags.encoder != "" {
		cfg.Render.Encoder = renderFlags.encoder
	}
	if renderFlags.debug {
		cfg.Render.Debug = true
	}
	if renderFlags.quality > 0 {
		cfg.Render.Quality = renderFlags.quality
	}
	return cfg.Validate()
}

// encoderQuality picks a default in the encoder's own scale when none was
// configured: bitrate steps for VideoToolbox, CQ for NVENC, CRF otherwise.
func encoderQuality(codec string, configured int) int {
	if configured > 0 {
		return configured
	}
	switch {
	case strings.Contains(codec, "videotoolbox"):
		return 75
	case strings.Contains(codec, "nvenc"):
		return 28
	default:
		return 23
	}
}

func defaultOutput(projectPath string) string {
	name := strings.TrimSuffix(filepath.Base(projectPath), filepath.Ext(projectPath))
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join("output", fmt.Sprintf("%s_%s.mp4", name, timestamp))
}

func progressPrinter() func(done, total int) {
	last := -1
	return func(done, total int) {
		if total == 0 {
			return
		}
		pct := done * 100 / total
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(os.Stderr, "\r[*] %3d%% (%d/%d frames)", pct, done, total)
	}
}
