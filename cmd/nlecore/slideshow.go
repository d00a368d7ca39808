package main

import (
	"fmt"
	"image"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivlev/nlecore/internal/config"
	"github.com/ivlev/nlecore/internal/director"
	"github.com/ivlev/nlecore/internal/logging"
	"github.com/ivlev/nlecore/internal/project"
	"github.com/ivlev/nlecore/internal/source"
	"github.com/ivlev/nlecore/internal/system"
	"github.com/ivlev/nlecore/internal/timeline"
)

// detectDPI is the resolution pages are rasterized at for region detection.
const detectDPI = 72

var slideshowFlags struct {
	output       string
	audio        string
	audioSync    bool
	detect       bool
	pageDuration int64
	total        int64
	pace         bool
	seed         int64
	transition   string
	preset       string
}

var slideshowCmd = &cobra.Command{
	Use:   "slideshow <pdf or image dir>",
	Short: "Build a project from a PDF or a directory of images",
	Long: "Place one image clip per page on V1 with pan-and-zoom keyframes over the detected " +
		"content regions and optional narration on A1. The result is a normal project file.",
	Args: cobra.ExactArgs(1),
	RunE: runSlideshow,
}

func init() {
	f := slideshowCmd.Flags()
	f.StringVarP(&slideshowFlags.output, "output", "o", "", "project file (default: a new file in the projects directory)")
	f.StringVar(&slideshowFlags.audio, "audio", "", "narration audio placed on A1")
	f.BoolVar(&slideshowFlags.audioSync, "audio-sync", true, "fit the slideshow to the audio duration")
	f.BoolVar(&slideshowFlags.detect, "detect", true, "zoom into detected content regions")
	f.Int64Var(&slideshowFlags.pageDuration, "page-duration", 5000, "time per page in ms")
	f.Int64Var(&slideshowFlags.total, "duration", 0, "total duration in ms (overrides --page-duration)")
	f.BoolVar(&slideshowFlags.pace, "pace", true, "vary page durations around the even share")
	f.Int64Var(&slideshowFlags.seed, "seed", 0, "pacing seed (default: current time)")
	f.StringVar(&slideshowFlags.transition, "transition", "dissolve", "transition between pages: fade, dissolve, wipe, slide, zoom, none")
	f.StringVar(&slideshowFlags.preset, "preset", "", "viewport preset: 16:9, 9:16, 4:5")
}

func runSlideshow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	if err := applyPreset(cfg, slideshowFlags.preset); err != nil {
		return err
	}

	deck, err := source.OpenDeck(args[0])
	if err != nil {
		return err
	}
	defer deck.Close()
	pages := deck.PageCount()
	if pages == 0 {
		return fmt.Errorf("%s has no pages", args[0])
	}
	fmt.Fprintf(os.Stderr, "[*] %s: %d pages\n", args[0], pages)

	dir := director.NewDirector(cfg.Render.Width, cfg.Render.Height)
	if err := configureTransition(dir, slideshowFlags.transition); err != nil {
		return err
	}

	total := slideshowFlags.total
	if slideshowFlags.audio != "" && slideshowFlags.audioSync && total == 0 {
		ms, err := system.ProbeDuration(ctx, ffprobePath(cfg.Render.FFmpegPath), slideshowFlags.audio)
		if err != nil {
			return err
		}
		total = ms
		fmt.Fprintf(os.Stderr, "[*] Audio duration: %s\n", time.Duration(ms)*time.Millisecond)
	}
	if total == 0 {
		total = slideshowFlags.pageDuration * int64(pages)
	}

	durations := make([]int64, pages)
	if slideshowFlags.pace {
		seed := slideshowFlags.seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		durations = director.PaceSlides(total, pages, 2*dir.Hold+dir.MinDwell, rand.New(rand.NewSource(seed)))
	} else {
		for i := range durations {
			durations[i] = total / int64(pages)
		}
		durations[pages-1] += total % int64(pages)
	}

	detector := director.NewRegionDetector()
	slides := make([]director.Slide, pages)
	for i := range slides {
		slides[i] = director.Slide{MediaRef: deck.PageRef(i), Duration: durations[i]}
		if !slideshowFlags.detect {
			continue
		}
		regions, err := pageRegions(deck, i, detector, dir)
		if err != nil {
			logger.Warn("region detection failed", "page", i+1, "error", err)
			continue
		}
		slides[i].Regions = regions
		logger.Debug("regions detected", "page", i+1, "count", len(regions))
	}

	opts := cfg.TimelineOptions()
	opts.Logger = logging.WithComponent(logger, "timeline")
	ed := timeline.NewEditor(opts)
	if _, err := dir.Build(ed, slides, total/int64(pages)); err != nil {
		return err
	}
	if slideshowFlags.audio != "" {
		if _, err := ed.AddClip("A1", timeline.ClipSpec{
			MediaKind: timeline.MediaAudio,
			MediaRef:  slideshowFlags.audio,
			Duration:  total,
		}); err != nil {
			return fmt.Errorf("place audio: %w", err)
		}
	}

	out := slideshowFlags.output
	if out == "" {
		name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		out = project.GeneratePath(projectsDir(cfg), name)
	}
	if err := project.WriteFile(out, ed.State()); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "[+++] Project written: %s (%s)\n", out, time.Duration(ed.State().Duration)*time.Millisecond)
	return nil
}

func pageRegions(deck source.Deck, page int, detector *director.RegionDetector, dir *director.Director) ([]image.Rectangle, error) {
	img, err := deck.RenderPage(page, detectDPI)
	if err != nil {
		return nil, err
	}
	regions, err := detector.Detect(img)
	if err != nil {
		return nil, err
	}
	return dir.ScaleRegions(regions, img.Bounds()), nil
}

func configureTransition(dir *director.Director, kind string) error {
	if kind == "none" {
		dir.Transition = timeline.Transition{}
		return nil
	}
	k := timeline.TransitionKind(kind)
	if !k.Valid() {
		return fmt.Errorf("unknown transition %q", kind)
	}
	dir.Transition.Kind = k
	return nil
}

// ffprobePath finds ffprobe next to a configured ffmpeg binary.
func ffprobePath(ffmpeg string) string {
	dir, base := filepath.Split(ffmpeg)
	if !strings.HasPrefix(base, "ffmpeg") {
		return "ffprobe"
	}
	return dir + "ffprobe" + strings.TrimPrefix(base, "ffmpeg")
}
