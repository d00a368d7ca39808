package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

var videoExts = map[string]bool{".mp4": true, ".mov": true, ".m4v": true, ".mkv": true, ".webm": true, ".avi": true}

// RouterOptions configures a Router.
type RouterOptions struct {
	// CacheSize bounds the number of decoded frames kept in memory.
	CacheSize int
	// DPI is used when rasterizing PDF pages.
	DPI int
	// FFmpegPath locates the ffmpeg binary for video frames.
	FFmpegPath string
	// VideoFrameStep quantizes video offsets (ms) before extraction so
	// nearby requests share one cached frame. Zero disables quantization.
	VideoFrameStep int64
	Logger         *slog.Logger
}

// Router resolves media references by their form:
//
//	path/to/still.png        image file, offset ignored
//	path/to/deck.pdf#page=3  PDF page (1-based), offset ignored
//	path/to/clip.mp4         video frame at the offset, via ffmpeg
//
// Decoded frames are kept in an LRU cache shared by all callers; returned
// images must be treated as read-only.
type Router struct {
	cache  *lru.Cache[string, image.Image]
	dpi    int
	ffmpeg string
	step   int64
	logger *slog.Logger
}

func NewRouter(opts RouterOptions) (*Router, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	if opts.DPI <= 0 {
		opts.DPI = 150
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	cache, err := lru.New[string, image.Image](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create frame cache: %w", err)
	}
	return &Router{
		cache:  cache,
		dpi:    opts.DPI,
		ffmpeg: opts.FFmpegPath,
		step:   opts.VideoFrameStep,
		logger: opts.Logger,
	}, nil
}

// mediaRef is a parsed media reference.
type mediaRef struct {
	path string
	kind string // "image", "pdf" or "video"
	page int    // 0-based, PDF only
}

func parseRef(ref string) (mediaRef, error) {
	path, fragment, _ := strings.Cut(ref, "#")
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".pdf":
		page := 1
		if fragment != "" {
			v, ok := strings.CutPrefix(fragment, "page=")
			n, err := strconv.Atoi(v)
			if !ok || err != nil || n < 1 {
				return mediaRef{}, fmt.Errorf("%s: bad page fragment %q: %w", ref, fragment, ErrUnsupported)
			}
			page = n
		}
		return mediaRef{path: path, kind: "pdf", page: page - 1}, nil
	case imageExts[ext]:
		return mediaRef{path: path, kind: "image"}, nil
	case videoExts[ext]:
		return mediaRef{path: path, kind: "video"}, nil
	}
	return mediaRef{}, fmt.Errorf("%s: %w", ref, ErrUnsupported)
}

// Frame implements Resolver.
func (r *Router) Frame(ctx context.Context, ref string, offset int64) (image.Image, error) {
	m, err := parseRef(ref)
	if err != nil {
		return nil, err
	}

	key := m.path
	switch m.kind {
	case "pdf":
		key = fmt.Sprintf("%s#page=%d@%d", m.path, m.page+1, r.dpi)
	case "video":
		if r.step > 0 {
			offset -= offset % r.step
		}
		key = fmt.Sprintf("%s@%d", m.path, offset)
	}
	if img, ok := r.cache.Get(key); ok {
		return img, nil
	}

	var img image.Image
	switch m.kind {
	case "image":
		img, err = decodeImageFile(m.path)
	case "pdf":
		img, err = renderPDFPage(m.path, m.page, r.dpi)
	case "video":
		img, err = r.extractVideoFrame(ctx, m.path, offset)
	}
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, img)
	r.logger.Debug("media frame decoded", "ref", ref, "offset", offset, "bounds", img.Bounds().String())
	return img, nil
}

// Len is the number of cached frames.
func (r *Router) Len() int { return r.cache.Len() }

// Purge empties the frame cache.
func (r *Router) Purge() { r.cache.Purge() }

func frameArgs(path string, offset int64) []string {
	return []string{
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", float64(offset)/1000),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
}

func (r *Router) extractVideoFrame(ctx context.Context, path string, offset int64) (image.Image, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.ffmpeg, frameArgs(path, offset)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame %s@%dms: %w: %s", path, offset, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg frame %s@%dms: no frame at offset", path, offset)
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode ffmpeg frame %s@%dms: %w", path, offset, err)
	}
	return img, nil
}
