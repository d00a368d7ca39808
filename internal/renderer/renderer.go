// Package renderer rasterizes composited draw lists into RGBA frames. It is
// the reference consumer of compositor.Frame used for previews and export.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/ivlev/nlecore/internal/compositor"
	"github.com/ivlev/nlecore/internal/effects"
	"github.com/ivlev/nlecore/internal/source"
	"github.com/ivlev/nlecore/internal/system"
	"github.com/ivlev/nlecore/internal/timeline"
)

// ErrNoResolver is returned when a frame references media but the renderer
// was built without a Resolver.
var ErrNoResolver = errors.New("renderer: no media resolver")

type Options struct {
	Width, Height int
	Background    color.Color
	Resolver      source.Resolver
	// Debug stamps each frame with its time as text and a QR code.
	Debug  bool
	Pool   *system.ImagePool
	Logger *slog.Logger
}

// Renderer draws visual instructions bottom layer first. A Renderer is safe
// for concurrent use when its Resolver is.
type Renderer struct {
	width, height int
	background    *image.Uniform
	resolver      source.Resolver
	debug         bool
	pool          *system.ImagePool
	interp        xdraw.Transformer
	logger        *slog.Logger
}

func New(opts Options) (*Renderer, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("renderer: invalid size %dx%d", opts.Width, opts.Height)
	}
	if opts.Background == nil {
		opts.Background = color.Black
	}
	if opts.Pool == nil {
		opts.Pool = system.NewImagePool()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Renderer{
		width:      opts.Width,
		height:     opts.Height,
		background: image.NewUniform(opts.Background),
		resolver:   opts.Resolver,
		debug:      opts.Debug,
		pool:       opts.Pool,
		interp:     xdraw.ApproxBiLinear,
		logger:     opts.Logger,
	}, nil
}

func (r *Renderer) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.width, r.height)
}

// Render rasterizes frame. The returned canvas comes from the renderer's
// pool; hand it back with Release once it has been consumed.
func (r *Renderer) Render(ctx context.Context, frame compositor.Frame) (*image.RGBA, error) {
	canvas := r.pool.Get(r.Bounds())
	xdraw.Draw(canvas, canvas.Rect, r.background, image.Point{}, xdraw.Src)

	for _, in := range frame.Visual() {
		if in.Opacity <= 0 || in.Reveal <= 0 {
			continue
		}
		var err error
		if in.TrackKind == timeline.TrackEffect {
			err = r.adjust(canvas, &in)
		} else {
			err = r.drawLayer(ctx, canvas, &in)
		}
		if err != nil {
			r.pool.Put(canvas)
			return nil, fmt.Errorf("clip %s at %dms: %w", in.ClipID, frame.Time, err)
		}
	}

	if r.debug {
		if err := r.stamp(canvas, frame); err != nil {
			r.logger.Warn("debug stamp failed", "time", frame.Time, "error", err)
		}
	}
	return canvas, nil
}

// Release returns a canvas obtained from Render to the pool.
func (r *Renderer) Release(img *image.RGBA) {
	r.pool.Put(img)
}

func (r *Renderer) drawLayer(ctx context.Context, canvas *image.RGBA, in *compositor.Instruction) error {
	src, err := r.layerSource(ctx, in)
	if err != nil {
		return err
	}
	if len(in.Effects) > 0 {
		filtered := image.NewRGBA(src.Bounds())
		xdraw.Draw(filtered, filtered.Rect, src, src.Bounds().Min, xdraw.Src)
		for _, eff := range in.Effects {
			if err := effects.Apply(filtered, eff.Kind, eff.Params); err != nil {
				return err
			}
		}
		src = filtered
	}

	rect := r.placement(in, src.Bounds())
	if rect.w <= 0 || rect.h <= 0 || src.Bounds().Empty() {
		return nil
	}

	scratch := r.clearScratch()
	defer r.pool.Put(scratch)
	r.interp.Transform(scratch, rect.affine(src.Bounds()), src, src.Bounds(), xdraw.Over, nil)

	r.composite(canvas, scratch, rect.revealClip(in.Reveal), in.Opacity)
	return nil
}

// adjust applies an effect-track clip to everything drawn beneath it.
func (r *Renderer) adjust(canvas *image.RGBA, in *compositor.Instruction) error {
	if len(in.Effects) == 0 {
		return nil
	}
	scratch := r.pool.Get(canvas.Rect)
	defer r.pool.Put(scratch)
	copy(scratch.Pix, canvas.Pix)
	for _, eff := range in.Effects {
		if err := effects.Apply(scratch, eff.Kind, eff.Params); err != nil {
			return err
		}
	}

	clip := canvas.Rect
	if in.Reveal < 1 {
		clip.Max.X = clip.Min.X + int(math.Round(float64(clip.Dx())*in.Reveal))
	}
	r.composite(canvas, scratch, clip, in.Opacity)
	return nil
}

func (r *Renderer) layerSource(ctx context.Context, in *compositor.Instruction) (image.Image, error) {
	if in.MediaKind == timeline.MediaText {
		return renderText(in.MediaRef, color.White), nil
	}
	if r.resolver == nil {
		return nil, ErrNoResolver
	}
	return r.resolver.Frame(ctx, in.MediaRef, in.MediaOffset)
}

func (r *Renderer) clearScratch() *image.RGBA {
	scratch := r.pool.Get(r.Bounds())
	clear(scratch.Pix)
	return scratch
}

// composite draws layer over canvas inside clip with a uniform opacity.
func (r *Renderer) composite(canvas, layer *image.RGBA, clip image.Rectangle, opacity float64) {
	clip = clip.Intersect(canvas.Rect)
	if clip.Empty() {
		return
	}
	if opacity >= 1 {
		xdraw.Draw(canvas, clip, layer, clip.Min, xdraw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(opacity * 255))})
	xdraw.DrawMask(canvas, clip, layer, clip.Min, mask, image.Point{}, xdraw.Over)
}

// rect is a destination rectangle in canvas pixels plus a clockwise rotation
// about its centre.
type rect struct {
	x, y, w, h float64
	rotation   float64 // degrees
}

// placement resolves where a source of bounds src lands on the canvas. A
// zero width or height fills the canvas; text without a size is laid out as
// a bottom-centred caption. Transition scale and shift are applied last.
func (r *Renderer) placement(in *compositor.Instruction, src image.Rectangle) rect {
	tr := in.Transform
	out := rect{x: tr.X, y: tr.Y, w: tr.Width, h: tr.Height, rotation: tr.Rotation}
	if out.w == 0 || out.h == 0 {
		if in.MediaKind == timeline.MediaText && src.Dy() > 0 {
			out.h = float64(r.height) / 12
			out.w = out.h * float64(src.Dx()) / float64(src.Dy())
			out.x = tr.X + (float64(r.width)-out.w)/2
			out.y = tr.Y + float64(r.height) - 2*out.h
		} else {
			out.w, out.h = float64(r.width), float64(r.height)
		}
	}

	scale := in.Scale
	if scale <= 0 {
		scale = 1
	}
	w, h := out.w*scale, out.h*scale
	out.x += (out.w-w)/2 + in.Shift*out.w
	out.y += (out.h - h) / 2
	out.w, out.h = w, h
	return out
}

// affine maps source pixel coordinates onto the rectangle.
func (p rect) affine(src image.Rectangle) f64.Aff3 {
	sx := p.w / float64(src.Dx())
	sy := p.h / float64(src.Dy())
	sin, cos := math.Sincos(p.rotation * math.Pi / 180)
	cx, cy := p.x+p.w/2, p.y+p.h/2
	ox := sx*float64(src.Min.X) + p.w/2
	oy := sy*float64(src.Min.Y) + p.h/2
	return f64.Aff3{
		cos * sx, -sin * sy, cx - cos*ox + sin*oy,
		sin * sx, cos * sy, cy - sin*ox - cos*oy,
	}
}

// revealClip is the canvas area a wipe leaves visible: the left reveal
// fraction of the unrotated rectangle, over the full canvas height.
func (p rect) revealClip(reveal float64) image.Rectangle {
	if reveal >= 1 {
		return image.Rect(math.MinInt32, math.MinInt32, math.MaxInt32, math.MaxInt32)
	}
	return image.Rect(int(math.Floor(p.x)), math.MinInt32, int(math.Floor(p.x+p.w*reveal)), math.MaxInt32)
}
