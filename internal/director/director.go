// Package director lays out slide decks (stills or PDF pages) on a timeline
// with dissolves between slides and a camera path that visits each slide's
// regions of interest.
package director

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/ivlev/nlecore/internal/timeline"
)

// Slide is one still placed by the director.
type Slide struct {
	MediaRef string
	// Regions are areas of the slide, in output pixels, the camera should
	// visit in reading order. Empty means a slow push-in on the centre.
	Regions []image.Rectangle
	// Duration overrides the per-slide budget passed to Build when set.
	Duration int64
}

// Director generates camera path timelines for slide decks
type Director struct {
	ViewportWidth  int
	ViewportHeight int
	MinDwell       int64 // minimum time per region (ms)
	MaxDwell       int64 // maximum time per region (ms)
	Hold           int64 // full view at the start and end of a slide (ms)
	Transition     timeline.Transition
	TrackID        string
}

// NewDirector creates a new Director with default settings
func NewDirector(viewportWidth, viewportHeight int) *Director {
	return &Director{
		ViewportWidth:  viewportWidth,
		ViewportHeight: viewportHeight,
		MinDwell:       1000,
		MaxDwell:       3000,
		Hold:           1000,
		Transition:     timeline.Transition{Kind: timeline.TransitionDissolve, Duration: 500, Easing: timeline.EaseInOut},
		TrackID:        "V1",
	}
}

// Build appends one image clip per slide to the director's track, starting at
// the current end of the timeline. slideDuration is the time budget per
// slide; each slide gets at least enough time for its holds and minimum
// dwells. It returns the ids of the created clips.
func (d *Director) Build(ed *timeline.Editor, slides []Slide, slideDuration int64) ([]string, error) {
	if len(slides) == 0 {
		return nil, fmt.Errorf("no slides to place")
	}
	if d.ViewportWidth <= 0 || d.ViewportHeight <= 0 {
		return nil, fmt.Errorf("invalid viewport %dx%d", d.ViewportWidth, d.ViewportHeight)
	}
	start := ed.State().MaxEnd()

	var ids []string
	for i, slide := range slides {
		budget := slideDuration
		if slide.Duration > 0 {
			budget = slide.Duration
		}
		regions := d.sortRegions(slide.Regions)
		dwell := d.calculateDwellTime(budget, len(regions))
		duration := budget
		if need := 2*d.Hold + dwell*int64(max(len(regions), 1)); duration < need {
			duration = need
		}

		spec := timeline.ClipSpec{
			MediaKind: timeline.MediaImage,
			MediaRef:  slide.MediaRef,
			StartTime: start,
			Duration:  duration,
			Transform: d.fullView(),
			Keyframes: d.generateKeyframes(regions, start, duration, dwell),
		}
		if d.Transition.Duration > 0 && d.Transition.Duration <= duration {
			tr := d.Transition
			if i > 0 {
				spec.In = &tr
			}
			if i < len(slides)-1 {
				out := d.Transition
				spec.Out = &out
			}
		}

		c, err := ed.AddClip(d.TrackID, spec)
		if err != nil {
			return ids, fmt.Errorf("slide %d (%s): %w", i+1, slide.MediaRef, err)
		}
		ids = append(ids, c.ID)
		start += duration
	}
	return ids, nil
}

// sortRegions sorts regions in reading order (top-to-bottom, left-to-right)
func (d *Director) sortRegions(regions []image.Rectangle) []image.Rectangle {
	sorted := make([]image.Rectangle, len(regions))
	copy(sorted, regions)

	sort.SliceStable(sorted, func(i, j int) bool {
		// Threshold for "same row" (20 pixels)
		threshold := 20

		yDiff := sorted[i].Min.Y - sorted[j].Min.Y
		if abs(yDiff) > threshold {
			return sorted[i].Min.Y < sorted[j].Min.Y
		}

		// Same row, sort by X
		return sorted[i].Min.X < sorted[j].Min.X
	})

	return sorted
}

// calculateDwellTime determines how long the camera rests on each region
func (d *Director) calculateDwellTime(slideDuration int64, regionCount int) int64 {
	available := slideDuration - 2*d.Hold
	if available <= 0 {
		available = slideDuration
	}

	dwell := available / int64(max(regionCount, 1))

	// Clamp to min/max
	if dwell < d.MinDwell {
		dwell = d.MinDwell
	}
	if dwell > d.MaxDwell {
		dwell = d.MaxDwell
	}

	return dwell
}

func (d *Director) fullView() timeline.Transform {
	return timeline.Transform{Width: float64(d.ViewportWidth), Height: float64(d.ViewportHeight)}
}

// generateKeyframes animates the clip transform: full view, each region in
// turn, then back to full view at the end of the clip. Times are absolute.
func (d *Director) generateKeyframes(regions []image.Rectangle, start, duration, dwell int64) []timeline.Keyframe {
	kfs := transformKeyframes(start, d.fullView())

	if len(regions) == 0 {
		// Slow push-in on the centre
		centre := image.Rect(d.ViewportWidth/20, d.ViewportHeight/20,
			d.ViewportWidth-d.ViewportWidth/20, d.ViewportHeight-d.ViewportHeight/20)
		return append(kfs, transformKeyframes(start+duration-1, d.frame(centre))...)
	}

	t := start + d.Hold
	for _, r := range regions {
		kfs = append(kfs, transformKeyframes(t, d.frame(r))...)
		t += dwell
	}
	if end := start + duration - d.Hold; t < end {
		t = end
	}
	return append(kfs, transformKeyframes(min(t, start+duration-1), d.fullView())...)
}

func transformKeyframes(at int64, tr timeline.Transform) []timeline.Keyframe {
	values := []struct {
		prop string
		v    float64
	}{
		{timeline.PropX, tr.X},
		{timeline.PropY, tr.Y},
		{timeline.PropWidth, tr.Width},
		{timeline.PropHeight, tr.Height},
	}
	out := make([]timeline.Keyframe, 0, len(values))
	for _, v := range values {
		out = append(out, timeline.Keyframe{Time: at, Property: v.prop, Value: v.v, Easing: timeline.EaseInOut})
	}
	return out
}

// frame returns the clip transform that zooms the viewport onto region,
// centred on it where the image edges allow.
func (d *Director) frame(region image.Rectangle) timeline.Transform {
	zoom := d.calculateZoom(region)
	vw, vh := float64(d.ViewportWidth), float64(d.ViewportHeight)
	w, h := vw*zoom, vh*zoom

	c := calculateCenter(region)
	x := vw/2 - float64(c.X)*zoom
	y := vh/2 - float64(c.Y)*zoom

	// Keep the scaled image covering the viewport
	x = math.Max(vw-w, math.Min(0, x))
	y = math.Max(vh-h, math.Min(0, y))

	return timeline.Transform{X: x, Y: y, Width: w, Height: h}
}

// calculateZoom determines zoom level to fit region in viewport
func (d *Director) calculateZoom(region image.Rectangle) float64 {
	padding := 0.9 // Use 90% of viewport

	viewportW := float64(d.ViewportWidth) * padding
	viewportH := float64(d.ViewportHeight) * padding

	regionW := float64(region.Dx())
	regionH := float64(region.Dy())

	if regionW == 0 || regionH == 0 {
		return 1.0
	}

	// Use the smaller scale to ensure region fits
	zoom := math.Min(viewportW/regionW, viewportH/regionH)

	// Clamp zoom to reasonable range
	if zoom < 1.0 {
		zoom = 1.0
	}
	if zoom > 3.0 {
		zoom = 3.0
	}

	return zoom
}

// calculateCenter finds the center point of a rectangle
func calculateCenter(rect image.Rectangle) image.Point {
	return image.Point{
		X: rect.Min.X + rect.Dx()/2,
		Y: rect.Min.Y + rect.Dy()/2,
	}
}

// abs returns absolute value of an integer
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
