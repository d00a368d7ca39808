package effects

import (
	"github.com/ivlev/nlecore/internal/interp"
	"github.com/ivlev/nlecore/internal/timeline"
)

// Blend is the visual modulation a transition applies to a clip at one
// instant. The zero value is not neutral; start from Identity.
type Blend struct {
	// Opacity and Volume multiply the clip's resolved values.
	Opacity float64
	Volume  float64
	// Scale shrinks the destination rect about its centre.
	Scale float64
	// Shift moves the destination rect horizontally by a fraction of its width.
	Shift float64
	// Reveal is the visible fraction of the destination rect, left to right.
	Reveal float64
}

// Identity returns the blend of a clip outside any transition window.
func Identity() Blend {
	return Blend{Opacity: 1, Volume: 1, Scale: 1, Reveal: 1}
}

// Progress returns the eased progress through tr for a clip spanning
// [start, end) sampled at t, and whether t is inside the window. For the in
// edge progress rises from 0 at start to 1 at start+duration; for the out edge
// it falls from 1 at end-duration towards 0 at end.
func Progress(tr *timeline.Transition, edge timeline.Edge, start, end, t int64) (float64, bool) {
	if tr == nil || tr.Duration <= 0 || t < start || t >= end {
		return 0, false
	}
	var linear float64
	switch edge {
	case timeline.EdgeIn:
		elapsed := t - start
		if elapsed >= tr.Duration {
			return 0, false
		}
		linear = float64(elapsed) / float64(tr.Duration)
	case timeline.EdgeOut:
		remaining := end - t
		if remaining > tr.Duration {
			return 0, false
		}
		linear = float64(remaining) / float64(tr.Duration)
	default:
		return 0, false
	}
	return interp.Ease(tr.Easing, linear), true
}

// Combine folds a transition of the given kind at progress p into b.
// Fade and dissolve scale opacity and volume; slide shifts the clip in from
// the right on the in edge and out to the left on the out edge; zoom scales
// about the centre; wipe reveals from the left.
func (b *Blend) Combine(kind timeline.TransitionKind, edge timeline.Edge, p float64) {
	switch kind {
	case timeline.TransitionFade, timeline.TransitionDissolve:
		b.Opacity *= p
		b.Volume *= p
	case timeline.TransitionSlide:
		if edge == timeline.EdgeOut {
			b.Shift -= 1 - p
		} else {
			b.Shift += 1 - p
		}
	case timeline.TransitionZoom:
		b.Scale *= p
	case timeline.TransitionWipe:
		if p < b.Reveal {
			b.Reveal = p
		}
	}
}
