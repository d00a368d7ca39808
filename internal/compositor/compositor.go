// Package compositor samples a timeline at an instant and produces the
// ordered draw list an external renderer or encoder consumes.
package compositor

import (
	"fmt"
	"maps"
	"slices"

	"github.com/ivlev/nlecore/internal/effects"
	"github.com/ivlev/nlecore/internal/interp"
	"github.com/ivlev/nlecore/internal/timeline"
)

// EffectState is an effect with its parameters resolved at the sample time.
type EffectState struct {
	ID     string             `json:"id"`
	Kind   string             `json:"kind"`
	Params map[string]float64 `json:"params"`
}

// TransitionState records a transition window the sample time falls in.
type TransitionState struct {
	Edge     timeline.Edge           `json:"edge"`
	Kind     timeline.TransitionKind `json:"kind"`
	Progress float64                 `json:"progress"`
}

// Instruction tells the renderer how to draw (or mix) one active clip.
type Instruction struct {
	Layer       int                `json:"layer"`
	TrackID     string             `json:"trackId"`
	TrackKind   timeline.TrackKind `json:"trackKind"`
	ClipID      string             `json:"clipId"`
	MediaKind   timeline.MediaKind `json:"mediaKind"`
	MediaRef    string             `json:"mediaRef"`
	MediaOffset int64              `json:"mediaOffset"`
	Transform   timeline.Transform `json:"transform"`
	Opacity     float64            `json:"opacity"`
	Volume      float64            `json:"volume"`
	Effects     []EffectState      `json:"effects,omitempty"`
	Transitions []TransitionState  `json:"transitions,omitempty"`
	// Scale, Shift and Reveal carry the geometric part of any active
	// transition; see effects.Blend.
	Scale  float64 `json:"scale"`
	Shift  float64 `json:"shift"`
	Reveal float64 `json:"reveal"`
}

// IsAudio reports whether the instruction belongs to an audio track.
func (in *Instruction) IsAudio() bool { return in.TrackKind == timeline.TrackAudio }

// Frame is the composited result of sampling a timeline at Time.
type Frame struct {
	Time         int64         `json:"time"`
	Instructions []Instruction `json:"instructions"`
}

// Visual returns the instructions the renderer draws, bottom layer first.
func (f *Frame) Visual() []Instruction {
	var out []Instruction
	for _, in := range f.Instructions {
		if !in.IsAudio() {
			out = append(out, in)
		}
	}
	return out
}

// Audio returns the instructions for the audio mixer.
func (f *Frame) Audio() []Instruction {
	var out []Instruction
	for _, in := range f.Instructions {
		if in.IsAudio() {
			out = append(out, in)
		}
	}
	return out
}

// Sample returns the draw list for s at time t. Tracks are visited in order,
// the first track being the bottom layer; within a track active clips are
// emitted in start order. Muted audio tracks are skipped and, when any audio
// track is soloed, only soloed audio tracks are emitted. Visual tracks ignore
// both flags. s is never modified.
//
// Sample panics if a clip carries unsorted keyframes. Edit operations and
// Editor.Load keep keyframes sorted, so this only fires on a state built by
// hand in violation of that invariant.
func Sample(s *timeline.State, t int64) Frame {
	frame := Frame{Time: t}
	soloing := anyAudioSolo(s)

	layer := 0
	for ti := range s.Tracks {
		tr := &s.Tracks[ti]
		if tr.Kind == timeline.TrackAudio && (tr.Muted || (soloing && !tr.Solo)) {
			continue
		}
		for ci := range tr.Clips {
			c := &tr.Clips[ci]
			if !c.Active(t) {
				continue
			}
			in, err := resolve(tr, c, t)
			if err != nil {
				panic(fmt.Sprintf("compositor: clip %s: %v", c.ID, err))
			}
			in.Layer = layer
			layer++
			frame.Instructions = append(frame.Instructions, in)
		}
	}
	return frame
}

func anyAudioSolo(s *timeline.State) bool {
	for _, tr := range s.Tracks {
		if tr.Kind == timeline.TrackAudio && tr.Solo {
			return true
		}
	}
	return false
}

func resolve(tr *timeline.Track, c *timeline.Clip, t int64) (Instruction, error) {
	in := Instruction{
		TrackID:     tr.ID,
		TrackKind:   tr.Kind,
		ClipID:      c.ID,
		MediaKind:   c.MediaKind,
		MediaRef:    c.MediaRef,
		MediaOffset: c.TrimStart + (t - c.StartTime),
	}

	props := []struct {
		name string
		dst  *float64
	}{
		{timeline.PropOpacity, &in.Opacity},
		{timeline.PropVolume, &in.Volume},
		{timeline.PropX, &in.Transform.X},
		{timeline.PropY, &in.Transform.Y},
		{timeline.PropWidth, &in.Transform.Width},
		{timeline.PropHeight, &in.Transform.Height},
		{timeline.PropRotation, &in.Transform.Rotation},
	}
	for _, p := range props {
		v, err := interp.Property(c, p.name, t)
		if err != nil {
			return Instruction{}, err
		}
		*p.dst = v
	}

	for _, eff := range c.Effects {
		if !eff.Enabled {
			continue
		}
		params := maps.Clone(eff.Params)
		if params == nil {
			params = map[string]float64{}
		}
		for _, name := range effectParams(c, &eff) {
			v, err := interp.Property(c, timeline.EffectParamPath(eff.ID, name), t)
			if err != nil {
				return Instruction{}, err
			}
			params[name] = v
		}
		in.Effects = append(in.Effects, EffectState{ID: eff.ID, Kind: eff.Kind, Params: params})
	}

	blend := effects.Identity()
	for _, edge := range []timeline.Edge{timeline.EdgeIn, timeline.EdgeOut} {
		trn := c.In
		if edge == timeline.EdgeOut {
			trn = c.Out
		}
		p, ok := effects.Progress(trn, edge, c.StartTime, c.End(), t)
		if !ok {
			continue
		}
		blend.Combine(trn.Kind, edge, p)
		in.Transitions = append(in.Transitions, TransitionState{Edge: edge, Kind: trn.Kind, Progress: p})
	}
	in.Opacity = clampUnit(in.Opacity * blend.Opacity)
	in.Volume = clampUnit(in.Volume * blend.Volume)
	in.Scale = blend.Scale
	in.Shift = blend.Shift
	in.Reveal = blend.Reveal

	return in, nil
}

// effectParams lists the parameters of eff that have a static value or are
// animated by one of the clip's keyframes.
func effectParams(c *timeline.Clip, eff *timeline.Effect) []string {
	names := slices.Collect(maps.Keys(eff.Params))
	for _, kf := range c.Keyframes {
		id, param, ok := timeline.ParseEffectParamPath(kf.Property)
		if ok && id == eff.ID && !slices.Contains(names, param) {
			names = append(names, param)
		}
	}
	return names
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
