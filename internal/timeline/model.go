// Package timeline holds the authoritative multi-track timeline model and the
// edit operations that mutate it.
package timeline

import (
	"maps"
	"slices"
	"strings"
)

// TrackKind is the lane type of a track.
type TrackKind string

const (
	TrackVideo    TrackKind = "video"
	TrackAudio    TrackKind = "audio"
	TrackSubtitle TrackKind = "subtitle"
	TrackEffect   TrackKind = "effect"
)

func (k TrackKind) Valid() bool {
	switch k {
	case TrackVideo, TrackAudio, TrackSubtitle, TrackEffect:
		return true
	}
	return false
}

// MediaKind is the type of media a clip places on the timeline.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaText  MediaKind = "text"
)

func (k MediaKind) Valid() bool {
	switch k {
	case MediaVideo, MediaImage, MediaAudio, MediaText:
		return true
	}
	return false
}

// Accepts reports whether a track of kind k may hold media of kind m.
// Effect tracks act as adjustment layers and accept anything.
func (k TrackKind) Accepts(m MediaKind) bool {
	switch k {
	case TrackVideo:
		return m == MediaVideo || m == MediaImage || m == MediaText
	case TrackAudio:
		return m == MediaAudio || m == MediaVideo
	case TrackSubtitle:
		return m == MediaText
	case TrackEffect:
		return true
	}
	return false
}

// Easing selects the curve applied to a keyframe segment or a transition.
type Easing string

const (
	EaseLinear    Easing = "linear"
	EaseIn        Easing = "ease-in"
	EaseOut       Easing = "ease-out"
	EaseInOut     Easing = "ease-in-out"
	defaultEasing        = EaseLinear
)

func (e Easing) Valid() bool {
	switch e {
	case EaseLinear, EaseIn, EaseOut, EaseInOut:
		return true
	}
	return false
}

type TransitionKind string

const (
	TransitionFade     TransitionKind = "fade"
	TransitionDissolve TransitionKind = "dissolve"
	TransitionWipe     TransitionKind = "wipe"
	TransitionSlide    TransitionKind = "slide"
	TransitionZoom     TransitionKind = "zoom"
)

func (k TransitionKind) Valid() bool {
	switch k {
	case TransitionFade, TransitionDissolve, TransitionWipe, TransitionSlide, TransitionZoom:
		return true
	}
	return false
}

// Edge is the side of a clip a transition is attached to.
type Edge string

const (
	EdgeIn  Edge = "in"
	EdgeOut Edge = "out"
)

// Transform is the spatial placement of a clip in output pixels.
type Transform struct {
	X        float64 `json:"x" yaml:"x"`
	Y        float64 `json:"y" yaml:"y"`
	Width    float64 `json:"width" yaml:"width"`
	Height   float64 `json:"height" yaml:"height"`
	Rotation float64 `json:"rotation" yaml:"rotation"` // degrees, clockwise
}

// Effect is a time-independent filter applied in list order.
type Effect struct {
	ID      string             `json:"id" yaml:"id"`
	Kind    string             `json:"kind" yaml:"kind"`
	Enabled bool               `json:"enabled" yaml:"enabled"`
	Params  map[string]float64 `json:"params" yaml:"params"`
}

// Transition is a blend window at the in or out edge of a clip.
type Transition struct {
	Kind     TransitionKind `json:"kind" yaml:"kind"`
	Duration int64          `json:"duration" yaml:"duration"`
	Easing   Easing         `json:"easing" yaml:"easing"`
}

// Keyframe anchors an animated property at an absolute timeline time.
type Keyframe struct {
	Time     int64   `json:"time" yaml:"time"`
	Property string  `json:"property" yaml:"property"`
	Value    float64 `json:"value" yaml:"value"`
	Easing   Easing  `json:"easing" yaml:"easing"`
}

// Clip is a single timed placement of a media reference on a track.
type Clip struct {
	ID        string      `json:"id" yaml:"id"`
	TrackID   string      `json:"trackId" yaml:"trackId"`
	MediaKind MediaKind   `json:"mediaKind" yaml:"mediaKind"`
	MediaRef  string      `json:"mediaRef" yaml:"mediaRef"`
	StartTime int64       `json:"startTime" yaml:"startTime"`
	Duration  int64       `json:"duration" yaml:"duration"`
	TrimStart int64       `json:"trimStart" yaml:"trimStart"`
	TrimEnd   int64       `json:"trimEnd" yaml:"trimEnd"`
	Volume    float64     `json:"volume" yaml:"volume"`
	Opacity   float64     `json:"opacity" yaml:"opacity"`
	Transform Transform   `json:"transform" yaml:"transform"`
	Effects   []Effect    `json:"effects" yaml:"effects"`
	In        *Transition `json:"in,omitempty" yaml:"in,omitempty"`
	Out       *Transition `json:"out,omitempty" yaml:"out,omitempty"`
	Keyframes []Keyframe  `json:"keyframes" yaml:"keyframes"`
}

// End is the exclusive end time of the clip on the timeline.
func (c *Clip) End() int64 { return c.StartTime + c.Duration }

// Active reports whether t falls in [StartTime, End).
func (c *Clip) Active(t int64) bool { return t >= c.StartTime && t < c.End() }

// Effect returns the effect with the given id.
func (c *Clip) Effect(id string) (*Effect, bool) {
	for i := range c.Effects {
		if c.Effects[i].ID == id {
			return &c.Effects[i], true
		}
	}
	return nil, false
}

// KeyframesFor returns the keyframes animating property, in time order.
func (c *Clip) KeyframesFor(property string) []Keyframe {
	var out []Keyframe
	for _, kf := range c.Keyframes {
		if kf.Property == property {
			out = append(out, kf)
		}
	}
	return out
}

// Clone returns a deep copy sharing no slices, maps or pointers with c.
func (c Clip) Clone() Clip {
	out := c
	if c.Effects != nil {
		out.Effects = make([]Effect, len(c.Effects))
		for i, e := range c.Effects {
			e.Params = maps.Clone(e.Params)
			out.Effects[i] = e
		}
	}
	if c.In != nil {
		in := *c.In
		out.In = &in
	}
	if c.Out != nil {
		o := *c.Out
		out.Out = &o
	}
	out.Keyframes = slices.Clone(c.Keyframes)
	return out
}

// Track is an ordered, typed lane of clips sorted by StartTime.
type Track struct {
	ID     string    `json:"id" yaml:"id"`
	Kind   TrackKind `json:"kind" yaml:"kind"`
	Name   string    `json:"name" yaml:"name"`
	Clips  []Clip    `json:"clips" yaml:"clips"`
	Locked bool      `json:"locked" yaml:"locked"`
	Muted  bool      `json:"muted" yaml:"muted"`
	Solo   bool      `json:"solo" yaml:"solo"`
}

func (t Track) Clone() Track {
	out := t
	if t.Clips != nil {
		out.Clips = make([]Clip, len(t.Clips))
		for i, c := range t.Clips {
			out.Clips[i] = c.Clone()
		}
	}
	return out
}

func (t *Track) sortClips() {
	slices.SortStableFunc(t.Clips, func(a, b Clip) int {
		switch {
		case a.StartTime < b.StartTime:
			return -1
		case a.StartTime > b.StartTime:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// State is the single source of truth for an editing session. Tracks are
// ordered bottom first. IsPlaying and Selection are transient and never
// serialized.
type State struct {
	Tracks       []Track             `json:"tracks" yaml:"tracks"`
	CurrentTime  int64               `json:"currentTime" yaml:"currentTime"`
	Duration     int64               `json:"duration" yaml:"duration"`
	Zoom         float64             `json:"zoom" yaml:"zoom"`
	PlaybackRate float64             `json:"playbackRate" yaml:"playbackRate"`
	IsPlaying    bool                `json:"-" yaml:"-"`
	Selection    map[string]struct{} `json:"-" yaml:"-"`
}

// Clone returns a deep copy of the state.
func (s *State) Clone() State {
	out := *s
	if s.Tracks != nil {
		out.Tracks = make([]Track, len(s.Tracks))
		for i, t := range s.Tracks {
			out.Tracks[i] = t.Clone()
		}
	}
	out.Selection = maps.Clone(s.Selection)
	return out
}

// Track returns the track with the given id.
func (s *State) Track(id string) (*Track, bool) {
	for i := range s.Tracks {
		if s.Tracks[i].ID == id {
			return &s.Tracks[i], true
		}
	}
	return nil, false
}

// Clip returns the clip with the given id and the index of its track.
func (s *State) Clip(id string) (*Clip, int, bool) {
	for ti := range s.Tracks {
		for ci := range s.Tracks[ti].Clips {
			if s.Tracks[ti].Clips[ci].ID == id {
				return &s.Tracks[ti].Clips[ci], ti, true
			}
		}
	}
	return nil, -1, false
}

// MaxEnd is the latest clip end across all tracks.
func (s *State) MaxEnd() int64 {
	var end int64
	for _, t := range s.Tracks {
		for i := range t.Clips {
			if e := t.Clips[i].End(); e > end {
				end = e
			}
		}
	}
	return end
}
