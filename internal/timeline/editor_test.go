package timeline

import (
	"errors"
	"reflect"
	"testing"
)

func TestNewEditorDefaults(t *testing.T) {
	e := NewEditor(Options{})
	s := e.State()
	if len(s.Tracks) != 3 || s.Tracks[0].Kind != TrackVideo || s.Tracks[1].Kind != TrackAudio || s.Tracks[2].Kind != TrackSubtitle {
		t.Errorf("default tracks = %+v", s.Tracks)
	}
	if s.Zoom != 1 || s.PlaybackRate != 1 || s.Duration != 0 || s.IsPlaying {
		t.Errorf("default state = %+v", s)
	}

	empty := NewEditor(Options{Tracks: []TrackSpec{}})
	if len(empty.State().Tracks) != 0 {
		t.Errorf("explicit empty track set produced %d tracks", len(empty.State().Tracks))
	}
}

func TestTrackManagement(t *testing.T) {
	e := newTestEditor()
	fx, err := e.AddTrack(TrackEffect, "", "grade")
	if err != nil {
		t.Fatal(err)
	}
	if fx.ID == "" || fx.Name != "grade" {
		t.Errorf("track = %+v", fx)
	}
	if _, err := e.AddTrack(TrackVideo, "V1", ""); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("error = %v, want ErrDuplicateID", err)
	}
	if _, err := e.AddTrack("hologram", "", ""); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("error = %v, want ErrInvalidValue", err)
	}

	c := mustAdd(t, e, "V1", ClipSpec{Duration: 100})
	if err := e.Select(c.ID); err != nil {
		t.Fatal(err)
	}
	if err := e.RemoveTrack("V1", false); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("error = %v, want refusal for a non-empty track", err)
	}
	if err := e.RemoveTrack("V1", true); err != nil {
		t.Fatalf("forced RemoveTrack failed: %v", err)
	}
	if len(e.Selected()) != 0 {
		t.Error("clips of a removed track remain selected")
	}
	if err := e.RemoveTrack("V1", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}

	for _, set := range []func(string, bool) error{e.SetTrackLocked, e.SetTrackMuted, e.SetTrackSolo} {
		if err := set("nope", true); !errors.Is(err, ErrNotFound) {
			t.Errorf("flag setter error = %v, want ErrNotFound", err)
		}
	}
	if err := e.SetTrackMuted("A1", true); err != nil {
		t.Fatal(err)
	}
	if tr, _ := e.Track("A1"); !tr.Muted {
		t.Error("A1 not muted")
	}
}

func TestSeekClamps(t *testing.T) {
	e := newTestEditor()
	mustAdd(t, e, "V1", ClipSpec{Duration: 2000})
	tests := map[int64]int64{-50: 0, 0: 0, 1500: 1500, 2000: 2000, 9000: 2000}
	for in, want := range tests {
		if got := e.Seek(in); got != want {
			t.Errorf("Seek(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestPlaybackRateAndZoom(t *testing.T) {
	e := newTestEditor()
	for _, r := range []float64{0.25, 1, 2} {
		if err := e.SetPlaybackRate(r); err != nil {
			t.Errorf("SetPlaybackRate(%v) failed: %v", r, err)
		}
	}
	for _, r := range []float64{0, 0.2, 2.5, -1} {
		if err := e.SetPlaybackRate(r); !errors.Is(err, ErrInvalidPlaybackRate) {
			t.Errorf("SetPlaybackRate(%v) error = %v, want ErrInvalidPlaybackRate", r, err)
		}
	}
	if e.State().PlaybackRate != 2 {
		t.Errorf("rate = %v, want last valid value 2", e.State().PlaybackRate)
	}
	if err := e.SetZoom(0); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("SetZoom(0) error = %v", err)
	}
	if err := e.SetZoom(4); err != nil || e.State().Zoom != 4 {
		t.Errorf("SetZoom(4) = %v, zoom %v", err, e.State().Zoom)
	}
}

func TestSelection(t *testing.T) {
	e := newTestEditor()
	a := mustAdd(t, e, "V1", ClipSpec{StartTime: 1000, Duration: 100})
	b := mustAdd(t, e, "V1", ClipSpec{Duration: 100})
	c := mustAdd(t, e, "A1", ClipSpec{MediaKind: MediaAudio, Duration: 100})

	if err := e.Select(a.ID, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if len(e.Selected()) != 0 {
		t.Error("failed Select changed the selection")
	}
	if err := e.Select(c.ID, a.ID, b.ID); err != nil {
		t.Fatal(err)
	}
	if got, want := e.Selected(), []string{b.ID, a.ID, c.ID}; !reflect.DeepEqual(got, want) {
		t.Errorf("Selected = %v, want %v", got, want)
	}
	e.Deselect(a.ID)
	n, err := e.DeleteSelected()
	if err != nil || n != 2 {
		t.Fatalf("DeleteSelected = %d, %v", n, err)
	}
	if _, err := e.Clip(a.ID); err != nil {
		t.Error("deselected clip was deleted")
	}
	e.Select(a.ID)
	e.ClearSelection()
	if len(e.Selected()) != 0 {
		t.Error("ClearSelection left clips selected")
	}
}

func TestClipsAt(t *testing.T) {
	e := newTestEditor()
	v := mustAdd(t, e, "V1", ClipSpec{Duration: 1000})
	a := mustAdd(t, e, "A1", ClipSpec{MediaKind: MediaAudio, StartTime: 500, Duration: 1000})

	got := e.ClipsAt(700)
	if len(got) != 2 || got[0].ID != v.ID || got[1].ID != a.ID {
		t.Errorf("ClipsAt(700) = %v", got)
	}
	if got := e.ClipsAt(1000); len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("ClipsAt(1000) = %v, want end-exclusive", got)
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	e := newTestEditor()
	c := mustAdd(t, e, "V1", ClipSpec{Duration: 1000, Effects: []Effect{{Kind: "blur", Params: map[string]float64{"radius": 2}}}})
	got, _ := e.Clip(c.ID)
	got.Effects[0].Params["radius"] = 99
	got.Duration = 1
	again, _ := e.Clip(c.ID)
	if again.Effects[0].Params["radius"] != 2 || again.Duration != 1000 {
		t.Error("Clip returned an alias of internal state")
	}
}

func TestKeyframesStaySorted(t *testing.T) {
	e := newTestEditor()
	c := mustAdd(t, e, "V1", ClipSpec{Duration: 5000})
	for _, tm := range []int64{3000, 1000, 4000, 0, 2000, 1000} {
		if _, err := e.AddKeyframe(c.ID, Keyframe{Time: tm, Property: PropOpacity, Value: float64(tm) / 5000}); err != nil {
			t.Fatal(err)
		}
		got, _ := e.Clip(c.ID)
		for i := 1; i < len(got.Keyframes); i++ {
			if got.Keyframes[i].Time < got.Keyframes[i-1].Time {
				t.Fatalf("keyframes unsorted after adding %d: %v", tm, got.Keyframes)
			}
		}
	}
	got, _ := e.Clip(c.ID)
	if len(got.Keyframes) != 5 {
		t.Errorf("got %d keyframes, want 5 (same time and property replaces)", len(got.Keyframes))
	}
	if got.Keyframes[0].Easing != EaseLinear {
		t.Errorf("default easing = %q", got.Keyframes[0].Easing)
	}

	if err := e.RemoveKeyframe(c.ID, PropOpacity, 4000); err != nil {
		t.Fatal(err)
	}
	if err := e.RemoveKeyframe(c.ID, PropOpacity, 4000); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestAddKeyframeValidation(t *testing.T) {
	e := newTestEditor()
	c := mustAdd(t, e, "V1", ClipSpec{Duration: 1000})
	tests := []struct {
		kf   Keyframe
		want error
	}{
		{Keyframe{Time: -1, Property: PropOpacity}, ErrInvalidRange},
		{Keyframe{Property: "transform.skew"}, ErrInvalidValue},
		{Keyframe{Property: EffectParamPath("missing", "radius")}, ErrInvalidValue},
		{Keyframe{Property: PropX, Easing: "bounce"}, ErrInvalidValue},
	}
	for _, tt := range tests {
		if _, err := e.AddKeyframe(c.ID, tt.kf); !errors.Is(err, tt.want) {
			t.Errorf("AddKeyframe(%+v) error = %v, want %v", tt.kf, err, tt.want)
		}
	}
	if _, err := e.AddKeyframe("ghost", Keyframe{Property: PropX}); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestEffects(t *testing.T) {
	e := newTestEditor()
	c := mustAdd(t, e, "V1", ClipSpec{Duration: 1000})
	eff, err := e.AddEffect(c.ID, Effect{Kind: "blur", Enabled: true, Params: map[string]float64{"radius": 2}})
	if err != nil {
		t.Fatal(err)
	}
	path := EffectParamPath(eff.ID, "radius")
	if _, err := e.AddKeyframe(c.ID, Keyframe{Time: 0, Property: path, Value: 1}); err != nil {
		t.Fatalf("effect param keyframe rejected: %v", err)
	}
	if _, err := e.AddEffect(c.ID, Effect{ID: eff.ID, Kind: "blur"}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("error = %v, want ErrDuplicateID", err)
	}
	if _, err := e.AddEffect(c.ID, Effect{}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("error = %v, want ErrInvalidValue", err)
	}

	if err := e.SetEffectParam(c.ID, eff.ID, "radius", 5); err != nil {
		t.Fatal(err)
	}
	if err := e.SetEffectEnabled(c.ID, eff.ID, false); err != nil {
		t.Fatal(err)
	}
	got, _ := e.Clip(c.ID)
	if got.Effects[0].Params["radius"] != 5 || got.Effects[0].Enabled {
		t.Errorf("effect = %+v", got.Effects[0])
	}
	if v, ok := got.StaticValue(path); !ok || v != 5 {
		t.Errorf("StaticValue(%s) = %v, %v", path, v, ok)
	}

	if err := e.RemoveEffect(c.ID, eff.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = e.Clip(c.ID)
	if len(got.Effects) != 0 || len(got.Keyframes) != 0 {
		t.Errorf("RemoveEffect left effects %v keyframes %v", got.Effects, got.Keyframes)
	}
	if err := e.SetEffectParam(c.ID, eff.ID, "radius", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestTransitions(t *testing.T) {
	e := newTestEditor()
	c := mustAdd(t, e, "V1", ClipSpec{Duration: 1000})
	tr, err := e.AddTransition(c.ID, EdgeIn, Transition{Kind: TransitionWipe, Duration: 400})
	if err != nil {
		t.Fatal(err)
	}
	if tr.Easing != EaseLinear {
		t.Errorf("default easing = %q", tr.Easing)
	}
	if _, err := e.AddTransition(c.ID, EdgeOut, Transition{Kind: TransitionFade, Duration: 1001}); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("error = %v, want ErrInvalidRange", err)
	}
	if _, err := e.AddTransition(c.ID, EdgeOut, Transition{Kind: "spin", Duration: 100}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("error = %v, want ErrInvalidValue", err)
	}
	if _, err := e.AddTransition(c.ID, "middle", Transition{Kind: TransitionFade, Duration: 100}); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("error = %v, want ErrInvalidValue", err)
	}
	if err := e.RemoveTransition(c.ID, EdgeIn); err != nil {
		t.Fatal(err)
	}
	if got, _ := e.Clip(c.ID); got.In != nil {
		t.Error("in transition not removed")
	}
}

func TestSetClipProperty(t *testing.T) {
	e := newTestEditor()
	c := mustAdd(t, e, "V1", ClipSpec{Duration: 1000})
	for prop, v := range map[string]float64{PropOpacity: 0.3, PropVolume: 0, PropX: -20, PropY: 15, PropWidth: 640, PropHeight: 360, PropRotation: 45} {
		if err := e.SetClipProperty(c.ID, prop, v); err != nil {
			t.Errorf("SetClipProperty(%s, %v) failed: %v", prop, v, err)
		}
	}
	got, _ := e.Clip(c.ID)
	want := Transform{X: -20, Y: 15, Width: 640, Height: 360, Rotation: 45}
	if got.Transform != want || got.Opacity != 0.3 || got.Volume != 0 {
		t.Errorf("clip = %+v", got)
	}

	if err := e.SetClipProperty(c.ID, PropOpacity, 1.2); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("error = %v, want ErrInvalidValue", err)
	}
	if err := e.SetClipProperty(c.ID, PropWidth, -1); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("error = %v, want ErrInvalidValue", err)
	}
	if err := e.SetClipProperty(c.ID, "speed", 2); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("error = %v, want ErrInvalidValue", err)
	}
}

func TestEffectParamPath(t *testing.T) {
	path := EffectParamPath("fx1", "amount")
	id, param, ok := ParseEffectParamPath(path)
	if !ok || id != "fx1" || param != "amount" {
		t.Errorf("ParseEffectParamPath(%q) = %q, %q, %v", path, id, param, ok)
	}
	for _, bad := range []string{"opacity", "effects.", "effects.fx1", "effects..amount", "effects.fx1."} {
		if _, _, ok := ParseEffectParamPath(bad); ok {
			t.Errorf("ParseEffectParamPath(%q) accepted", bad)
		}
	}
}

func TestLoad(t *testing.T) {
	src := newTestEditor()
	c := mustAdd(t, src, "V1", ClipSpec{Duration: 2000})
	src.Seek(1500)
	src.Select(c.ID)
	src.SetPlaying(true)

	e := newTestEditor()
	if err := e.Load(src.Snapshot()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	s := e.State()
	if s.IsPlaying || len(s.Selection) != 0 {
		t.Error("transient fields survived Load")
	}
	if s.CurrentTime != 1500 || s.Duration != 2000 {
		t.Errorf("loaded time %d duration %d", s.CurrentTime, s.Duration)
	}

	// A short duration is extended to the latest clip end.
	short := src.Snapshot()
	short.Duration = 10
	if err := e.Load(short); err != nil || e.State().Duration != 2000 {
		t.Errorf("Load(short) = %v, duration %d", err, e.State().Duration)
	}
}

func TestLoadRejectsInvalidState(t *testing.T) {
	base := func() State {
		src := newTestEditor()
		mustAdd(t, src, "V1", ClipSpec{ID: "a", Duration: 1000})
		mustAdd(t, src, "V1", ClipSpec{ID: "b", StartTime: 2000, Duration: 1000})
		return src.Snapshot()
	}
	tests := []struct {
		name   string
		mutate func(*State)
		want   error
	}{
		{"overlap", func(s *State) { s.Tracks[0].Clips[1].StartTime = 500 }, ErrOverlap},
		{"duplicate clip", func(s *State) { s.Tracks[0].Clips[1].ID = "a" }, ErrDuplicateID},
		{"duplicate track", func(s *State) { s.Tracks[1].ID = "V1" }, ErrDuplicateID},
		{"bad trim", func(s *State) { s.Tracks[0].Clips[0].TrimEnd = 5 }, ErrInvalidRange},
		{"unsorted keyframes", func(s *State) {
			s.Tracks[0].Clips[0].Keyframes = []Keyframe{{Time: 500, Property: PropX, Easing: EaseLinear}, {Time: 100, Property: PropX, Easing: EaseLinear}}
		}, ErrInvalidKeyframeOrder},
		{"wrong track id", func(s *State) { s.Tracks[0].Clips[0].TrackID = "A1" }, ErrInvalidValue},
		{"bad rate", func(s *State) { s.PlaybackRate = 8 }, ErrInvalidPlaybackRate},
		{"bad kind", func(s *State) { s.Tracks[2].Kind = "smell" }, ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEditor()
			before := e.Snapshot()
			s := base()
			tt.mutate(&s)
			if err := e.Load(s); !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if !reflect.DeepEqual(e.Snapshot(), before) {
				t.Error("failed Load replaced the state")
			}
		})
	}
}
