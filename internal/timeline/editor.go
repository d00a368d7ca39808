package timeline

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
)

const (
	MinPlaybackRate = 0.25
	MaxPlaybackRate = 2.0
)

// OverlapPolicy maps a track kind to whether clips on it may overlap.
type OverlapPolicy map[TrackKind]bool

// DefaultOverlapPolicy disallows overlap on video and subtitle tracks and
// allows it on audio and effect tracks (crossfades, stacked adjustments).
func DefaultOverlapPolicy() OverlapPolicy {
	return OverlapPolicy{
		TrackVideo:    false,
		TrackSubtitle: false,
		TrackAudio:    true,
		TrackEffect:   true,
	}
}

// TrackSpec describes a track created at session start.
type TrackSpec struct {
	ID   string    `yaml:"id"`
	Kind TrackKind `yaml:"kind"`
	Name string    `yaml:"name"`
}

// DefaultTracks is the track set a new project starts with.
func DefaultTracks() []TrackSpec {
	return []TrackSpec{
		{ID: "V1", Kind: TrackVideo, Name: "Video 1"},
		{ID: "A1", Kind: TrackAudio, Name: "Audio 1"},
		{ID: "S1", Kind: TrackSubtitle, Name: "Subtitles"},
	}
}

type Options struct {
	Overlap OverlapPolicy
	// Tracks overrides DefaultTracks when non-nil.
	Tracks []TrackSpec
	Logger *slog.Logger
	// NewID generates clip, track and effect ids. Defaults to uuid.NewString.
	NewID func() string
}

// Editor owns a timeline State and applies edit operations to it. Every
// operation validates its inputs before mutating, so a failed edit leaves
// the state untouched. An Editor is not safe for concurrent use; callers
// drive it from a single logical thread.
type Editor struct {
	state   State
	overlap OverlapPolicy
	newID   func() string
	logger  *slog.Logger
}

// NewEditor creates an editor with an empty timeline and the configured tracks.
func NewEditor(opts Options) *Editor {
	e := &Editor{
		overlap: opts.Overlap,
		newID:   opts.NewID,
		logger:  opts.Logger,
	}
	if e.overlap == nil {
		e.overlap = DefaultOverlapPolicy()
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}

	specs := opts.Tracks
	if specs == nil {
		specs = DefaultTracks()
	}
	e.state = State{
		Zoom:         1,
		PlaybackRate: 1,
		Selection:    map[string]struct{}{},
	}
	for _, ts := range specs {
		if _, err := e.AddTrack(ts.Kind, ts.ID, ts.Name); err != nil {
			e.logger.Warn("skipping default track", "track_id", ts.ID, "error", err)
		}
	}
	return e
}

// State returns the live state. Callers must treat it as read-only; all
// mutation goes through Editor methods.
func (e *Editor) State() *State { return &e.state }

// Snapshot returns a deep copy of the state, safe to hand to a render pass.
func (e *Editor) Snapshot() State { return e.state.Clone() }

// Track returns a copy of the track with the given id.
func (e *Editor) Track(id string) (Track, error) {
	t, ok := e.state.Track(id)
	if !ok {
		return Track{}, trackNotFound(id)
	}
	return t.Clone(), nil
}

// Clip returns a copy of the clip with the given id.
func (e *Editor) Clip(id string) (Clip, error) {
	c, _, ok := e.state.Clip(id)
	if !ok {
		return Clip{}, clipNotFound(id)
	}
	return c.Clone(), nil
}

// ClipsAt returns copies of every clip active at t, bottom track first.
func (e *Editor) ClipsAt(t int64) []Clip {
	var out []Clip
	for _, tr := range e.state.Tracks {
		for i := range tr.Clips {
			if tr.Clips[i].Active(t) {
				out = append(out, tr.Clips[i].Clone())
			}
		}
	}
	return out
}

// AddTrack appends a track on top of the stack. An empty id is generated.
func (e *Editor) AddTrack(kind TrackKind, id, name string) (Track, error) {
	if !kind.Valid() {
		return Track{}, fmt.Errorf("track kind %q: %w", kind, ErrInvalidValue)
	}
	if id == "" {
		id = e.newID()
	}
	if _, ok := e.state.Track(id); ok {
		return Track{}, fmt.Errorf("track %q: %w", id, ErrDuplicateID)
	}
	if name == "" {
		name = id
	}
	t := Track{ID: id, Kind: kind, Name: name}
	e.state.Tracks = append(e.state.Tracks, t)
	e.logger.Debug("track added", "track_id", id, "kind", kind)
	return t, nil
}

// RemoveTrack deletes a track. A track that still holds clips is only
// removed when force is set; its clips are dropped from the selection.
func (e *Editor) RemoveTrack(id string, force bool) error {
	idx := slices.IndexFunc(e.state.Tracks, func(t Track) bool { return t.ID == id })
	if idx < 0 {
		return trackNotFound(id)
	}
	t := &e.state.Tracks[idx]
	if t.Locked {
		return fmt.Errorf("remove track %s: %w", id, ErrTrackLocked)
	}
	if len(t.Clips) > 0 && !force {
		return fmt.Errorf("remove track %s: holds %d clips: %w", id, len(t.Clips), ErrInvalidValue)
	}
	for _, c := range t.Clips {
		delete(e.state.Selection, c.ID)
	}
	e.state.Tracks = slices.Delete(e.state.Tracks, idx, idx+1)
	return nil
}

func (e *Editor) SetTrackLocked(id string, locked bool) error {
	t, ok := e.state.Track(id)
	if !ok {
		return trackNotFound(id)
	}
	t.Locked = locked
	return nil
}

func (e *Editor) SetTrackMuted(id string, muted bool) error {
	t, ok := e.state.Track(id)
	if !ok {
		return trackNotFound(id)
	}
	t.Muted = muted
	return nil
}

func (e *Editor) SetTrackSolo(id string, solo bool) error {
	t, ok := e.state.Track(id)
	if !ok {
		return trackNotFound(id)
	}
	t.Solo = solo
	return nil
}

// SetZoom sets the editing UI zoom factor.
func (e *Editor) SetZoom(zoom float64) error {
	if zoom <= 0 {
		return fmt.Errorf("zoom %v: %w", zoom, ErrInvalidValue)
	}
	e.state.Zoom = zoom
	return nil
}

// SetPlaybackRate sets the playback speed multiplier.
func (e *Editor) SetPlaybackRate(rate float64) error {
	if rate < MinPlaybackRate || rate > MaxPlaybackRate {
		return fmt.Errorf("rate %v outside [%v, %v]: %w", rate, MinPlaybackRate, MaxPlaybackRate, ErrInvalidPlaybackRate)
	}
	e.state.PlaybackRate = rate
	return nil
}

// Seek moves the playhead, clamping t to [0, Duration], and returns the
// resulting time.
func (e *Editor) Seek(t int64) int64 {
	e.state.CurrentTime = clampTime(t, e.state.Duration)
	return e.state.CurrentTime
}

// SetPlaying records whether a playback controller is currently advancing
// the playhead.
func (e *Editor) SetPlaying(playing bool) { e.state.IsPlaying = playing }

// Compact shrinks Duration to the latest clip end. Duration never shrinks
// implicitly on delete; this is the explicit step. The playhead is clamped
// to the new duration.
func (e *Editor) Compact() int64 {
	e.state.Duration = e.state.MaxEnd()
	e.state.CurrentTime = clampTime(e.state.CurrentTime, e.state.Duration)
	return e.state.Duration
}

// Select adds clip ids to the selection. Unknown ids are rejected.
func (e *Editor) Select(ids ...string) error {
	for _, id := range ids {
		if _, _, ok := e.state.Clip(id); !ok {
			return clipNotFound(id)
		}
	}
	for _, id := range ids {
		e.state.Selection[id] = struct{}{}
	}
	return nil
}

func (e *Editor) Deselect(ids ...string) {
	for _, id := range ids {
		delete(e.state.Selection, id)
	}
}

func (e *Editor) ClearSelection() { clear(e.state.Selection) }

// Selected returns the selected clip ids in timeline order.
func (e *Editor) Selected() []string {
	var out []string
	for _, t := range e.state.Tracks {
		for _, c := range t.Clips {
			if _, ok := e.state.Selection[c.ID]; ok {
				out = append(out, c.ID)
			}
		}
	}
	return out
}

// DeleteSelected deletes every selected clip. Clips on locked tracks are
// rejected before anything is removed.
func (e *Editor) DeleteSelected() (int, error) {
	ids := e.Selected()
	for _, id := range ids {
		_, ti, _ := e.state.Clip(id)
		if e.state.Tracks[ti].Locked {
			return 0, fmt.Errorf("delete clip %s: %w", id, ErrTrackLocked)
		}
	}
	for _, id := range ids {
		if err := e.DeleteClip(id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (e *Editor) extendDuration(end int64) {
	if end > e.state.Duration {
		e.state.Duration = end
	}
}

func (e *Editor) checkOverlap(t *Track, start, end int64, ignoreID string) error {
	if e.overlap[t.Kind] {
		return nil
	}
	for i := range t.Clips {
		c := &t.Clips[i]
		if c.ID == ignoreID {
			continue
		}
		if start < c.End() && c.StartTime < end {
			return &OverlapError{TrackID: t.ID, ClipID: c.ID}
		}
	}
	return nil
}

func clampTime(t, max int64) int64 {
	if t < 0 {
		return 0
	}
	if t > max {
		return max
	}
	return t
}
