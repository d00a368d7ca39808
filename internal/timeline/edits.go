package timeline

import (
	"fmt"
	"maps"
	"slices"
)

// ClipSpec describes a clip to place with AddClip. Duration is derived from
// the trim window; when TrimEnd is zero and Duration is set, TrimEnd is
// TrimStart+Duration. Nil Volume and Opacity default to 1.
type ClipSpec struct {
	ID        string      `json:"id,omitempty"`
	MediaKind MediaKind   `json:"mediaKind"`
	MediaRef  string      `json:"mediaRef"`
	StartTime int64       `json:"startTime"`
	Duration  int64       `json:"duration,omitempty"`
	TrimStart int64       `json:"trimStart"`
	TrimEnd   int64       `json:"trimEnd,omitempty"`
	Volume    *float64    `json:"volume,omitempty"`
	Opacity   *float64    `json:"opacity,omitempty"`
	Transform Transform   `json:"transform"`
	Effects   []Effect    `json:"effects,omitempty"`
	In        *Transition `json:"in,omitempty"`
	Out       *Transition `json:"out,omitempty"`
	Keyframes []Keyframe  `json:"keyframes,omitempty"`
}

func (s ClipSpec) build(trackID string) Clip {
	trimEnd := s.TrimEnd
	if trimEnd == 0 && s.Duration > 0 {
		trimEnd = s.TrimStart + s.Duration
	}
	c := Clip{
		ID:        s.ID,
		TrackID:   trackID,
		MediaKind: s.MediaKind,
		MediaRef:  s.MediaRef,
		StartTime: s.StartTime,
		Duration:  trimEnd - s.TrimStart,
		TrimStart: s.TrimStart,
		TrimEnd:   trimEnd,
		Volume:    1,
		Opacity:   1,
		Transform: s.Transform,
		In:        s.In,
		Out:       s.Out,
		Effects:   s.Effects,
		Keyframes: s.Keyframes,
	}
	if s.Volume != nil {
		c.Volume = *s.Volume
	}
	if s.Opacity != nil {
		c.Opacity = *s.Opacity
	}
	return c.Clone()
}

// AddClip constructs a clip from spec on the given track, keeps the track
// sorted and extends the timeline duration when the clip ends past it.
func (e *Editor) AddClip(trackID string, spec ClipSpec) (Clip, error) {
	t, ok := e.state.Track(trackID)
	if !ok {
		return Clip{}, trackNotFound(trackID)
	}
	if t.Locked {
		return Clip{}, fmt.Errorf("add clip to %s: %w", trackID, ErrTrackLocked)
	}

	c := spec.build(trackID)
	if c.ID == "" {
		c.ID = e.newID()
	} else if _, _, exists := e.state.Clip(c.ID); exists {
		return Clip{}, fmt.Errorf("clip %q: %w", c.ID, ErrDuplicateID)
	}
	for i := range c.Effects {
		if c.Effects[i].ID == "" {
			c.Effects[i].ID = e.newID()
		}
	}
	for i := range c.Keyframes {
		if c.Keyframes[i].Easing == "" {
			c.Keyframes[i].Easing = defaultEasing
		}
	}
	sortKeyframes(c.Keyframes)

	if !t.Kind.Accepts(c.MediaKind) {
		return Clip{}, fmt.Errorf("%s media on %s track: %w", c.MediaKind, t.Kind, ErrIncompatible)
	}
	if err := validateClip(&c); err != nil {
		return Clip{}, err
	}
	if err := e.checkOverlap(t, c.StartTime, c.End(), ""); err != nil {
		return Clip{}, err
	}

	t.Clips = append(t.Clips, c)
	t.sortClips()
	e.extendDuration(c.End())
	e.logger.Debug("clip added", "clip_id", c.ID, "track_id", trackID, "start", c.StartTime, "duration", c.Duration)
	return c.Clone(), nil
}

// MoveClip removes a clip from its track and reinserts it on newTrackID at
// newStart. Keyframes are absolute timeline times and shift with the clip.
func (e *Editor) MoveClip(clipID, newTrackID string, newStart int64) (Clip, error) {
	src, ti, ok := e.state.Clip(clipID)
	if !ok {
		return Clip{}, clipNotFound(clipID)
	}
	dst, ok := e.state.Track(newTrackID)
	if !ok {
		return Clip{}, trackNotFound(newTrackID)
	}
	if newStart < 0 {
		return Clip{}, &RangeError{Op: "move clip", Value: newStart, Reason: "start time is negative"}
	}
	if e.state.Tracks[ti].Locked || dst.Locked {
		return Clip{}, fmt.Errorf("move clip %s: %w", clipID, ErrTrackLocked)
	}
	if !dst.Kind.Accepts(src.MediaKind) {
		return Clip{}, fmt.Errorf("%s media on %s track: %w", src.MediaKind, dst.Kind, ErrIncompatible)
	}
	if err := e.checkOverlap(dst, newStart, newStart+src.Duration, clipID); err != nil {
		return Clip{}, err
	}

	delta := newStart - src.StartTime
	for _, kf := range src.Keyframes {
		if kf.Time+delta < 0 {
			return Clip{}, &RangeError{Op: "move clip", Value: newStart,
				Reason: fmt.Sprintf("%s keyframe at %d would move before 0", kf.Property, kf.Time)}
		}
	}

	moved := src.Clone()
	moved.StartTime = newStart
	moved.TrackID = newTrackID
	for i := range moved.Keyframes {
		moved.Keyframes[i].Time += delta
	}

	e.removeClip(ti, clipID)
	dst.Clips = append(dst.Clips, moved)
	dst.sortClips()
	e.extendDuration(moved.End())
	e.logger.Debug("clip moved", "clip_id", clipID, "track_id", newTrackID, "start", newStart)
	return moved.Clone(), nil
}

// TrimClip sets the source window of a clip. The start time is unchanged and
// the duration becomes trimEnd-trimStart.
func (e *Editor) TrimClip(clipID string, trimStart, trimEnd int64) (Clip, error) {
	c, ti, ok := e.state.Clip(clipID)
	if !ok {
		return Clip{}, clipNotFound(clipID)
	}
	if trimEnd <= trimStart {
		return Clip{}, &RangeError{Op: "trim clip", Value: trimEnd, Min: trimStart, Reason: fmt.Sprintf("trim end %d must exceed trim start %d", trimEnd, trimStart)}
	}
	if trimStart < 0 {
		return Clip{}, &RangeError{Op: "trim clip", Value: trimStart, Reason: "trim start is negative"}
	}
	t := &e.state.Tracks[ti]
	if t.Locked {
		return Clip{}, fmt.Errorf("trim clip %s: %w", clipID, ErrTrackLocked)
	}
	duration := trimEnd - trimStart
	if err := e.checkOverlap(t, c.StartTime, c.StartTime+duration, clipID); err != nil {
		return Clip{}, err
	}

	c.TrimStart = trimStart
	c.TrimEnd = trimEnd
	c.Duration = duration
	clampTransition(c.In, duration)
	clampTransition(c.Out, duration)
	e.extendDuration(c.End())
	return c.Clone(), nil
}

// SplitClip cuts a clip at the strict interior time at. The left clip keeps
// its id and start; the right clip gets a fresh id, starts at at, advances
// its trim start by the same delta and inherits media, effects and the out
// transition. Keyframes are partitioned so each half keeps the bracketing
// anchors it needs to sample exactly as the original did.
func (e *Editor) SplitClip(clipID string, at int64) (left, right Clip, err error) {
	c, ti, ok := e.state.Clip(clipID)
	if !ok {
		return Clip{}, Clip{}, clipNotFound(clipID)
	}
	if at <= c.StartTime || at >= c.End() {
		return Clip{}, Clip{}, &RangeError{Op: "split clip", Value: at, Min: c.StartTime, Max: c.End()}
	}
	t := &e.state.Tracks[ti]
	if t.Locked {
		return Clip{}, Clip{}, fmt.Errorf("split clip %s: %w", clipID, ErrTrackLocked)
	}

	delta := at - c.StartTime
	r := c.Clone()
	r.ID = e.newID()
	r.StartTime = at
	r.Duration = c.Duration - delta
	r.TrimStart = c.TrimStart + delta
	r.In = nil

	lkf, rkf := partitionKeyframes(c.Keyframes, at)
	r.Keyframes = rkf

	c.Duration = delta
	c.TrimEnd = c.TrimStart + delta
	c.Out = nil
	c.Keyframes = lkf
	clampTransition(c.In, c.Duration)
	clampTransition(r.Out, r.Duration)

	left = c.Clone()
	t.Clips = append(t.Clips, r)
	t.sortClips()
	e.logger.Debug("clip split", "clip_id", clipID, "right_id", r.ID, "at", at)
	return left, r.Clone(), nil
}

// DeleteClip removes a clip from its track and the selection. The timeline
// duration is left unchanged; see Compact.
func (e *Editor) DeleteClip(clipID string) error {
	_, ti, ok := e.state.Clip(clipID)
	if !ok {
		return clipNotFound(clipID)
	}
	if e.state.Tracks[ti].Locked {
		return fmt.Errorf("delete clip %s: %w", clipID, ErrTrackLocked)
	}
	e.removeClip(ti, clipID)
	e.logger.Debug("clip deleted", "clip_id", clipID)
	return nil
}

// MergeClips joins two contiguous pieces of the same media on one track,
// typically the halves of an earlier split. The right clip is destroyed.
func (e *Editor) MergeClips(leftID, rightID string) (Clip, error) {
	l, lti, ok := e.state.Clip(leftID)
	if !ok {
		return Clip{}, clipNotFound(leftID)
	}
	r, rti, ok := e.state.Clip(rightID)
	if !ok {
		return Clip{}, clipNotFound(rightID)
	}
	switch {
	case lti != rti:
		return Clip{}, fmt.Errorf("merge %s and %s: different tracks: %w", leftID, rightID, ErrIncompatible)
	case l.MediaRef != r.MediaRef || l.MediaKind != r.MediaKind:
		return Clip{}, fmt.Errorf("merge %s and %s: different media: %w", leftID, rightID, ErrIncompatible)
	case l.End() != r.StartTime || l.TrimEnd != r.TrimStart:
		return Clip{}, fmt.Errorf("merge %s and %s: not contiguous: %w", leftID, rightID, ErrIncompatible)
	}
	t := &e.state.Tracks[lti]
	if t.Locked {
		return Clip{}, fmt.Errorf("merge clips: %w", ErrTrackLocked)
	}

	l.Duration += r.Duration
	l.TrimEnd = r.TrimEnd
	l.Out = nil
	if r.Out != nil {
		out := *r.Out
		l.Out = &out
	}
	for _, eff := range r.Effects {
		if _, found := l.Effect(eff.ID); !found {
			eff.Params = maps.Clone(eff.Params)
			l.Effects = append(l.Effects, eff)
		}
	}
	l.Keyframes = mergeKeyframes(l.Keyframes, r.Keyframes)
	merged := l.Clone()

	e.removeClip(rti, rightID)
	return merged, nil
}

// clampTransition shortens tr so it fits a clip of the given duration.
func clampTransition(tr *Transition, duration int64) {
	if tr != nil && tr.Duration > duration {
		tr.Duration = duration
	}
}

func (e *Editor) removeClip(ti int, clipID string) {
	t := &e.state.Tracks[ti]
	t.Clips = slices.DeleteFunc(t.Clips, func(c Clip) bool { return c.ID == clipID })
	delete(e.state.Selection, clipID)
}

// partitionKeyframes splits a sorted keyframe list at the cut. Per property,
// the left half keeps everything before the cut plus the first anchor at or
// after it, and the right half keeps the last anchor before the cut plus
// everything from it on.
func partitionKeyframes(kfs []Keyframe, cut int64) (left, right []Keyframe) {
	for _, prop := range keyframeProperties(kfs) {
		var group []Keyframe
		for _, kf := range kfs {
			if kf.Property == prop {
				group = append(group, kf)
			}
		}
		i, _ := slices.BinarySearchFunc(group, cut, func(kf Keyframe, t int64) int {
			switch {
			case kf.Time < t:
				return -1
			case kf.Time > t:
				return 1
			}
			return 0
		})
		left = append(left, group[:i]...)
		if i < len(group) {
			left = append(left, group[i])
		}
		if i > 0 {
			right = append(right, group[i-1])
		}
		right = append(right, group[i:]...)
	}
	sortKeyframes(left)
	sortKeyframes(right)
	return left, right
}

func mergeKeyframes(a, b []Keyframe) []Keyframe {
	out := slices.Clone(a)
	for _, kf := range b {
		if !slices.Contains(out, kf) {
			out = append(out, kf)
		}
	}
	sortKeyframes(out)
	return out
}

func keyframeProperties(kfs []Keyframe) []string {
	var props []string
	for _, kf := range kfs {
		if !slices.Contains(props, kf.Property) {
			props = append(props, kf.Property)
		}
	}
	return props
}

func sortKeyframes(kfs []Keyframe) {
	slices.SortStableFunc(kfs, func(a, b Keyframe) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
}
