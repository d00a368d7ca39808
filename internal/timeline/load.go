package timeline

import "fmt"

// Load replaces the editor's state with s after validating every model
// invariant. Transient fields are reset: playback is stopped and the
// selection is cleared. A duration shorter than the latest clip end is
// extended; the playhead is clamped into [0, Duration].
func (e *Editor) Load(s State) error {
	s = s.Clone()
	trackIDs := map[string]bool{}
	clipIDs := map[string]bool{}
	for ti := range s.Tracks {
		t := &s.Tracks[ti]
		if t.ID == "" {
			return fmt.Errorf("track %d has no id: %w", ti, ErrInvalidValue)
		}
		if trackIDs[t.ID] {
			return fmt.Errorf("track %q: %w", t.ID, ErrDuplicateID)
		}
		trackIDs[t.ID] = true
		if !t.Kind.Valid() {
			return fmt.Errorf("track %s kind %q: %w", t.ID, t.Kind, ErrInvalidValue)
		}
		for ci := range t.Clips {
			c := &t.Clips[ci]
			if c.ID == "" {
				return fmt.Errorf("track %s clip %d has no id: %w", t.ID, ci, ErrInvalidValue)
			}
			if clipIDs[c.ID] {
				return fmt.Errorf("clip %q: %w", c.ID, ErrDuplicateID)
			}
			clipIDs[c.ID] = true
			if c.TrackID == "" {
				c.TrackID = t.ID
			}
			if c.TrackID != t.ID {
				return fmt.Errorf("clip %s claims track %s but lives on %s: %w", c.ID, c.TrackID, t.ID, ErrInvalidValue)
			}
			if !t.Kind.Accepts(c.MediaKind) {
				return fmt.Errorf("clip %s: %s media on %s track: %w", c.ID, c.MediaKind, t.Kind, ErrIncompatible)
			}
			if err := validateClip(c); err != nil {
				return fmt.Errorf("clip %s: %w", c.ID, err)
			}
		}
		t.sortClips()
		for ci := range t.Clips {
			c := &t.Clips[ci]
			if err := e.checkOverlap(t, c.StartTime, c.End(), c.ID); err != nil {
				return err
			}
		}
	}
	if s.Zoom == 0 {
		s.Zoom = 1
	}
	if s.Zoom < 0 {
		return fmt.Errorf("zoom %v: %w", s.Zoom, ErrInvalidValue)
	}
	if s.PlaybackRate == 0 {
		s.PlaybackRate = 1
	}
	if s.PlaybackRate < MinPlaybackRate || s.PlaybackRate > MaxPlaybackRate {
		return fmt.Errorf("rate %v: %w", s.PlaybackRate, ErrInvalidPlaybackRate)
	}
	if end := s.MaxEnd(); s.Duration < end {
		s.Duration = end
	}
	s.CurrentTime = clampTime(s.CurrentTime, s.Duration)
	s.IsPlaying = false
	s.Selection = map[string]struct{}{}

	e.state = s
	e.logger.Debug("timeline loaded", "tracks", len(s.Tracks), "clips", len(clipIDs), "duration", s.Duration)
	return nil
}
