package timeline

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidRange         = errors.New("invalid range")
	ErrInvalidKeyframeOrder = errors.New("keyframes not sorted by time")
	ErrInvalidPlaybackRate  = errors.New("invalid playback rate")
	ErrOverlap              = errors.New("clip overlaps another clip on the track")
	ErrTrackLocked          = errors.New("track is locked")
	ErrIncompatible         = errors.New("incompatible clip")
	ErrDuplicateID          = errors.New("duplicate id")
	ErrInvalidValue         = errors.New("invalid value")
)

// NotFoundError reports an unknown track, clip, effect or keyframe id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func trackNotFound(id string) error { return &NotFoundError{Kind: "track", ID: id} }
func clipNotFound(id string) error  { return &NotFoundError{Kind: "clip", ID: id} }

// RangeError reports a time or trim bound that an operation rejected.
type RangeError struct {
	Op     string
	Value  int64
	Min    int64
	Max    int64
	Reason string
}

func (e *RangeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: %d outside (%d, %d)", e.Op, e.Value, e.Min, e.Max)
}

func (e *RangeError) Unwrap() error { return ErrInvalidRange }

// OverlapError names the clip an edit would collide with.
type OverlapError struct {
	TrackID string
	ClipID  string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("track %s: overlaps clip %s", e.TrackID, e.ClipID)
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }
