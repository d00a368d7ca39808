package timeline

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Animatable clip properties. Effect parameters are addressed as
// "effects.<effectID>.<param>".
const (
	PropOpacity   = "opacity"
	PropVolume    = "volume"
	PropX         = "transform.x"
	PropY         = "transform.y"
	PropWidth     = "transform.width"
	PropHeight    = "transform.height"
	PropRotation  = "transform.rotation"
	effectsPrefix = "effects."
)

// EffectParamPath builds the keyframe property path for an effect parameter.
func EffectParamPath(effectID, param string) string {
	return effectsPrefix + effectID + "." + param
}

// ParseEffectParamPath splits an effect parameter path into its effect id
// and parameter name.
func ParseEffectParamPath(property string) (effectID, param string, ok bool) {
	rest, found := strings.CutPrefix(property, effectsPrefix)
	if !found {
		return "", "", false
	}
	effectID, param, ok = strings.Cut(rest, ".")
	if !ok || effectID == "" || param == "" {
		return "", "", false
	}
	return effectID, param, true
}

// StaticValue returns the un-animated value of property on c, the value the
// interpolator falls back to when no keyframes animate it.
func (c *Clip) StaticValue(property string) (float64, bool) {
	switch property {
	case PropOpacity:
		return c.Opacity, true
	case PropVolume:
		return c.Volume, true
	case PropX:
		return c.Transform.X, true
	case PropY:
		return c.Transform.Y, true
	case PropWidth:
		return c.Transform.Width, true
	case PropHeight:
		return c.Transform.Height, true
	case PropRotation:
		return c.Transform.Rotation, true
	}
	if id, param, ok := ParseEffectParamPath(property); ok {
		if eff, found := c.Effect(id); found {
			return eff.Params[param], true
		}
	}
	return 0, false
}

func validProperty(c *Clip, property string) bool {
	switch property {
	case PropOpacity, PropVolume, PropX, PropY, PropWidth, PropHeight, PropRotation:
		return true
	}
	if id, _, ok := ParseEffectParamPath(property); ok {
		_, found := c.Effect(id)
		return found
	}
	return false
}

func validateUnit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s %v outside [0, 1]: %w", name, v, ErrInvalidValue)
	}
	return nil
}

func validateTransition(tr *Transition, clipDuration int64) error {
	if tr == nil {
		return nil
	}
	if !tr.Kind.Valid() {
		return fmt.Errorf("transition kind %q: %w", tr.Kind, ErrInvalidValue)
	}
	if tr.Easing != "" && !tr.Easing.Valid() {
		return fmt.Errorf("transition easing %q: %w", tr.Easing, ErrInvalidValue)
	}
	if tr.Duration <= 0 || tr.Duration > clipDuration {
		return &RangeError{Op: "transition", Value: tr.Duration, Min: 0, Max: clipDuration,
			Reason: fmt.Sprintf("duration %d must be in (0, %d]", tr.Duration, clipDuration)}
	}
	return nil
}

func validateKeyframe(c *Clip, kf Keyframe) error {
	if kf.Time < 0 {
		return &RangeError{Op: "keyframe", Value: kf.Time, Reason: "time is negative"}
	}
	if !validProperty(c, kf.Property) {
		return fmt.Errorf("keyframe property %q on clip %s: %w", kf.Property, c.ID, ErrInvalidValue)
	}
	if !kf.Easing.Valid() {
		return fmt.Errorf("keyframe easing %q: %w", kf.Easing, ErrInvalidValue)
	}
	return nil
}

// validateClip checks every structural invariant of a single clip.
func validateClip(c *Clip) error {
	if !c.MediaKind.Valid() {
		return fmt.Errorf("media kind %q: %w", c.MediaKind, ErrInvalidValue)
	}
	if c.StartTime < 0 {
		return &RangeError{Op: "clip", Value: c.StartTime, Reason: "start time is negative"}
	}
	if c.TrimStart < 0 || c.TrimEnd < c.TrimStart {
		return &RangeError{Op: "clip", Value: c.TrimEnd, Min: c.TrimStart,
			Reason: fmt.Sprintf("trim window [%d, %d] is invalid", c.TrimStart, c.TrimEnd)}
	}
	if c.Duration != c.TrimEnd-c.TrimStart {
		return &RangeError{Op: "clip", Value: c.Duration,
			Reason: fmt.Sprintf("duration %d does not match trim window %d", c.Duration, c.TrimEnd-c.TrimStart)}
	}
	if err := validateUnit("volume", c.Volume); err != nil {
		return err
	}
	if err := validateUnit("opacity", c.Opacity); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, eff := range c.Effects {
		if eff.Kind == "" {
			return fmt.Errorf("effect %s has no kind: %w", eff.ID, ErrInvalidValue)
		}
		if seen[eff.ID] {
			return fmt.Errorf("effect %q: %w", eff.ID, ErrDuplicateID)
		}
		seen[eff.ID] = true
	}
	if err := validateTransition(c.In, c.Duration); err != nil {
		return err
	}
	if err := validateTransition(c.Out, c.Duration); err != nil {
		return err
	}
	for i, kf := range c.Keyframes {
		if i > 0 && kf.Time < c.Keyframes[i-1].Time {
			return fmt.Errorf("clip %s keyframe %d: %w", c.ID, i, ErrInvalidKeyframeOrder)
		}
		if err := validateKeyframe(c, kf); err != nil {
			return err
		}
	}
	return nil
}

// AddEffect appends an effect to a clip's effect chain.
func (e *Editor) AddEffect(clipID string, eff Effect) (Effect, error) {
	c, ti, ok := e.state.Clip(clipID)
	if !ok {
		return Effect{}, clipNotFound(clipID)
	}
	if e.state.Tracks[ti].Locked {
		return Effect{}, fmt.Errorf("add effect: %w", ErrTrackLocked)
	}
	if eff.Kind == "" {
		return Effect{}, fmt.Errorf("effect kind is empty: %w", ErrInvalidValue)
	}
	if eff.ID == "" {
		eff.ID = e.newID()
	}
	if _, exists := c.Effect(eff.ID); exists {
		return Effect{}, fmt.Errorf("effect %q: %w", eff.ID, ErrDuplicateID)
	}
	eff.Params = maps.Clone(eff.Params)
	if eff.Params == nil {
		eff.Params = map[string]float64{}
	}
	c.Effects = append(c.Effects, eff)
	return eff, nil
}

// RemoveEffect drops an effect and every keyframe animating its parameters.
func (e *Editor) RemoveEffect(clipID, effectID string) error {
	c, ti, ok := e.state.Clip(clipID)
	if !ok {
		return clipNotFound(clipID)
	}
	if e.state.Tracks[ti].Locked {
		return fmt.Errorf("remove effect: %w", ErrTrackLocked)
	}
	if _, found := c.Effect(effectID); !found {
		return &NotFoundError{Kind: "effect", ID: effectID}
	}
	c.Effects = slices.DeleteFunc(c.Effects, func(eff Effect) bool { return eff.ID == effectID })
	c.Keyframes = slices.DeleteFunc(c.Keyframes, func(kf Keyframe) bool {
		id, _, isEffect := ParseEffectParamPath(kf.Property)
		return isEffect && id == effectID
	})
	return nil
}

// SetEffectParam sets the static value of an effect parameter.
func (e *Editor) SetEffectParam(clipID, effectID, param string, value float64) error {
	c, ti, ok := e.state.Clip(clipID)
	if !ok {
		return clipNotFound(clipID)
	}
	if e.state.Tracks[ti].Locked {
		return fmt.Errorf("set effect param: %w", ErrTrackLocked)
	}
	eff, found := c.Effect(effectID)
	if !found {
		return &NotFoundError{Kind: "effect", ID: effectID}
	}
	if eff.Params == nil {
		eff.Params = map[string]float64{}
	}
	eff.Params[param] = value
	return nil
}

func (e *Editor) SetEffectEnabled(clipID, effectID string, enabled bool) error {
	c, ti, ok := e.state.Clip(clipID)
	if !ok {
		return clipNotFound(clipID)
	}
	if e.state.Tracks[ti].Locked {
		return fmt.Errorf("set effect enabled: %w", ErrTrackLocked)
	}
	eff, found := c.Effect(effectID)
	if !found {
		return &NotFoundError{Kind: "effect", ID: effectID}
	}
	eff.Enabled = enabled
	return nil
}

// AddTransition attaches a transition to the in or out edge of a clip,
// replacing any transition already on that edge.
func (e *Editor) AddTransition(clipID string, edge Edge, tr Transition) (Transition, error) {
	c, ti, ok := e.state.Clip(clipID)
	if !ok {
		return Transition{}, clipNotFound(clipID)
	}
	if e.state.Tracks[ti].Locked {
		return Transition{}, fmt.Errorf("add transition: %w", ErrTrackLocked)
	}
	if tr.Easing == "" {
		tr.Easing = defaultEasing
	}
	if err := validateTransition(&tr, c.Duration); err != nil {
		return Transition{}, err
	}
	switch edge {
	case EdgeIn:
		c.In = &tr
	case EdgeOut:
		c.Out = &tr
	default:
		return Transition{}, fmt.Errorf("transition edge %q: %w", edge, ErrInvalidValue)
	}
	return tr, nil
}

func (e *Editor) RemoveTransition(clipID string, edge Edge) error {
	c, ti, ok := e.state.Clip(clipID)
	if !ok {
		return clipNotFound(clipID)
	}
	if e.state.Tracks[ti].Locked {
		return fmt.Errorf("remove transition: %w", ErrTrackLocked)
	}
	switch edge {
	case EdgeIn:
		c.In = nil
	case EdgeOut:
		c.Out = nil
	default:
		return fmt.Errorf("transition edge %q: %w", edge, ErrInvalidValue)
	}
	return nil
}

// AddKeyframe inserts a keyframe and re-sorts the clip's keyframe list by
// time. A keyframe at the same time for the same property is replaced.
func (e *Editor) AddKeyframe(clipID string, kf Keyframe) (Keyframe, error) {
	c, ti, ok := e.state.Clip(clipID)
	if !ok {
		return Keyframe{}, clipNotFound(clipID)
	}
	if e.state.Tracks[ti].Locked {
		return Keyframe{}, fmt.Errorf("add keyframe: %w", ErrTrackLocked)
	}
	if kf.Easing == "" {
		kf.Easing = defaultEasing
	}
	if err := validateKeyframe(c, kf); err != nil {
		return Keyframe{}, err
	}
	c.Keyframes = slices.DeleteFunc(c.Keyframes, func(k Keyframe) bool {
		return k.Property == kf.Property && k.Time == kf.Time
	})
	c.Keyframes = append(c.Keyframes, kf)
	sortKeyframes(c.Keyframes)
	return kf, nil
}

// RemoveKeyframe deletes the keyframe for property at time.
func (e *Editor) RemoveKeyframe(clipID, property string, time int64) error {
	c, ti, ok := e.state.Clip(clipID)
	if !ok {
		return clipNotFound(clipID)
	}
	if e.state.Tracks[ti].Locked {
		return fmt.Errorf("remove keyframe: %w", ErrTrackLocked)
	}
	idx := slices.IndexFunc(c.Keyframes, func(k Keyframe) bool {
		return k.Property == property && k.Time == time
	})
	if idx < 0 {
		return &NotFoundError{Kind: "keyframe", ID: fmt.Sprintf("%s@%d", property, time)}
	}
	c.Keyframes = slices.Delete(c.Keyframes, idx, idx+1)
	return nil
}

// SetClipProperty sets the static value of an animatable clip property.
func (e *Editor) SetClipProperty(clipID, property string, value float64) error {
	c, ti, ok := e.state.Clip(clipID)
	if !ok {
		return clipNotFound(clipID)
	}
	if e.state.Tracks[ti].Locked {
		return fmt.Errorf("set property: %w", ErrTrackLocked)
	}
	switch property {
	case PropOpacity, PropVolume:
		if err := validateUnit(property, value); err != nil {
			return err
		}
	case PropWidth, PropHeight:
		if value < 0 {
			return fmt.Errorf("%s %v is negative: %w", property, value, ErrInvalidValue)
		}
	}
	switch property {
	case PropOpacity:
		c.Opacity = value
	case PropVolume:
		c.Volume = value
	case PropX:
		c.Transform.X = value
	case PropY:
		c.Transform.Y = value
	case PropWidth:
		c.Transform.Width = value
	case PropHeight:
		c.Transform.Height = value
	case PropRotation:
		c.Transform.Rotation = value
	default:
		id, param, isEffect := ParseEffectParamPath(property)
		if !isEffect {
			return fmt.Errorf("property %q: %w", property, ErrInvalidValue)
		}
		eff, found := c.Effect(id)
		if !found {
			return &NotFoundError{Kind: "effect", ID: id}
		}
		if eff.Params == nil {
			eff.Params = map[string]float64{}
		}
		eff.Params[param] = value
	}
	return nil
}
