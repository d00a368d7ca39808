// Package interp evaluates keyframed clip properties at a timeline time.
package interp

import (
	"fmt"

	"github.com/ivlev/nlecore/internal/timeline"
)

// ValueAt returns the value of a property at time t given its keyframes,
// which must be sorted ascending by time. With no keyframes the static value
// is returned; before the first or after the last keyframe the value clamps
// to that keyframe. Between two keyframes the segment is eased with the
// easing of its left keyframe.
func ValueAt(keyframes []timeline.Keyframe, t int64, static float64) (float64, error) {
	if err := CheckOrder(keyframes); err != nil {
		return 0, err
	}
	return valueAt(keyframes, t, static), nil
}

// CheckOrder reports timeline.ErrInvalidKeyframeOrder when keyframes are not
// sorted ascending by time.
func CheckOrder(keyframes []timeline.Keyframe) error {
	for i := 1; i < len(keyframes); i++ {
		if keyframes[i].Time < keyframes[i-1].Time {
			return fmt.Errorf("keyframe %d at %d precedes %d: %w",
				i, keyframes[i].Time, keyframes[i-1].Time, timeline.ErrInvalidKeyframeOrder)
		}
	}
	return nil
}

func valueAt(keyframes []timeline.Keyframe, t int64, static float64) float64 {
	n := len(keyframes)
	if n == 0 {
		return static
	}
	if t <= keyframes[0].Time {
		return keyframes[0].Value
	}
	if t >= keyframes[n-1].Time {
		return keyframes[n-1].Value
	}

	// Find the bracketing pair k0.Time <= t < k1.Time
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if keyframes[mid].Time <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	k0, k1 := keyframes[lo], keyframes[hi]

	span := float64(k1.Time - k0.Time)
	if span <= 0 {
		return k1.Value
	}
	p := float64(t-k0.Time) / span
	return lerp(k0.Value, k1.Value, Ease(k0.Easing, p))
}

// Property evaluates property on clip at t, falling back to the clip's
// static value when no keyframes animate it.
func Property(c *timeline.Clip, property string, t int64) (float64, error) {
	static, _ := c.StaticValue(property)
	return ValueAt(c.KeyframesFor(property), t, static)
}

// lerp performs linear interpolation between a and b
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
