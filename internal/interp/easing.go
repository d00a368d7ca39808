package interp

import "github.com/ivlev/nlecore/internal/timeline"

// Ease maps linear progress p in [0, 1] through the named easing curve.
// p is clamped to [0, 1]; unknown easings behave as linear.
func Ease(e timeline.Easing, p float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return 1
	}
	switch e {
	case timeline.EaseIn:
		return easeInCubic(p)
	case timeline.EaseOut:
		return easeOutCubic(p)
	case timeline.EaseInOut:
		return easeInOutCubic(p)
	default:
		return p
	}
}

func easeInCubic(t float64) float64 {
	return t * t * t
}

func easeOutCubic(t float64) float64 {
	return 1 - pow(1-t, 3)
}

// easeInOutCubic applies smooth easing function
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - pow(-2*t+2, 3)/2
}

// pow calculates x^n
func pow(x float64, n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= x
	}
	return result
}
