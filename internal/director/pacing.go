package director

import (
	"math/rand"
)

// PaceSlides splits total ms across n slides so the deck does not tick like
// a metronome: the first slide deviates up to 15% from the even share and
// each later slide up to 15% from its predecessor. No slide is shorter than
// floor. The durations always sum to total.
func PaceSlides(total int64, n int, floor int64, rng *rand.Rand) []int64 {
	if n <= 0 || total <= 0 {
		return nil
	}
	base := float64(total) / float64(n)

	raw := make([]float64, n)
	raw[0] = base * (1 + rng.Float64()*0.3 - 0.15)
	for i := 1; i < n; i++ {
		raw[i] = raw[i-1] * (1 + rng.Float64()*0.3 - 0.15)
		if raw[i] < float64(floor) {
			raw[i] = float64(floor)
		}
	}

	var sum float64
	for _, d := range raw {
		sum += d
	}
	scale := float64(total) / sum

	durations := make([]int64, n)
	var assigned int64
	for i := range raw {
		durations[i] = int64(raw[i] * scale)
		assigned += durations[i]
	}
	// Rounding leftovers go to the last slide.
	durations[n-1] += total - assigned
	return durations
}
