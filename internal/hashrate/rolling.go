package hashrate

import "math"

// rollingAverage is a fixed-size ring of per-interval slots (spec
// §4.8: 1m/10m/1h arrays of 12/10/6 samples). Each slot accumulates a
// running sum and count of every value it sees until period elapses,
// at which point the ring advances to a fresh NaN slot. Blended reads
// the current partial slot's mean against the mean of the completed
// slots so published values move smoothly across slot boundaries
// instead of stepping.
type rollingAverage struct {
	samples []float64
	counts  []int
	idx     int
	period  float64 // seconds per slot
	elapsed float64 // seconds into the current slot
}

func newRollingAverage(slots int, periodSeconds float64) *rollingAverage {
	samples := make([]float64, slots)
	for i := range samples {
		samples[i] = math.NaN()
	}
	return &rollingAverage{samples: samples, counts: make([]int, slots), period: periodSeconds}
}

// Add folds value into the current slot, advancing the ring every
// period seconds. dt is the elapsed time since the previous Add call.
func (r *rollingAverage) Add(value float64, dt float64) {
	r.elapsed += dt
	for r.elapsed >= r.period {
		r.elapsed -= r.period
		r.idx = (r.idx + 1) % len(r.samples)
		r.samples[r.idx] = math.NaN()
		r.counts[r.idx] = 0
	}
	if math.IsNaN(r.samples[r.idx]) {
		r.samples[r.idx] = value
	} else {
		r.samples[r.idx] += value
	}
	r.counts[r.idx]++
}

// Blended returns the NaN-ignoring mean of every completed slot,
// linearly blended with the in-progress slot for the fraction of the
// period already elapsed (spec §4.8).
func (r *rollingAverage) Blended() float64 {
	var sum float64
	var n int
	for i, v := range r.samples {
		if math.IsNaN(v) {
			continue
		}
		if i == r.idx {
			continue // current slot folded in separately below
		}
		sum += v / float64(r.counts[i]) // samples[i] holds a running sum, not a mean
		n++
	}
	completed := math.NaN()
	if n > 0 {
		completed = sum / float64(n)
	}

	if r.counts[r.idx] == 0 || math.IsNaN(r.samples[r.idx]) {
		return completed
	}
	current := r.samples[r.idx] / float64(r.counts[r.idx])
	if math.IsNaN(completed) {
		return current
	}

	frac := r.elapsed / r.period
	if frac > 1 {
		frac = 1
	}
	return completed*(1-frac) + current*frac
}
