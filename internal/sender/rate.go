package sender

import "time"

// SampleEvery is the FPS window length in frames.
const SampleEvery = 30

// RateMeter computes the instantaneous frame rate over the last window of
// SampleEvery frames. It never averages across windows.
type RateMeter struct {
	every uint64
	last  time.Time
	ready bool
}

func NewRateMeter() *RateMeter {
	return &RateMeter{every: SampleEvery}
}

// Observe samples now on frames that are a multiple of the window length.
// sampled is false on all other frames. The first sample has no window
// behind it and reports 0.
func (r *RateMeter) Observe(frame uint64, now time.Time) (fps float64, sampled bool) {
	if frame%r.every != 0 {
		return 0, false
	}
	if !r.ready {
		r.last, r.ready = now, true
		return 0, true
	}
	elapsed := now.Sub(r.last).Seconds()
	r.last = now
	if elapsed <= 0 {
		return 0, true
	}
	return float64(r.every) / elapsed, true
}
