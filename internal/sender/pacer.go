package sender

import (
	"context"
	"time"

	"k8s.io/utils/clock"
)

// Pacer stretches each loop iteration to the target frame interval.
type Pacer struct {
	clock    clock.Clock
	interval time.Duration

	overruns uint64
	worst    time.Duration
}

func NewPacer(clk clock.Clock, interval time.Duration) *Pacer {
	return &Pacer{clock: clk, interval: interval}
}

// Wait sleeps for what is left of the interval since start. An iteration
// that already took longer is an overrun: it is counted and returned, and
// no sleep happens. Cancellation cuts the sleep short with ctx.Err().
func (p *Pacer) Wait(ctx context.Context, start time.Time) (time.Duration, error) {
	if p.interval <= 0 {
		return 0, nil
	}
	remaining := p.interval - p.clock.Since(start)
	if remaining <= 0 {
		p.overruns++
		if -remaining > p.worst {
			p.worst = -remaining
		}
		return -remaining, nil
	}

	t := p.clock.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-t.C():
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Overruns returns the overrun count and the largest deficit seen.
func (p *Pacer) Overruns() (uint64, time.Duration) {
	return p.overruns, p.worst
}
