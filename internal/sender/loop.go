// Package sender implements the frame-paced transmission loop.
package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"firestige.xyz/mediatx/internal/config"
	"firestige.xyz/mediatx/internal/core"
	"firestige.xyz/mediatx/internal/source"
	"firestige.xyz/mediatx/internal/transport"
)

// Observer receives loop events, typically to export them as metrics.
type Observer interface {
	FrameSent(bytes int)
	Replayed()
	Overrun(deficit time.Duration)
	Rate(fps float64)
	Iteration(d time.Duration)
}

type nopObserver struct{}

func (nopObserver) FrameSent(int)           {}
func (nopObserver) Replayed()               {}
func (nopObserver) Overrun(time.Duration)   {}
func (nopObserver) Rate(float64)            {}
func (nopObserver) Iteration(time.Duration) {}

// Options tunes one loop.
type Options struct {
	FrameSize int
	// Interval is the target frame spacing; 0 disables pacing.
	Interval  time.Duration
	TargetFPS float64
	// TotalNum stops the loop after that many frames; 0 is unbounded.
	TotalNum uint64
	// Continuous payloads ignore TotalNum.
	Continuous     bool
	Replay         bool
	AcquireTimeout time.Duration

	Clock    clock.Clock
	Observer Observer
	Log      *logrus.Entry
}

// OptionsFrom derives loop options from a validated configuration.
func OptionsFrom(cfg *config.Config) (Options, error) {
	size, err := cfg.Payload.FrameSize()
	if err != nil {
		return Options{}, err
	}
	params := cfg.Payload.Params()
	interval := params.Interval()
	fps := 0.0
	if interval > 0 {
		fps = float64(time.Second) / float64(interval)
	}
	return Options{
		FrameSize:      size,
		Interval:       interval,
		TargetFPS:      fps,
		TotalNum:       cfg.Input.TotalNum,
		Continuous:     params.Kind().Continuous(),
		Replay:         cfg.Input.Loop,
		AcquireTimeout: cfg.Transport.AcquireTimeout,
	}, nil
}

// Loop pulls frames from a Source and submits them on a Connection at the
// target rate. It runs on the caller's goroutine.
type Loop struct {
	conn  transport.Connection
	src   source.Source
	opts  Options
	clock clock.Clock
	obs   Observer
	log   *logrus.Entry
	rate  *RateMeter
	pacer *Pacer
}

func New(conn transport.Connection, src source.Source, opts Options) *Loop {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Loop{
		conn:  conn,
		src:   src,
		opts:  opts,
		clock: opts.Clock,
		obs:   opts.Observer,
		log:   opts.Log,
		rate:  NewRateMeter(),
		pacer: NewPacer(opts.Clock, opts.Interval),
	}
}

// Run transmits frames until a stop condition and reports why it stopped.
// A buffer still leased when the loop stops is released before Run returns.
func (l *Loop) Run(ctx context.Context) (res Result) {
	begin := l.clock.Now()
	defer func() {
		res.Overruns, res.WorstOverrun = l.pacer.Overruns()
		res.Elapsed = l.clock.Since(begin)
	}()

	l.log.WithFields(logrus.Fields{
		"frame_size": l.opts.FrameSize,
		"interval":   l.opts.Interval,
		"total_num":  l.opts.TotalNum,
		"continuous": l.opts.Continuous,
		"replay":     l.opts.Replay,
	}).Info("transmission started")

	var frame uint64
	for {
		if ctx.Err() != nil {
			res.Reason = StopCancelled
			return res
		}
		start := l.clock.Now()

		buf, err := l.conn.Acquire(ctx, l.opts.AcquireTimeout)
		if err != nil {
			if ctx.Err() != nil {
				res.Reason = StopCancelled
			} else {
				res.Reason, res.Err = StopEndOfStream, err
				l.log.WithError(err).Info("no buffer from transport, stopping")
			}
			return res
		}

		if buf.Cap() < l.opts.FrameSize {
			l.conn.Release(buf)
			res.Reason = StopBufferFailed
			res.Err = fmt.Errorf("%w: capacity %d, frame size %d", core.ErrBufferTooSmall, buf.Cap(), l.opts.FrameSize)
			return res
		}

		n, reason, err := l.fill(buf.Data()[:l.opts.FrameSize], frame, &res)
		if reason != stopNone {
			l.conn.Release(buf)
			res.Reason, res.Err = reason, err
			return res
		}
		if err := buf.SetLen(n); err != nil {
			l.conn.Release(buf)
			res.Reason, res.Err = StopBufferFailed, err
			return res
		}

		if err := l.conn.Submit(buf); err != nil {
			res.Reason, res.Err = StopSubmitFailed, err
			l.log.WithError(err).Error("submit failed")
			return res
		}
		res.Frames++
		res.Bytes += uint64(n)
		l.obs.FrameSent(n)

		if fps, ok := l.rate.Observe(frame, l.clock.Now()); ok {
			res.LastFPS = fps
			l.obs.Rate(fps)
			if frame > 0 {
				l.log.WithFields(logrus.Fields{"frames": frame, "fps": fmt.Sprintf("%.2f", fps)}).Info("tx rate")
			}
		}
		l.log.Debugf("TX frames: [%d], FPS: %.2f [%.2f]", frame, res.LastFPS, l.opts.TargetFPS)

		frame++
		if !l.opts.Continuous && l.opts.TotalNum > 0 && frame >= l.opts.TotalNum {
			res.Reason = StopFrameLimit
			return res
		}

		l.obs.Iteration(l.clock.Since(start))
		if deficit, err := l.pacer.Wait(ctx, start); err != nil {
			res.Reason = StopCancelled
			return res
		} else if deficit > 0 {
			l.obs.Overrun(deficit)
			l.log.WithField("deficit", deficit).Debug("frame interval overrun")
		}
	}
}

// fill writes one frame into p, applying the replay policy on exhaustion.
// reason is stopNone when the frame was filled.
func (l *Loop) fill(p []byte, frame uint64, res *Result) (int, StopReason, error) {
	n, err := l.src.Fill(p, frame)
	if err == nil {
		return n, stopNone, nil
	}
	if !errors.Is(err, core.ErrExhausted) {
		return 0, StopSourceFailed, err
	}
	if !l.opts.Replay {
		l.log.WithField("frames", res.Frames).Info("input exhausted")
		return 0, StopExhausted, nil
	}

	if err := l.src.Rewind(); err != nil {
		return 0, StopReplayFailed, err
	}
	res.Replays++
	l.obs.Replayed()
	l.log.WithField("replays", res.Replays).Debug("input replayed from start")

	n, err = l.src.Fill(p, frame)
	switch {
	case err == nil:
		return n, stopNone, nil
	case errors.Is(err, core.ErrExhausted):
		return 0, StopReplayFailed, core.ErrReplayExhausted
	default:
		return 0, StopSourceFailed, err
	}
}
