// Package metrics implements Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var labels = []string{"payload", "protocol"}

var (
	// FramesSentTotal counts frames submitted to the connection
	FramesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediatx_frames_sent_total",
			Help: "Total number of frames submitted for transmission",
		},
		labels,
	)

	// BytesSentTotal counts payload bytes submitted to the connection
	BytesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediatx_bytes_sent_total",
			Help: "Total number of payload bytes submitted for transmission",
		},
		labels,
	)

	// ReplaysTotal counts input rewinds
	ReplaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediatx_replays_total",
			Help: "Total number of times the input file was replayed",
		},
		labels,
	)

	// PacingOverrunsTotal counts iterations that took longer than the frame interval
	PacingOverrunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediatx_pacing_overruns_total",
			Help: "Total number of iterations that exceeded the frame interval",
		},
		labels,
	)

	// FPS is the last sampled transmit rate
	FPS = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediatx_fps",
			Help: "Most recently sampled frames per second",
		},
		labels,
	)

	// IterationSeconds measures the work part of one pacing iteration
	IterationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediatx_iteration_seconds",
			Help:    "Time spent acquiring, filling and submitting one frame",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16), // 10µs to ~0.33s
		},
		labels,
	)
)

// Recorder feeds the pacing loop events of one session into the collectors.
type Recorder struct {
	frames    prometheus.Counter
	bytes     prometheus.Counter
	replays   prometheus.Counter
	overruns  prometheus.Counter
	fps       prometheus.Gauge
	iteration prometheus.Observer
}

// NewRecorder binds the collectors to a payload type and protocol.
func NewRecorder(payload, protocol string) *Recorder {
	return &Recorder{
		frames:    FramesSentTotal.WithLabelValues(payload, protocol),
		bytes:     BytesSentTotal.WithLabelValues(payload, protocol),
		replays:   ReplaysTotal.WithLabelValues(payload, protocol),
		overruns:  PacingOverrunsTotal.WithLabelValues(payload, protocol),
		fps:       FPS.WithLabelValues(payload, protocol),
		iteration: IterationSeconds.WithLabelValues(payload, protocol),
	}
}

func (r *Recorder) FrameSent(bytes int) {
	r.frames.Inc()
	r.bytes.Add(float64(bytes))
}

func (r *Recorder) Replayed() { r.replays.Inc() }

func (r *Recorder) Overrun(time.Duration) { r.overruns.Inc() }

func (r *Recorder) Rate(fps float64) { r.fps.Set(fps) }

func (r *Recorder) Iteration(d time.Duration) { r.iteration.Observe(d.Seconds()) }
