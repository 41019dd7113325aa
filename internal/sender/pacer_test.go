package sender

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func TestRateMeterWindow(t *testing.T) {
	base := time.Unix(0, 0)
	period := 40 * time.Millisecond
	m := NewRateMeter()

	var samples []float64
	for frame := uint64(0); frame <= 90; frame++ {
		fps, ok := m.Observe(frame, base.Add(time.Duration(frame)*period))
		if frame%SampleEvery != 0 {
			assert.False(t, ok, "frame %d", frame)
			continue
		}
		require.True(t, ok, "frame %d", frame)
		samples = append(samples, fps)
	}
	require.Len(t, samples, 4)
	assert.Zero(t, samples[0])
	for _, fps := range samples[1:] {
		assert.InDelta(t, 25.0, fps, 1e-9)
	}
}

func TestRateMeterDoesNotAverage(t *testing.T) {
	base := time.Unix(0, 0)
	m := NewRateMeter()
	m.Observe(0, base)
	fps, _ := m.Observe(30, base.Add(time.Second))
	assert.InDelta(t, 30.0, fps, 1e-9)
	fps, _ = m.Observe(60, base.Add(3*time.Second))
	assert.InDelta(t, 15.0, fps, 1e-9, "only the last window counts")
}

func TestPacerDisabled(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Unix(0, 0))
	p := NewPacer(fc, 0)
	d, err := p.Wait(context.Background(), fc.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, d)
	n, _ := p.Overruns()
	assert.Zero(t, n)
}

func TestPacerSleepsRemainder(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Unix(0, 0))
	p := NewPacer(fc, 33*time.Millisecond)
	start := fc.Now()
	fc.Step(13 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := p.Wait(context.Background(), start)
		done <- err
	}()
	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(19 * time.Millisecond)
	assert.True(t, fc.HasWaiters(), "still 1ms to go")
	fc.Step(time.Millisecond)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pacer did not wake up")
	}
}

func TestPacerOverrun(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Unix(0, 0))
	p := NewPacer(fc, 10*time.Millisecond)

	start := fc.Now()
	fc.Step(12 * time.Millisecond)
	d, err := p.Wait(context.Background(), start)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Millisecond, d)

	start = fc.Now()
	fc.Step(17 * time.Millisecond)
	d, _ = p.Wait(context.Background(), start)
	assert.Equal(t, 7*time.Millisecond, d)

	n, worst := p.Overruns()
	assert.Equal(t, uint64(2), n)
	assert.Equal(t, 7*time.Millisecond, worst)
	assert.False(t, fc.HasWaiters())
}

func TestPacerCancelled(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Unix(0, 0))
	p := NewPacer(fc, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Wait(ctx, fc.Now())
	assert.ErrorIs(t, err, context.Canceled)
}
