package sender

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"firestige.xyz/mediatx/internal/config"
	"firestige.xyz/mediatx/internal/core"
	"firestige.xyz/mediatx/internal/source"
	"firestige.xyz/mediatx/internal/transport"
)

// countWriter counts frames reaching the wire.
type countWriter struct {
	mu     sync.Mutex
	frames int
}

func (w *countWriter) WriteFrame(context.Context, uint32, []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frames++
	return nil
}

func (w *countWriter) Close() error { return nil }

// fakeConn wraps a real pool and injects acquire and submit failures.
type fakeConn struct {
	*transport.Pool
	acquireLimit int // acquires allowed before end-of-stream, 0 = unlimited
	failSubmitAt int // 1-based submit that fails, 0 = never

	acquired  int
	submitted int
	released  int
}

func newFakeConn(t *testing.T, frameSize int) *fakeConn {
	t.Helper()
	p := transport.NewPool(&countWriter{}, transport.Options{Buffers: 2, FrameSize: frameSize, Linger: time.Second})
	t.Cleanup(func() { _ = p.Close() })
	return &fakeConn{Pool: p}
}

func (c *fakeConn) Acquire(ctx context.Context, timeout time.Duration) (*transport.Buffer, error) {
	if c.acquireLimit > 0 && c.acquired >= c.acquireLimit {
		return nil, core.ErrEndOfStream
	}
	c.acquired++
	return c.Pool.Acquire(ctx, timeout)
}

func (c *fakeConn) Submit(b *transport.Buffer) error {
	if c.failSubmitAt > 0 && c.submitted+1 == c.failSubmitAt {
		c.Pool.Release(b)
		return errors.New("proxy rejected buffer")
	}
	if err := c.Pool.Submit(b); err != nil {
		return err
	}
	c.submitted++
	return nil
}

func (c *fakeConn) Release(b *transport.Buffer) {
	c.released++
	c.Pool.Release(b)
}

type mockSource struct{ mock.Mock }

func (m *mockSource) Fill(p []byte, frame uint64) (int, error) {
	args := m.Called(p, frame)
	return args.Int(0), args.Error(1)
}

func (m *mockSource) Rewind() error { return m.Called().Error(0) }

func (m *mockSource) Close() error { return m.Called().Error(0) }

func inputFile(t *testing.T, size int) source.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.raw")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	src, err := source.OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func TestLoopFileThenCleanStop(t *testing.T) {
	conn := newFakeConn(t, 100)
	res := New(conn, inputFile(t, 300), Options{FrameSize: 100}).Run(context.Background())

	assert.Equal(t, StopExhausted, res.Reason)
	assert.False(t, res.Reason.Fatal())
	assert.NoError(t, res.Err)
	assert.Equal(t, uint64(3), res.Frames)
	assert.Equal(t, uint64(300), res.Bytes)
	assert.Equal(t, 3, conn.submitted)
	assert.Equal(t, 1, conn.released, "the exhausted lease goes back")
}

func TestLoopFrameLimit(t *testing.T) {
	conn := newFakeConn(t, 64)
	res := New(conn, source.NewPattern(nil), Options{FrameSize: 64, TotalNum: 5}).Run(context.Background())

	assert.Equal(t, StopFrameLimit, res.Reason)
	assert.Equal(t, uint64(5), res.Frames)
	assert.Equal(t, 5, conn.submitted)
}

func TestLoopContinuousIgnoresFrameLimit(t *testing.T) {
	conn := newFakeConn(t, 192)
	conn.acquireLimit = 12
	res := New(conn, source.NewPattern(nil), Options{FrameSize: 192, TotalNum: 5, Continuous: true}).Run(context.Background())

	assert.Equal(t, StopEndOfStream, res.Reason)
	assert.False(t, res.Reason.Fatal())
	assert.ErrorIs(t, res.Err, core.ErrEndOfStream)
	assert.Equal(t, uint64(12), res.Frames)
}

func TestLoopUnboundedWithoutFrameLimit(t *testing.T) {
	conn := newFakeConn(t, 16)
	conn.acquireLimit = 400
	res := New(conn, source.NewPattern(nil), Options{FrameSize: 16}).Run(context.Background())

	assert.Equal(t, StopEndOfStream, res.Reason)
	assert.Equal(t, uint64(400), res.Frames)
}

func TestLoopReplay(t *testing.T) {
	conn := newFakeConn(t, 100)
	conn.acquireLimit = 7
	res := New(conn, inputFile(t, 200), Options{FrameSize: 100, Replay: true}).Run(context.Background())

	assert.Equal(t, StopEndOfStream, res.Reason)
	assert.Equal(t, uint64(7), res.Frames)
	assert.Equal(t, uint64(3), res.Replays)
}

func TestLoopZeroByteFile(t *testing.T) {
	t.Run("replay terminates after one retry", func(t *testing.T) {
		conn := newFakeConn(t, 100)
		res := New(conn, inputFile(t, 0), Options{FrameSize: 100, Replay: true}).Run(context.Background())

		assert.Equal(t, StopReplayFailed, res.Reason)
		assert.True(t, res.Reason.Fatal())
		assert.ErrorIs(t, res.Err, core.ErrReplayExhausted)
		assert.Equal(t, uint64(1), res.Replays)
		assert.Zero(t, res.Frames)
	})
	t.Run("no replay stops cleanly", func(t *testing.T) {
		conn := newFakeConn(t, 100)
		res := New(conn, inputFile(t, 0), Options{FrameSize: 100}).Run(context.Background())

		assert.Equal(t, StopExhausted, res.Reason)
		assert.Zero(t, res.Frames)
	})
}

func TestLoopSubmitFailure(t *testing.T) {
	conn := newFakeConn(t, 32)
	conn.failSubmitAt = 3
	res := New(conn, source.NewPattern(nil), Options{FrameSize: 32}).Run(context.Background())

	assert.Equal(t, StopSubmitFailed, res.Reason)
	assert.True(t, res.Reason.Fatal())
	assert.Error(t, res.Err)
	assert.Equal(t, uint64(2), res.Frames)
}

func TestLoopBufferTooSmall(t *testing.T) {
	conn := newFakeConn(t, 32)
	res := New(conn, source.NewPattern(nil), Options{FrameSize: 64}).Run(context.Background())

	assert.Equal(t, StopBufferFailed, res.Reason)
	assert.ErrorIs(t, res.Err, core.ErrBufferTooSmall)
	assert.Equal(t, 1, conn.released)
}

func TestLoopCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conn := newFakeConn(t, 32)
	res := New(conn, source.NewPattern(nil), Options{FrameSize: 32}).Run(ctx)

	assert.Equal(t, StopCancelled, res.Reason)
	assert.Zero(t, res.Frames)
	assert.Zero(t, conn.acquired)
}

// cancelObserver cancels the run after a number of frames.
type cancelObserver struct {
	nopObserver
	after  int
	sent   int
	cancel context.CancelFunc
}

func (o *cancelObserver) FrameSent(int) {
	o.sent++
	if o.sent == o.after {
		o.cancel()
	}
}

func TestLoopCancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := newFakeConn(t, 32)
	obs := &cancelObserver{after: 4, cancel: cancel}
	res := New(conn, source.NewPattern(nil), Options{FrameSize: 32, Observer: obs}).Run(ctx)

	assert.Equal(t, StopCancelled, res.Reason)
	assert.NoError(t, res.Err)
	assert.Equal(t, uint64(4), res.Frames)
}

func TestLoopRewindFailure(t *testing.T) {
	src := &mockSource{}
	src.On("Fill", mock.Anything, uint64(0)).Return(0, core.ErrExhausted).Once()
	src.On("Rewind").Return(errors.New("file removed")).Once()

	conn := newFakeConn(t, 8)
	res := New(conn, src, Options{FrameSize: 8, Replay: true}).Run(context.Background())

	assert.Equal(t, StopReplayFailed, res.Reason)
	assert.EqualError(t, res.Err, "file removed")
	src.AssertExpectations(t)
}

func TestLoopSourceFailure(t *testing.T) {
	src := &mockSource{}
	src.On("Fill", mock.Anything, mock.Anything).Return(8, nil).Once()
	src.On("Fill", mock.Anything, uint64(1)).Return(0, errors.New("device gone")).Once()

	conn := newFakeConn(t, 8)
	res := New(conn, src, Options{FrameSize: 8}).Run(context.Background())

	assert.Equal(t, StopSourceFailed, res.Reason)
	assert.Equal(t, uint64(1), res.Frames)
	src.AssertExpectations(t)
}

func TestLoopReadErrorIsNotReplayed(t *testing.T) {
	src, err := source.OpenFile(t.TempDir())
	require.NoError(t, err)
	defer src.Close()

	conn := newFakeConn(t, 8)
	res := New(conn, src, Options{FrameSize: 8, Replay: true}).Run(context.Background())

	assert.Equal(t, StopSourceFailed, res.Reason)
	assert.NotErrorIs(t, res.Err, core.ErrExhausted)
	assert.Zero(t, res.Replays)
}

func TestLoopPacesFrames(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Unix(1000, 0))
	conn := newFakeConn(t, 16)
	loop := New(conn, source.NewPattern(fc), Options{
		FrameSize: 16,
		Interval:  10 * time.Millisecond,
		TotalNum:  3,
		Clock:     fc,
	})

	done := make(chan Result, 1)
	go func() { done <- loop.Run(context.Background()) }()

	for i := 0; i < 2; i++ {
		require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond, "loop sleeps between frames")
		fc.Step(10 * time.Millisecond)
	}

	select {
	case res := <-done:
		assert.Equal(t, StopFrameLimit, res.Reason)
		assert.Equal(t, uint64(3), res.Frames)
		assert.Zero(t, res.Overruns)
		assert.Equal(t, 20*time.Millisecond, res.Elapsed)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not finish")
	}
}

// slowSource advances a fake clock while filling, simulating slow input.
type slowSource struct {
	clock *testingclock.FakeClock
	cost  time.Duration
}

func (s *slowSource) Fill(p []byte, _ uint64) (int, error) {
	s.clock.Step(s.cost)
	return len(p), nil
}

func (s *slowSource) Rewind() error { return nil }

func (s *slowSource) Close() error { return nil }

type recordObserver struct {
	nopObserver
	overruns []time.Duration
	rates    []float64
}

func (o *recordObserver) Overrun(d time.Duration) { o.overruns = append(o.overruns, d) }

func (o *recordObserver) Rate(fps float64) { o.rates = append(o.rates, fps) }

func TestLoopCountsOverruns(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Unix(1000, 0))
	obs := &recordObserver{}
	conn := newFakeConn(t, 16)
	res := New(conn, &slowSource{clock: fc, cost: 15 * time.Millisecond}, Options{
		FrameSize: 16,
		Interval:  10 * time.Millisecond,
		TotalNum:  3,
		Clock:     fc,
		Observer:  obs,
	}).Run(context.Background())

	assert.Equal(t, StopFrameLimit, res.Reason)
	assert.Equal(t, uint64(2), res.Overruns, "the last frame stops before pacing")
	assert.Equal(t, 5*time.Millisecond, res.WorstOverrun)
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}, obs.overruns)
}

func TestLoopReportsFPS(t *testing.T) {
	fc := testingclock.NewFakeClock(time.Unix(1000, 0))
	obs := &recordObserver{}
	conn := newFakeConn(t, 16)
	res := New(conn, &slowSource{clock: fc, cost: 40 * time.Millisecond}, Options{
		FrameSize: 16,
		TotalNum:  61,
		Clock:     fc,
		Observer:  obs,
	}).Run(context.Background())

	require.Equal(t, uint64(61), res.Frames)
	require.Len(t, obs.rates, 3)
	assert.Zero(t, obs.rates[0])
	assert.InDelta(t, 25.0, obs.rates[1], 1e-9)
	assert.InDelta(t, 25.0, obs.rates[2], 1e-9)
	assert.InDelta(t, 25.0, res.LastFPS, 1e-9)
}

func TestOptionsFrom(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	opts, err := OptionsFrom(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1920*1080*4, opts.FrameSize)
	assert.InDelta(t, 30.0, opts.TargetFPS, 1e-6)
	assert.Equal(t, uint64(300), opts.TotalNum)
	assert.False(t, opts.Continuous)

	cfg.Payload.Type = config.PayloadST30
	opts, err = OptionsFrom(cfg)
	require.NoError(t, err)
	assert.True(t, opts.Continuous)
	assert.Equal(t, time.Millisecond, opts.Interval)
	assert.Equal(t, 192, opts.FrameSize)
}

func TestStopReasonString(t *testing.T) {
	assert.Equal(t, "frame-limit", StopFrameLimit.String())
	assert.Equal(t, "StopReason(42)", StopReason(42).String())
}
