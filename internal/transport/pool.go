package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"firestige.xyz/mediatx/internal/core"
)

// Buffer is a frame-sized region leased from a Pool.
type Buffer struct {
	data   []byte
	n      int
	seq    uint32
	owner  *Pool
	leased bool
}

// Data returns the whole buffer regardless of the filled length.
func (b *Buffer) Data() []byte { return b.data }

// Bytes returns the filled part of the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

func (b *Buffer) Len() int { return b.n }

func (b *Buffer) Cap() int { return len(b.data) }

// SetLen sets the filled length.
func (b *Buffer) SetLen(n int) error {
	if n < 0 || n > len(b.data) {
		return fmt.Errorf("%w: length %d, capacity %d", core.ErrBufferTooSmall, n, len(b.data))
	}
	b.n = n
	return nil
}

// Seq is the transmission sequence number assigned on Submit.
func (b *Buffer) Seq() uint32 { return b.seq }

// Stats counts what a Pool did with submitted buffers.
type Stats struct {
	Frames  uint64
	Bytes   uint64
	Dropped uint64
}

// Pool implements Connection over a Writer. Submitted buffers are written in
// order by a single goroutine and return to the free list afterwards.
type Pool struct {
	w      Writer
	clock  clock.Clock
	linger time.Duration
	log    *logrus.Entry

	free  chan *Buffer
	queue chan *Buffer
	stop  chan struct{}
	done  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	seq    uint32

	errMu sync.Mutex
	err   error

	frames  atomic.Uint64
	bytes   atomic.Uint64
	dropped atomic.Uint64
}

// NewPool allocates opts.Buffers buffers of opts.FrameSize bytes and starts
// the writer goroutine.
func NewPool(w Writer, opts Options) *Pool {
	n := opts.Buffers
	if n < 1 {
		n = 1
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		w:      w,
		clock:  clk,
		linger: opts.Linger,
		log:    logrus.WithFields(logrus.Fields{"protocol": opts.Protocol, "session": opts.SessionID}),
		free:   make(chan *Buffer, n),
		queue:  make(chan *Buffer, n),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < n; i++ {
		p.free <- &Buffer{data: make([]byte, opts.FrameSize), owner: p}
	}
	go p.run()
	return p
}

func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Buffer, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := p.clock.NewTimer(timeout)
		defer t.Stop()
		expired = t.C()
	}
	select {
	case b := <-p.free:
		b.leased = true
		b.n = 0
		return b, nil
	case <-p.stop:
		return nil, core.ErrEndOfStream
	case <-expired:
		return nil, fmt.Errorf("%w: no buffer within %v", core.ErrEndOfStream, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pool) Submit(b *Buffer) error {
	if b == nil || b.owner != p || !b.leased {
		return core.ErrForeignBuffer
	}
	b.leased = false
	if err := p.latched(); err != nil {
		p.free <- b
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.free <- b
		return core.ErrConnectionClosed
	}
	b.seq = p.seq
	p.seq++
	// never blocks: the queue holds every buffer the pool owns
	p.queue <- b
	return nil
}

func (p *Pool) Release(b *Buffer) {
	if b == nil || b.owner != p || !b.leased {
		return
	}
	b.leased = false
	p.free <- b
}

func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return core.ErrConnectionClosed
	}
	p.closed = true
	close(p.queue)
	close(p.stop)
	p.mu.Unlock()

	if p.linger > 0 {
		t := p.clock.NewTimer(p.linger)
		select {
		case <-p.done:
		case <-t.C():
			p.log.WithField("linger", p.linger).Warn("linger expired, dropping queued frames")
		}
		t.Stop()
	}
	// aborts a write still running; the writer is closed only once run
	// has returned
	p.cancel()
	<-p.done
	err := p.w.Close()

	st := p.Stats()
	p.log.WithFields(logrus.Fields{
		"frames":  st.Frames,
		"bytes":   st.Bytes,
		"dropped": st.Dropped,
	}).Debug("connection destroyed")
	return err
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Frames:  p.frames.Load(),
		Bytes:   p.bytes.Load(),
		Dropped: p.dropped.Load(),
	}
}

// Err returns the latched write error, if any.
func (p *Pool) Err() error { return p.latched() }

func (p *Pool) run() {
	defer close(p.done)
	for b := range p.queue {
		if p.ctx.Err() != nil || p.latched() != nil {
			p.dropped.Add(1)
			p.free <- b
			continue
		}
		if err := p.w.WriteFrame(p.ctx, b.seq, b.Bytes()); err != nil {
			// an expired linger aborts the write; that is a drop, not a failure
			if p.ctx.Err() == nil {
				p.latch(err)
			}
			p.dropped.Add(1)
		} else {
			p.frames.Add(1)
			p.bytes.Add(uint64(b.n))
		}
		p.free <- b
	}
}

func (p *Pool) latch(err error) {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.err == nil {
		p.err = fmt.Errorf("transport write: %w", err)
		p.log.WithError(err).Error("frame transmission failed")
	}
}

func (p *Pool) latched() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}
