// Package transport connects the sender to a media proxy. A Connection leases
// frame-sized buffers, queues submitted buffers to a protocol Writer running
// on its own goroutine and hands them back once transmitted.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"firestige.xyz/mediatx/internal/config"
	"firestige.xyz/mediatx/internal/core"
)

// Connection is the buffer-lease contract the pacing loop drives.
type Connection interface {
	// Acquire leases a free buffer. timeout 0 waits until a buffer frees up
	// or ctx ends; an expired timeout or a closed connection is
	// core.ErrEndOfStream.
	Acquire(ctx context.Context, timeout time.Duration) (*Buffer, error)
	// Submit queues a leased buffer for transmission. Ownership passes to
	// the connection whether or not an error is returned. A failed earlier
	// transmission is reported here.
	Submit(b *Buffer) error
	// Release returns a leased buffer without transmitting it.
	Release(b *Buffer)
	// Close drains queued buffers for up to the linger period and destroys
	// the connection. A second Close returns core.ErrConnectionClosed.
	Close() error
}

// Writer transmits whole frames over one protocol. WriteFrame must return
// promptly once ctx is done. Close is never called while a WriteFrame is
// running.
type Writer interface {
	WriteFrame(ctx context.Context, seq uint32, frame []byte) error
	Close() error
}

// Factory builds a Writer for a protocol.
type Factory func(ctx context.Context, opts Options) (Writer, error)

// Options carries everything a Writer and its pool need to know.
type Options struct {
	Protocol config.Protocol
	Remote   config.AddrConfig
	Local    config.AddrConfig
	Path     string
	MTU      int
	TTL      int
	Buffers  int
	Linger   time.Duration

	FrameSize     int
	FrameInterval time.Duration
	ClockRate     uint32
	PayloadType   uint8

	SessionID string
	Clock     clock.Clock
}

// RTP dynamic payload types per media kind.
var payloadTypes = map[core.PayloadKind]uint8{
	core.KindVideo:     96,
	core.KindAudio:     97,
	core.KindAncillary: 100,
}

// NewOptions derives transport options from a validated configuration.
func NewOptions(cfg *config.Config, sessionID string) (Options, error) {
	size, err := cfg.Payload.FrameSize()
	if err != nil {
		return Options{}, err
	}
	params := cfg.Payload.Params()
	t := cfg.Transport
	return Options{
		Protocol:      t.Protocol,
		Remote:        t.Remote,
		Local:         t.Local,
		Path:          t.Path,
		MTU:           t.MTU,
		TTL:           t.TTL,
		Buffers:       t.Buffers,
		Linger:        t.Linger,
		FrameSize:     size,
		FrameInterval: params.Interval(),
		ClockRate:     params.ClockRate(),
		PayloadType:   payloadTypes[params.Kind()],
		SessionID:     sessionID,
	}, nil
}

var (
	registryMu sync.RWMutex
	registry   = make(map[config.Protocol]Factory)
)

// Register makes a Writer factory available to Dial.
func Register(proto config.Protocol, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[proto] = f
}

func lookup(proto config.Protocol) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[proto]
	return f, ok
}

// Dial opens the writer for opts.Protocol and wraps it in a buffer pool.
// auto resolves to udp.
func Dial(ctx context.Context, opts Options) (*Pool, error) {
	proto := opts.Protocol
	if proto == "" || proto == config.ProtoAuto {
		proto = config.ProtoUDP
	}
	f, ok := lookup(proto)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedProtocol, proto)
	}
	if opts.FrameSize <= 0 {
		return nil, fmt.Errorf("transport: frame size must be positive, got %d", opts.FrameSize)
	}
	opts.Protocol = proto
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}

	w, err := f(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("transport: %s connect to %s: %w", proto, endpoint(opts), err)
	}
	return NewPool(w, opts), nil
}

// abortOnDone expires the write deadline of conn once ctx is done, failing
// a blocked write. Call the returned stop when the write is over.
func abortOnDone(ctx context.Context, conn interface{ SetWriteDeadline(time.Time) error }) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = conn.SetWriteDeadline(time.Unix(1, 0))
	})
}

func endpoint(opts Options) string {
	if opts.Protocol.Networked() {
		return opts.Remote.HostPort()
	}
	return opts.Path
}
