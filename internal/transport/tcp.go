package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"firestige.xyz/mediatx/internal/config"
)

func init() {
	Register(config.ProtoTCP, dialTCP)
}

// TCPHeaderSize is the length of the frame header on a tcp stream:
//
//	u32 payload length, big-endian
//	u32 frame sequence, big-endian
const TCPHeaderSize = 8

const dialTimeout = 5 * time.Second

type tcpWriter struct {
	conn net.Conn
	hdr  [TCPHeaderSize]byte
}

func dialTCP(ctx context.Context, opts Options) (Writer, error) {
	d := net.Dialer{Timeout: dialTimeout}
	if opts.Local.IP != "" || opts.Local.Port != 0 {
		laddr, err := net.ResolveTCPAddr("tcp", opts.Local.HostPort())
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", opts.Local.HostPort(), err)
		}
		d.LocalAddr = laddr
	}
	conn, err := d.DialContext(ctx, "tcp", opts.Remote.HostPort())
	if err != nil {
		return nil, err
	}
	return &tcpWriter{conn: conn}, nil
}

func (w *tcpWriter) WriteFrame(ctx context.Context, seq uint32, frame []byte) error {
	stop := abortOnDone(ctx, w.conn)
	defer stop()

	binary.BigEndian.PutUint32(w.hdr[0:4], uint32(len(frame)))
	binary.BigEndian.PutUint32(w.hdr[4:8], seq)
	bufs := net.Buffers{w.hdr[:], frame}
	_, err := bufs.WriteTo(w.conn)
	return err
}

func (w *tcpWriter) Close() error {
	return w.conn.Close()
}
