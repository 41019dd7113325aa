package transport

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	"firestige.xyz/mediatx/internal/config"
)

func init() {
	Register(config.ProtoUDP, dialUDP)
}

// udpWriter sends each frame as a burst of RTP packets.
type udpWriter struct {
	conn *net.UDPConn
	rtp  *packetizer
}

func dialUDP(_ context.Context, opts Options) (Writer, error) {
	raddr, err := net.ResolveUDPAddr("udp4", opts.Remote.HostPort())
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", opts.Remote.HostPort(), err)
	}
	var laddr *net.UDPAddr
	if opts.Local.IP != "" || opts.Local.Port != 0 {
		if laddr, err = net.ResolveUDPAddr("udp4", opts.Local.HostPort()); err != nil {
			return nil, fmt.Errorf("resolve %q: %w", opts.Local.HostPort(), err)
		}
	}
	conn, err := net.DialUDP("udp4", laddr, raddr)
	if err != nil {
		return nil, err
	}

	if opts.TTL > 0 {
		if raddr.IP.IsMulticast() {
			pc := ipv4.NewPacketConn(conn)
			if err := pc.SetMulticastTTL(opts.TTL); err != nil {
				conn.Close()
				return nil, fmt.Errorf("set multicast ttl: %w", err)
			}
			// receivers on the same host, mostly tests
			if err := pc.SetMulticastLoopback(true); err != nil {
				conn.Close()
				return nil, fmt.Errorf("set multicast loopback: %w", err)
			}
		} else if err := ipv4.NewConn(conn).SetTTL(opts.TTL); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set ttl: %w", err)
		}
	}

	return &udpWriter{conn: conn, rtp: newPacketizer(opts)}, nil
}

func (w *udpWriter) WriteFrame(ctx context.Context, _ uint32, frame []byte) error {
	stop := abortOnDone(ctx, w.conn)
	defer stop()
	return w.rtp.each(frame, func(pkt []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := w.conn.Write(pkt)
		return err
	})
}

func (w *udpWriter) Close() error {
	return w.conn.Close()
}
