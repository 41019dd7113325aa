package transport

import (
	"math/rand"

	"github.com/pion/rtp"
)

const rtpHeaderSize = 12

// packetizer splits frames into RTP packets of at most mtu bytes. All
// packets of a frame share its timestamp and the last one carries the
// marker bit.
type packetizer struct {
	header     rtp.Header
	tsStep     uint32
	maxPayload int
	buf        []byte
}

func newPacketizer(opts Options) *packetizer {
	mtu := opts.MTU
	if mtu <= rtpHeaderSize {
		mtu = 1400
	}
	step := uint32(0)
	if opts.ClockRate > 0 && opts.FrameInterval > 0 {
		step = uint32((uint64(opts.ClockRate)*uint64(opts.FrameInterval) + 5e8) / 1e9)
	}
	return &packetizer{
		header: rtp.Header{
			Version:        2,
			PayloadType:    opts.PayloadType,
			SequenceNumber: uint16(rand.Uint32()),
			Timestamp:      rand.Uint32(),
			SSRC:           rand.Uint32(),
		},
		tsStep:     step,
		maxPayload: mtu - rtpHeaderSize,
		buf:        make([]byte, mtu),
	}
}

// each marshals the packets of one frame and hands them to fn in order. The
// slice passed to fn is reused for the next packet.
func (p *packetizer) each(frame []byte, fn func(pkt []byte) error) error {
	off := 0
	for {
		end := min(off+p.maxPayload, len(frame))
		last := end == len(frame)
		pkt := rtp.Packet{Header: p.header, Payload: frame[off:end]}
		pkt.Marker = last

		n, err := pkt.MarshalTo(p.buf)
		if err != nil {
			return err
		}
		if err := fn(p.buf[:n]); err != nil {
			return err
		}
		p.header.SequenceNumber++
		if last {
			break
		}
		off = end
	}
	p.header.Timestamp += p.tsStep
	return nil
}
