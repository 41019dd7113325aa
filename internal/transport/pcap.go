package transport

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"k8s.io/utils/clock"

	"firestige.xyz/mediatx/internal/config"
)

func init() {
	Register(config.ProtoPcap, openPcap)
}

const pcapSnapLen = 65536

var (
	pcapSrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	pcapDstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// pcapWriter records the RTP packets the udp transport would send, wrapped
// in Ethernet/IPv4/UDP headers, into a capture file.
type pcapWriter struct {
	f     *os.File
	w     *pcapgo.Writer
	rtp   *packetizer
	clock clock.PassiveClock

	eth   layers.Ethernet
	ip    layers.IPv4
	udp   layers.UDP
	sbuf  gopacket.SerializeBuffer
	sopts gopacket.SerializeOptions
}

func openPcap(_ context.Context, opts Options) (Writer, error) {
	src := parseIPv4(opts.Local.IP, net.IPv4(127, 0, 0, 1))
	dst := parseIPv4(opts.Remote.IP, net.IPv4(127, 0, 0, 1))
	srcPort := opts.Local.Port
	if srcPort == 0 {
		srcPort = opts.Remote.Port
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 64
	}

	f, err := os.Create(opts.Path)
	if err != nil {
		return nil, err
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(pcapSnapLen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}

	clk := clock.PassiveClock(opts.Clock)
	if clk == nil {
		clk = clock.RealClock{}
	}
	pw := &pcapWriter{
		f:     f,
		w:     w,
		rtp:   newPacketizer(opts),
		clock: clk,
		eth: layers.Ethernet{
			SrcMAC:       pcapSrcMAC,
			DstMAC:       destinationMAC(dst),
			EthernetType: layers.EthernetTypeIPv4,
		},
		ip: layers.IPv4{
			Version:  4,
			TTL:      uint8(ttl),
			Protocol: layers.IPProtocolUDP,
			SrcIP:    src,
			DstIP:    dst,
		},
		udp: layers.UDP{
			SrcPort: layers.UDPPort(srcPort),
			DstPort: layers.UDPPort(opts.Remote.Port),
		},
		sbuf:  gopacket.NewSerializeBuffer(),
		sopts: gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true},
	}
	if err := pw.udp.SetNetworkLayerForChecksum(&pw.ip); err != nil {
		f.Close()
		return nil, err
	}
	return pw, nil
}

func (w *pcapWriter) WriteFrame(_ context.Context, _ uint32, frame []byte) error {
	ts := w.clock.Now()
	return w.rtp.each(frame, func(pkt []byte) error {
		if err := gopacket.SerializeLayers(w.sbuf, w.sopts, &w.eth, &w.ip, &w.udp, gopacket.Payload(pkt)); err != nil {
			return err
		}
		w.ip.Id++
		data := w.sbuf.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
		return w.w.WritePacket(ci, data)
	})
}

func (w *pcapWriter) Close() error {
	return w.f.Close()
}

func parseIPv4(s string, fallback net.IP) net.IP {
	if ip := net.ParseIP(s).To4(); ip != nil {
		return ip
	}
	return fallback.To4()
}

// destinationMAC maps multicast groups onto 01:00:5e plus the low 23 bits.
func destinationMAC(ip net.IP) net.HardwareAddr {
	if !ip.IsMulticast() {
		return pcapDstMAC
	}
	return net.HardwareAddr{0x01, 0x00, 0x5e, ip[1] & 0x7f, ip[2], ip[3]}
}
