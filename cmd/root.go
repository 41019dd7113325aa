// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is stamped at build time.
var Version = "0.1.0"

// ExitError ends the process with Code after the command already reported
// the problem itself.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mediatx",
		Short: "mediatx - frame-paced media sender",
		Long: `mediatx transmits raw video, audio and ancillary frames to a media proxy
at the frame rate of the payload.

Frames come from a raw media file, optionally replayed, or from a synthetic
counter pattern when no file is given. Transports: udp (RTP), tcp, ws, grpc,
pcap (capture file) and discard.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file path (YAML, root key mediatx)")
	root.PersistentFlags().String("log-level", "info", "log level (trace/debug/info/warn/error)")

	root.AddCommand(newSendCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// Execute runs the CLI. This is called by main.main().
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// addStreamFlags registers the flags of the sample sender. -h is height, so
// help keeps only its long form.
func addStreamFlags(f *pflag.FlagSet, name string) {
	f.Bool("help", false, "help for "+name)

	// payload
	f.IntP("width", "w", 1920, "video width")
	f.IntP("height", "h", 1080, "video height")
	f.Float64P("fps", "f", 30, "video (and ancillary) frames per second")
	f.StringP("pix_fmt", "x", "yuv422p10le", "pixel format (nv12/yuv422p/yuv422p10le/yuv444p10le/rgb8)")
	f.StringP("type", "t", "st20", "payload type (st20/st22/st30/st40/rtsp)")
	f.String("codec", "jpegxs", "st22 codec (jpegxs/h264)")
	f.StringP("audio_type", "a", "frame", "audio level (frame/rtp)")
	f.StringP("audio_format", "j", "pcm16", "audio format (pcm8/pcm16/pcm24/am824)")
	f.StringP("audio_sampling", "g", "48k", "audio sampling (44k/48k/96k)")
	f.StringP("audio_ptime", "e", "1ms", "audio packet time")
	f.IntP("audio_channels", "c", 2, "audio channels")
	f.StringP("anc_type", "q", "frame", "ancillary level (frame/rtp)")

	// transport
	f.StringP("protocol", "o", "auto", "transport protocol (auto/udp/tcp/ws/grpc/pcap/discard)")
	f.StringP("send_ip", "s", "127.0.0.1", "remote (proxy) address")
	f.IntP("send_port", "p", 9001, "remote (proxy) port")
	f.StringP("rcv_ip", "r", "", "local bind address")
	f.IntP("rcv_port", "i", 0, "local bind port")
	f.StringP("socketpath", "k", "/run/mcm/mcm_rx_memif.sock", "memif socket path")
	f.BoolP("master", "m", true, "memif master role")
	f.IntP("interfaceid", "d", 0, "memif interface id")
	f.String("path", "", "pcap output file, grpc method or ws path")
	f.Duration("linger", 2*time.Second, "drain grace before the connection is destroyed")

	// input
	f.StringP("file", "b", "", "raw input file; synthetic frames when empty")
	f.Uint64P("number", "n", 300, "frames to send (video and ancillary), 0 is unbounded")
	f.BoolP("loop", "l", false, "replay the input file when it ends")
}
