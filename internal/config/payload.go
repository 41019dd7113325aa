package config

import (
	"fmt"
	"strings"
	"time"

	"firestige.xyz/mediatx/internal/core"
)

// parseEnum lowercases text and checks it against the known values of an
// enum. The empty string is accepted and left for validation to reject.
func parseEnum[T ~string](text []byte, known []T, what string) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(string(text))))
	if v == "" {
		return v, nil
	}
	for _, k := range known {
		if v == k {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown %s %q", what, string(text))
}

// ─── Payload type ───

// PayloadType selects the media payload carried by the connection.
type PayloadType string

const (
	PayloadST20 PayloadType = "st20" // uncompressed video
	PayloadST22 PayloadType = "st22" // compressed video
	PayloadST30 PayloadType = "st30" // audio
	PayloadST40 PayloadType = "st40" // ancillary data
	PayloadRTSP PayloadType = "rtsp" // video relayed from an RTSP source
)

var payloadTypes = []PayloadType{PayloadST20, PayloadST22, PayloadST30, PayloadST40, PayloadRTSP}

func (t *PayloadType) UnmarshalText(text []byte) (err error) {
	*t, err = parseEnum(text, payloadTypes, "payload type")
	return err
}

// Kind maps the payload type onto its configuration variant.
func (t PayloadType) Kind() core.PayloadKind {
	switch t {
	case PayloadST30:
		return core.KindAudio
	case PayloadST40:
		return core.KindAncillary
	default:
		return core.KindVideo
	}
}

// Codec is the ST 2110-22 compression codec.
type Codec string

const (
	CodecJPEGXS Codec = "jpegxs"
	CodecH264   Codec = "h264"
)

func (c *Codec) UnmarshalText(text []byte) (err error) {
	*c, err = parseEnum(text, []Codec{CodecJPEGXS, CodecH264}, "codec")
	return err
}

// ─── Video ───

// PixelFormat is a raw video sample layout.
type PixelFormat string

const (
	PixFmtNV12        PixelFormat = "nv12"
	PixFmtYUV422P     PixelFormat = "yuv422p"
	PixFmtYUV422P10LE PixelFormat = "yuv422p10le"
	PixFmtYUV444P10LE PixelFormat = "yuv444p10le"
	PixFmtRGB8        PixelFormat = "rgb8"
)

// bytes per pixel as a fraction
var pixelRatios = map[PixelFormat][2]int{
	PixFmtNV12:        {3, 2},
	PixFmtYUV422P:     {2, 1},
	PixFmtYUV422P10LE: {4, 1},
	PixFmtYUV444P10LE: {6, 1},
	PixFmtRGB8:        {3, 1},
}

func (f *PixelFormat) UnmarshalText(text []byte) (err error) {
	known := make([]PixelFormat, 0, len(pixelRatios))
	for k := range pixelRatios {
		known = append(known, k)
	}
	*f, err = parseEnum(text, known, "pixel format")
	return err
}

// FrameSize returns the size in bytes of one width x height picture.
func (f PixelFormat) FrameSize(width, height int) (int, error) {
	r, ok := pixelRatios[f]
	if !ok {
		return 0, fmt.Errorf("unknown pixel format %q", string(f))
	}
	return width * height * r[0] / r[1], nil
}

// VideoConfig holds the st20/st22/rtsp payload arguments.
type VideoConfig struct {
	Width  int         `mapstructure:"width" yaml:"width"`
	Height int         `mapstructure:"height" yaml:"height"`
	FPS    float64     `mapstructure:"fps" yaml:"fps"`
	PixFmt PixelFormat `mapstructure:"pix_fmt" yaml:"pix_fmt"`
}

func (v *VideoConfig) Kind() core.PayloadKind { return core.KindVideo }

func (v *VideoConfig) FrameSize() (int, error) {
	return v.PixFmt.FrameSize(v.Width, v.Height)
}

func (v *VideoConfig) Interval() time.Duration {
	return fpsInterval(v.FPS)
}

func (v *VideoConfig) ClockRate() uint32 { return videoClockRate }

func (v *VideoConfig) validate() error {
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("video resolution must be positive, got %dx%d", v.Width, v.Height)
	}
	if v.FPS <= 0 {
		return fmt.Errorf("video fps must be positive, got %v", v.FPS)
	}
	if v.PixFmt == "" {
		return fmt.Errorf("video pix_fmt is required")
	}
	return nil
}

// ─── Audio ───

// LevelType chooses frame-level or RTP-level transport of audio and
// ancillary payloads.
type LevelType string

const (
	LevelFrame LevelType = "frame"
	LevelRTP   LevelType = "rtp"
)

func (l *LevelType) UnmarshalText(text []byte) (err error) {
	*l, err = parseEnum(text, []LevelType{LevelFrame, LevelRTP}, "level type")
	return err
}

// AudioFormat is the PCM sample encoding.
type AudioFormat string

const (
	AudioPCM8  AudioFormat = "pcm8"
	AudioPCM16 AudioFormat = "pcm16"
	AudioPCM24 AudioFormat = "pcm24"
	AudioAM824 AudioFormat = "am824"
)

var sampleSizes = map[AudioFormat]int{
	AudioPCM8:  1,
	AudioPCM16: 2,
	AudioPCM24: 3,
	AudioAM824: 4,
}

func (f *AudioFormat) UnmarshalText(text []byte) (err error) {
	*f, err = parseEnum(text, []AudioFormat{AudioPCM8, AudioPCM16, AudioPCM24, AudioAM824}, "audio format")
	return err
}

// Sampling is the audio sampling rate.
type Sampling string

const (
	Sampling44K Sampling = "44k"
	Sampling48K Sampling = "48k"
	Sampling96K Sampling = "96k"
)

var samplingRates = map[Sampling]int{
	Sampling44K: 44100,
	Sampling48K: 48000,
	Sampling96K: 96000,
}

func (s *Sampling) UnmarshalText(text []byte) (err error) {
	*s, err = parseEnum(text, []Sampling{Sampling44K, Sampling48K, Sampling96K}, "audio sampling")
	return err
}

// Hz returns the sampling rate, or 0 when unknown.
func (s Sampling) Hz() int { return samplingRates[s] }

// PacketTime is the audio packet duration.
type PacketTime string

const (
	Ptime1ms    PacketTime = "1ms"
	Ptime125us  PacketTime = "125us"
	Ptime250us  PacketTime = "250us"
	Ptime333us  PacketTime = "333us"
	Ptime4ms    PacketTime = "4ms"
	Ptime80us   PacketTime = "80us"
	Ptime1_09ms PacketTime = "1.09ms"
	Ptime0_14ms PacketTime = "0.14ms"
	Ptime0_09ms PacketTime = "0.09ms"
)

// Samples per packet, per sampling rate. 96k doubles the 48k column and the
// fractional packet times only exist for 44.1k.
var packetSamples = map[Sampling]map[PacketTime]int{
	Sampling48K: {Ptime1ms: 48, Ptime125us: 6, Ptime250us: 12, Ptime333us: 16, Ptime4ms: 192, Ptime80us: 4},
	Sampling96K: {Ptime1ms: 96, Ptime125us: 12, Ptime250us: 24, Ptime333us: 32, Ptime4ms: 384, Ptime80us: 8},
	Sampling44K: {Ptime1_09ms: 48, Ptime0_14ms: 6, Ptime0_09ms: 4},
}

func (p *PacketTime) UnmarshalText(text []byte) (err error) {
	*p, err = parseEnum(text, []PacketTime{
		Ptime1ms, Ptime125us, Ptime250us, Ptime333us, Ptime4ms, Ptime80us,
		Ptime1_09ms, Ptime0_14ms, Ptime0_09ms,
	}, "audio ptime")
	return err
}

// AudioConfig holds the st30 payload arguments.
type AudioConfig struct {
	Type     LevelType   `mapstructure:"type" yaml:"type"`
	Format   AudioFormat `mapstructure:"format" yaml:"format"`
	Sampling Sampling    `mapstructure:"sampling" yaml:"sampling"`
	Ptime    PacketTime  `mapstructure:"ptime" yaml:"ptime"`
	Channels int         `mapstructure:"channels" yaml:"channels"`
}

func (a *AudioConfig) Kind() core.PayloadKind { return core.KindAudio }

// Samples returns the number of samples per channel in one packet.
func (a *AudioConfig) Samples() (int, error) {
	n, ok := packetSamples[a.Sampling][a.Ptime]
	if !ok {
		return 0, fmt.Errorf("audio ptime %q is not defined for sampling %q", a.Ptime, a.Sampling)
	}
	return n, nil
}

func (a *AudioConfig) FrameSize() (int, error) {
	n, err := a.Samples()
	if err != nil {
		return 0, err
	}
	size, ok := sampleSizes[a.Format]
	if !ok {
		return 0, fmt.Errorf("unknown audio format %q", a.Format)
	}
	return size * n * a.Channels, nil
}

// Interval is the exact packet duration, samples / rate.
func (a *AudioConfig) Interval() time.Duration {
	n, err := a.Samples()
	if err != nil || a.Sampling.Hz() == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(a.Sampling.Hz()))
}

func (a *AudioConfig) ClockRate() uint32 { return uint32(a.Sampling.Hz()) }

func (a *AudioConfig) validate() error {
	if a.Channels < 1 || a.Channels > 8 {
		return fmt.Errorf("audio channels must be within 1..8, got %d", a.Channels)
	}
	if a.Format == "" || a.Sampling == "" || a.Ptime == "" {
		return fmt.Errorf("audio format, sampling and ptime are required")
	}
	_, err := a.FrameSize()
	return err
}

// ─── Ancillary ───

// AncillaryConfig holds the st40 payload arguments. Closed captions are the
// only ancillary format, so it is implied.
type AncillaryConfig struct {
	Type      LevelType `mapstructure:"type" yaml:"type"`
	FPS       float64   `mapstructure:"fps" yaml:"fps"`
	FrameSize int       `mapstructure:"frame_size" yaml:"frame_size"`
}

func (a *AncillaryConfig) Kind() core.PayloadKind { return core.KindAncillary }

func (a *AncillaryConfig) Size() (int, error) {
	if a.FrameSize <= 0 {
		return 0, fmt.Errorf("ancillary frame_size must be positive, got %d", a.FrameSize)
	}
	return a.FrameSize, nil
}

func (a *AncillaryConfig) Interval() time.Duration { return fpsInterval(a.FPS) }

func (a *AncillaryConfig) ClockRate() uint32 { return videoClockRate }

func (a *AncillaryConfig) validate() error {
	if a.FPS <= 0 {
		return fmt.Errorf("ancillary fps must be positive, got %v", a.FPS)
	}
	_, err := a.Size()
	return err
}

// ─── Union ───

const videoClockRate = 90000

// Params is the payload variant selected by PayloadConfig.Type.
type Params interface {
	Kind() core.PayloadKind
	// Interval is the target spacing between two frames.
	Interval() time.Duration
	// ClockRate is the RTP media clock of the payload.
	ClockRate() uint32
	validate() error
}

// PayloadConfig is a tagged union over the video, audio and ancillary
// argument blocks. Only the block matching Type is used.
type PayloadConfig struct {
	Type      PayloadType     `mapstructure:"type" yaml:"type"`
	Codec     Codec           `mapstructure:"codec" yaml:"codec"`
	Video     VideoConfig     `mapstructure:"video" yaml:"video"`
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Ancillary AncillaryConfig `mapstructure:"ancillary" yaml:"ancillary"`
}

// Params returns the argument block selected by the payload type.
func (p *PayloadConfig) Params() Params {
	switch p.Type.Kind() {
	case core.KindAudio:
		return &p.Audio
	case core.KindAncillary:
		return &p.Ancillary
	default:
		return &p.Video
	}
}

// FrameSize returns the negotiated size of one frame in bytes.
func (p *PayloadConfig) FrameSize() (int, error) {
	switch params := p.Params().(type) {
	case *AudioConfig:
		return params.FrameSize()
	case *AncillaryConfig:
		return params.Size()
	case *VideoConfig:
		return params.FrameSize()
	}
	return 0, fmt.Errorf("unknown payload type %q", p.Type)
}

// Interval returns the target frame spacing of the selected variant.
func (p *PayloadConfig) Interval() time.Duration {
	return p.Params().Interval()
}

func fpsInterval(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
