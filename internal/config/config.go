// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"firestige.xyz/mediatx/internal/core"
)

// Config is the top-level configuration of one send run.
// Maps to the `mediatx:` root key in YAML.
type Config struct {
	Payload   PayloadConfig   `mapstructure:"payload" yaml:"payload"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Input     InputConfig     `mapstructure:"input" yaml:"input"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// ─── Transport ───

// Protocol names a transport implementation.
type Protocol string

const (
	ProtoAuto    Protocol = "auto"
	ProtoUDP     Protocol = "udp"
	ProtoTCP     Protocol = "tcp"
	ProtoWS      Protocol = "ws"
	ProtoGRPC    Protocol = "grpc"
	ProtoPcap    Protocol = "pcap"
	ProtoDiscard Protocol = "discard"
	ProtoMemif   Protocol = "memif"
	ProtoHTTP    Protocol = "http"
)

var protocols = []Protocol{
	ProtoAuto, ProtoUDP, ProtoTCP, ProtoWS, ProtoGRPC, ProtoPcap, ProtoDiscard, ProtoMemif, ProtoHTTP,
}

func (p *Protocol) UnmarshalText(text []byte) (err error) {
	*p, err = parseEnum(text, protocols, "protocol")
	return err
}

// Networked reports whether the protocol needs a remote endpoint.
func (p Protocol) Networked() bool {
	switch p {
	case ProtoPcap, ProtoDiscard, ProtoMemif:
		return false
	}
	return true
}

// TransportConfig selects and tunes the connection to the media proxy.
type TransportConfig struct {
	Protocol       Protocol      `mapstructure:"protocol" yaml:"protocol"`
	Remote         AddrConfig    `mapstructure:"remote" yaml:"remote"`
	Local          AddrConfig    `mapstructure:"local" yaml:"local"`
	Memif          MemifConfig   `mapstructure:"memif" yaml:"memif"`
	Path           string        `mapstructure:"path" yaml:"path"` // ws URL path, grpc method or pcap file
	MTU            int           `mapstructure:"mtu" yaml:"mtu"`
	TTL            int           `mapstructure:"ttl" yaml:"ttl"`
	Buffers        int           `mapstructure:"buffers" yaml:"buffers"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"` // 0 = block
	Linger         time.Duration `mapstructure:"linger" yaml:"linger"`
}

// MaxMTU is the largest UDP payload an IPv4 datagram can carry: 65535 minus
// the 20-byte IPv4 and 8-byte UDP headers.
const MaxMTU = 65535 - 20 - 8

// AddrConfig is an IP and port pair.
type AddrConfig struct {
	IP   string `mapstructure:"ip" yaml:"ip"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// HostPort joins the pair into a dialable address.
func (a AddrConfig) HostPort() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
}

// MemifConfig carries the shared-memory interface arguments.
type MemifConfig struct {
	SocketPath  string `mapstructure:"socket_path" yaml:"socket_path"`
	InterfaceID int    `mapstructure:"interface_id" yaml:"interface_id"`
	Master      bool   `mapstructure:"master" yaml:"master"`
}

// ─── Input ───

// InputConfig selects the frame source.
type InputConfig struct {
	File     string `mapstructure:"file" yaml:"file"` // empty = synthetic pattern
	Loop     bool   `mapstructure:"loop" yaml:"loop"`
	TotalNum uint64 `mapstructure:"total_num" yaml:"total_num"` // 0 = unbounded
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`   // trace / debug / info / warn / error
	Format  string           `mapstructure:"format" yaml:"format"` // json / text / pattern
	Pattern string           `mapstructure:"pattern" yaml:"pattern"`
	Outputs LogOutputsConfig `mapstructure:"outputs" yaml:"outputs"`
}

// LogOutputsConfig contains log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

const rootKey = "mediatx"

// configRoot is the top-level wrapper matching the YAML structure `mediatx: ...`.
type configRoot struct {
	MediaTX Config `mapstructure:"mediatx" yaml:"mediatx"`
}

// Root wraps cfg under the root key for dumping.
func Root(cfg *Config) any {
	return configRoot{MediaTX: *cfg}
}

// flagKeys maps command-line flag names onto config keys. A flag may feed
// more than one key.
var flagKeys = map[string][]string{
	"width":          {"payload.video.width"},
	"height":         {"payload.video.height"},
	"fps":            {"payload.video.fps", "payload.ancillary.fps"},
	"pix_fmt":        {"payload.video.pix_fmt"},
	"type":           {"payload.type"},
	"codec":          {"payload.codec"},
	"protocol":       {"transport.protocol"},
	"send_ip":        {"transport.remote.ip"},
	"send_port":      {"transport.remote.port"},
	"rcv_ip":         {"transport.local.ip"},
	"rcv_port":       {"transport.local.port"},
	"socketpath":     {"transport.memif.socket_path"},
	"master":         {"transport.memif.master"},
	"interfaceid":    {"transport.memif.interface_id"},
	"path":           {"transport.path"},
	"linger":         {"transport.linger"},
	"file":           {"input.file"},
	"number":         {"input.total_num"},
	"loop":           {"input.loop"},
	"audio_type":     {"payload.audio.type"},
	"audio_format":   {"payload.audio.format"},
	"audio_sampling": {"payload.audio.sampling"},
	"audio_ptime":    {"payload.audio.ptime"},
	"audio_channels": {"payload.audio.channels"},
	"anc_type":       {"payload.ancillary.type"},
	"log-level":      {"log.level"},
}

// Load builds the configuration from an optional YAML file, MEDIATX_*
// environment variables and command-line flags, in increasing precedence.
// flags may be nil. Only flags changed on the command line override.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "mediatx.log.level" → env "MEDIATX_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var root configRoot
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(&root, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", core.ErrConfigInvalid, err)
	}
	cfg := root.MediaTX

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, keys := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		for _, key := range keys {
			if err := v.BindPFlag(rootKey+"."+key, f); err != nil {
				return fmt.Errorf("failed to bind flag %q: %w", name, err)
			}
		}
	}
	return nil
}

// setDefaults sets default values for configuration.
// All keys use the "mediatx." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	d := func(key string, value any) { v.SetDefault(rootKey+"."+key, value) }

	// Payload defaults
	d("payload.type", string(PayloadST20))
	d("payload.codec", string(CodecJPEGXS))
	d("payload.video.width", 1920)
	d("payload.video.height", 1080)
	d("payload.video.fps", 30.0)
	d("payload.video.pix_fmt", string(PixFmtYUV422P10LE))
	d("payload.audio.type", string(LevelFrame))
	d("payload.audio.format", string(AudioPCM16))
	d("payload.audio.sampling", string(Sampling48K))
	d("payload.audio.ptime", string(Ptime1ms))
	d("payload.audio.channels", 2)
	d("payload.ancillary.type", string(LevelFrame))
	d("payload.ancillary.fps", 0.0)
	d("payload.ancillary.frame_size", 4096)

	// Transport defaults
	d("transport.protocol", string(ProtoAuto))
	d("transport.remote.ip", "127.0.0.1")
	d("transport.remote.port", 9001)
	d("transport.local.ip", "")
	d("transport.local.port", 0)
	d("transport.memif.socket_path", "/run/mcm/mcm_rx_memif.sock")
	d("transport.memif.interface_id", 0)
	d("transport.memif.master", true)
	d("transport.path", "")
	d("transport.mtu", 1400)
	d("transport.ttl", 16)
	d("transport.buffers", 4)
	d("transport.acquire_timeout", "0s")
	d("transport.linger", "2s")

	// Input defaults
	d("input.file", "")
	d("input.loop", false)
	d("input.total_num", 300)

	// Log defaults
	d("log.level", "info")
	d("log.format", "text")
	d("log.pattern", "%time [%level] %caller: %msg %field")
	d("log.outputs.file.enabled", false)
	d("log.outputs.file.path", "/var/log/mediatx/mediatx.log")
	d("log.outputs.file.rotation.max_size_mb", 100)
	d("log.outputs.file.rotation.max_age_days", 30)
	d("log.outputs.file.rotation.max_backups", 5)
	d("log.outputs.file.rotation.compress", true)

	// Metrics defaults
	d("metrics.enabled", false)
	d("metrics.listen", ":9102")
	d("metrics.path", "/metrics")
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *Config) ValidateAndApplyDefaults() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
	}

	// ── Log ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text", "pattern":
	default:
		return invalid("invalid log format: %s (must be json/text/pattern)", cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return invalid("log.outputs.file.path is required when file output is enabled")
	}

	// ── Payload ──
	p := &cfg.Payload
	if p.Type == "" {
		return invalid("payload.type is required")
	}
	if p.Type == PayloadST22 && p.Codec == "" {
		p.Codec = CodecJPEGXS
	}
	if p.Ancillary.FPS == 0 {
		p.Ancillary.FPS = p.Video.FPS
	}
	if err := p.Params().validate(); err != nil {
		return invalid("%v", err)
	}
	size, err := p.FrameSize()
	if err != nil {
		return invalid("%v", err)
	}
	if size <= 0 {
		return invalid("frame size must be positive, got %d", size)
	}

	// ── Transport ──
	t := &cfg.Transport
	if t.Protocol == "" {
		t.Protocol = ProtoAuto
	}
	if t.Protocol.Networked() && t.Protocol != ProtoHTTP {
		if t.Remote.IP == "" {
			return invalid("transport.remote.ip is required for protocol %s", t.Protocol)
		}
		if t.Remote.Port <= 0 {
			return invalid("transport.remote.port is required for protocol %s", t.Protocol)
		}
	}
	for _, port := range []int{t.Remote.Port, t.Local.Port} {
		if port < 0 || port > 65535 {
			return invalid("port out of range: %d", port)
		}
	}
	if t.Protocol == ProtoPcap && t.Path == "" {
		return invalid("transport.path is required for protocol pcap")
	}
	if t.Buffers < 1 {
		return invalid("transport.buffers must be at least 1, got %d", t.Buffers)
	}
	if t.MTU < 64 || t.MTU > MaxMTU {
		return invalid("transport.mtu must be within 64..%d, got %d", MaxMTU, t.MTU)
	}
	if t.TTL < 0 || t.TTL > 255 {
		return invalid("transport.ttl out of range: %d", t.TTL)
	}
	if t.AcquireTimeout < 0 || t.Linger < 0 {
		return invalid("transport timeouts must not be negative")
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return invalid("metrics.listen is required when metrics are enabled")
		}
		if cfg.Metrics.Path == "" {
			cfg.Metrics.Path = "/metrics"
		}
	}

	return nil
}
