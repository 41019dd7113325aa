package core

// PayloadKind classifies a payload type into the variant of its
// configuration block.
type PayloadKind string

const (
	KindVideo     PayloadKind = "video"
	KindAudio     PayloadKind = "audio"
	KindAncillary PayloadKind = "ancillary"
)

// Continuous reports whether streams of this kind ignore the frame-count
// limit and run until cancelled or the input/transport ends.
func (k PayloadKind) Continuous() bool {
	return k == KindAudio
}

// SyntheticHeaderSize is the size of the synthetic frame header: a u32
// frame counter followed by an i64 seconds / i64 nanoseconds timestamp.
const SyntheticHeaderSize = 4 + 8 + 8
