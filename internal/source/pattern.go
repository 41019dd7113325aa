package source

import (
	"encoding/binary"

	"k8s.io/utils/clock"

	"firestige.xyz/mediatx/internal/core"
)

// Pattern writes a little-endian frame counter and the wall clock time at the
// head of each frame and leaves the rest of the buffer untouched:
//
//	offset 0  u32 frame counter
//	offset 4  i64 seconds
//	offset 12 i64 nanoseconds
//
// Buffers shorter than the header receive a truncated header.
type Pattern struct {
	clock clock.PassiveClock
}

func NewPattern(clk clock.PassiveClock) *Pattern {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Pattern{clock: clk}
}

func (s *Pattern) Fill(p []byte, frame uint64) (int, error) {
	var hdr [core.SyntheticHeaderSize]byte
	now := s.clock.Now()
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(frame))
	binary.LittleEndian.PutUint64(hdr[4:12], uint64(now.Unix()))
	binary.LittleEndian.PutUint64(hdr[12:20], uint64(now.Nanosecond()))
	copy(p, hdr[:])
	return len(p), nil
}

func (s *Pattern) Rewind() error { return nil }

func (s *Pattern) Close() error { return nil }
