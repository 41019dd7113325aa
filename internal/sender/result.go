package sender

import (
	"fmt"
	"time"
)

// StopReason says why the loop ended.
type StopReason int

const stopNone StopReason = -1

const (
	StopCancelled    StopReason = iota // context cancelled, usually a signal
	StopEndOfStream                    // acquire failed; the transport has no more room
	StopExhausted                      // input ended and replay is off
	StopFrameLimit                     // total_num frames submitted
	StopSubmitFailed                   // the connection rejected a buffer
	StopReplayFailed                   // the input could not be replayed
	StopSourceFailed                   // the input failed for another reason
	StopBufferFailed                   // a leased buffer cannot hold a frame
)

var stopReasonNames = map[StopReason]string{
	StopCancelled:    "cancelled",
	StopEndOfStream:  "end-of-stream",
	StopExhausted:    "exhausted",
	StopFrameLimit:   "frame-limit",
	StopSubmitFailed: "submit-failed",
	StopReplayFailed: "replay-failed",
	StopSourceFailed: "source-failed",
	StopBufferFailed: "buffer-failed",
}

func (r StopReason) String() string {
	if s, ok := stopReasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("StopReason(%d)", int(r))
}

// Fatal reports whether the reason is a loop-fatal error rather than a
// normal stop.
func (r StopReason) Fatal() bool {
	switch r {
	case StopSubmitFailed, StopReplayFailed, StopSourceFailed, StopBufferFailed:
		return true
	}
	return false
}

// Result summarizes one run of the loop.
type Result struct {
	Reason       StopReason
	Frames       uint64
	Bytes        uint64
	Replays      uint64
	LastFPS      float64
	Overruns     uint64
	WorstOverrun time.Duration
	Elapsed      time.Duration
	// Err is set for fatal reasons and carries the transport error for
	// end-of-stream.
	Err error
}
