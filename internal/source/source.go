// Package source produces frame payloads, either from a raw media file or
// from a synthetic counter pattern.
package source

import (
	"k8s.io/utils/clock"

	"firestige.xyz/mediatx/internal/config"
)

// Source fills leased transport buffers with frame payload.
type Source interface {
	// Fill writes the payload of frame into p and returns the filled length.
	// A file source returns core.ErrExhausted when fewer than len(p) bytes
	// remain.
	Fill(p []byte, frame uint64) (int, error)
	// Rewind restarts the source from its first frame.
	Rewind() error
	Close() error
}

// Open returns a FileSource when cfg names a file and a Pattern otherwise.
// clk stamps synthetic frames; nil means the real clock.
func Open(cfg config.InputConfig, clk clock.PassiveClock) (Source, error) {
	if cfg.File != "" {
		return OpenFile(cfg.File)
	}
	return NewPattern(clk), nil
}
