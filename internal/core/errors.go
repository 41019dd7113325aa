// Package core defines sentinel errors and shared media types.
package core

import "errors"

// Sentinel errors. Callers match them with errors.Is; wrapping adds context.
var (
	// Frame source errors
	ErrExhausted       = errors.New("mediatx: input exhausted")
	ErrReplayExhausted = errors.New("mediatx: input exhausted again after replay")
	ErrBufferTooSmall  = errors.New("mediatx: buffer capacity below frame size")

	// Transport errors
	ErrEndOfStream         = errors.New("mediatx: transport end of stream")
	ErrConnectionClosed    = errors.New("mediatx: connection closed")
	ErrUnsupportedProtocol = errors.New("mediatx: unsupported protocol")
	ErrForeignBuffer       = errors.New("mediatx: buffer not leased from this connection")

	// Lifecycle errors
	ErrSessionClosed = errors.New("mediatx: session closed")

	// Configuration errors
	ErrConfigInvalid = errors.New("mediatx: invalid configuration")
)
