package ccp

import (
	"errors"
	"fmt"
)

// recoveredError turns a recover() value into an error, for the handful of
// call sites that recover from a user handler's panic and report it the
// same way a returned error would be reported.
func recoveredError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

// Transport-level errors, raised by the frame codec and the connection worker.
var (
	// ErrConnectionClosed means the peer closed the socket cleanly at a
	// frame boundary: no partial frame was in flight.
	ErrConnectionClosed = errors.New("ccp: connection closed")

	// ErrAborted means the connection ended abnormally: mid-frame, or
	// due to an underlying network error.
	ErrAborted = errors.New("ccp: connection aborted")

	// ErrFrameTooLarge means a payload exceeded MaxPayloadSize.
	ErrFrameTooLarge = errors.New("ccp: frame payload too large")

	// ErrProtocolViolation means a peer sent a frame that's invalid for
	// the session's current state (an unexpected code, a malformed
	// COMM_START plugin name, or a frame where none is permitted).
	ErrProtocolViolation = errors.New("ccp: protocol violation")
)

// Registry and session-state errors.
var (
	// ErrAlreadyRegistered means a plugin name is already bound in the registry.
	ErrAlreadyRegistered = errors.New("ccp: plugin name already registered")

	// ErrInvalidState means a SessionHandle or Transmitter method was
	// called while the session wasn't in a mode that permits it.
	ErrInvalidState = errors.New("ccp: invalid session state for this operation")

	// ErrAlreadyStarted means Transmitter.Start was called more than once.
	ErrAlreadyStarted = errors.New("ccp: transmitter already started")
)
