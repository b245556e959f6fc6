package whatsapp

import (
	"errors"
	"fmt"
)

var (
	// ErrPairingTimeout means the handshake did not produce a pairing code
	// within the bounded wait. Retryable by the caller.
	ErrPairingTimeout = errors.New("pairing timed out before a code was issued")

	// ErrSessionNotReady means an operation requiring a live, authenticated
	// session was invoked with no such session present.
	ErrSessionNotReady = errors.New("no active session")

	// ErrNothingToRestore means restore was requested for an admin whose last
	// observed state was not a connected session.
	ErrNothingToRestore = errors.New("no previous session to restore")
)

// ClientError wraps a failure bubbling up from the underlying messaging client
type ClientError struct {
	AdminID string
	Op      string
	Err     error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("whatsapp client %s failed for admin %s: %v", e.Op, e.AdminID, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}
