package whatsapp

import "whatsapp-connector/internal/models"

// State is the lifecycle state of one administrator's session
type State int

const (
	StateUninitialized State = iota
	StateWaitingQR
	StateConnecting
	StateConnected
	StateAuthFailed
	StateDisconnected
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateWaitingQR:
		return "waiting_qr"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthFailed:
		return "auth_failed"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Status maps the in-memory state onto the persisted status enum
func (s State) Status() models.ConnectionStatus {
	switch s {
	case StateWaitingQR:
		return models.StatusWaitingQR
	case StateConnected:
		return models.StatusConnected
	case StateAuthFailed:
		return models.StatusAuthFailed
	case StateDisconnected:
		return models.StatusDisconnected
	case StateConnecting:
		return models.StatusConnecting
	default:
		return models.StatusNotInitialized
	}
}

// EventType identifies a lifecycle event from the underlying client
type EventType int

const (
	EventPairingCode EventType = iota
	EventReady
	EventAuthenticated
	EventAuthFailed
	EventDisconnected
)

// String returns the event name
func (e EventType) String() string {
	switch e {
	case EventPairingCode:
		return "pairing_code"
	case EventReady:
		return "ready"
	case EventAuthenticated:
		return "authenticated"
	case EventAuthFailed:
		return "auth_failed"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ClientEvent is a lifecycle event emitted by the underlying client
type ClientEvent struct {
	Type EventType

	// Code is set on EventPairingCode
	Code string

	// Phone is set on EventReady
	Phone string

	// Reason carries auth-failure or disconnect detail
	Reason string
}

// apply returns the state following evt. ok is false when the event causes no
// transition from s; callers must perform store and registry writes only for
// accepted transitions.
func apply(s State, evt EventType) (next State, ok bool) {
	switch evt {
	case EventPairingCode:
		// Codes are reissued while the handshake is pending.
		switch s {
		case StateUninitialized, StateConnecting, StateWaitingQR:
			return StateWaitingQR, true
		}
	case EventReady:
		if s != StateConnected {
			return StateConnected, true
		}
	case EventAuthFailed:
		if s != StateDisconnected && s != StateAuthFailed {
			return StateAuthFailed, true
		}
	case EventDisconnected:
		if s != StateDisconnected {
			return StateDisconnected, true
		}
	case EventAuthenticated:
		// Log-only event, never a transition.
	}
	return s, false
}
