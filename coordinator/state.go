package coordinator

import (
	"context"
	"fmt"
)

// State is the lifecycle state of the current connection attempt.
type State string

const (
	StateIdle           State = "idle"
	StateConnecting     State = "connecting"
	StateQRPending      State = "qr_pending"
	StatePairingPending State = "pairing_pending"
	StateOpen           State = "open"
	StateClosed         State = "closed"
	StateError          State = "error"
)

// Active reports whether an attempt currently owns the coordinator. Only one
// attempt may be active at a time; Start is rejected while Active holds.
func (s State) Active() bool {
	switch s {
	case StateConnecting, StateQRPending, StatePairingPending, StateOpen:
		return true
	default:
		return false
	}
}

// Terminal reports whether the attempt has finished, one way or the other.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateError
}

// Method selects how the pairing handshake concludes: a scannable QR payload
// or a phone-number pairing code.
type Method string

const (
	MethodQR      Method = "qr"
	MethodPairing Method = "pairing"
)

// ParseMethod validates a caller-supplied method string.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodQR:
		return MethodQR, nil
	case MethodPairing:
		return MethodPairing, nil
	default:
		return "", fmt.Errorf("unknown connection method: %q", s)
	}
}

// Status is the externally visible snapshot of the coordinator. The three
// artifact fields are written together under one lock, so a reader never
// observes a partially updated pair.
type Status struct {
	State              State  `json:"state"`
	PendingQR          string `json:"pendingQr,omitempty"`
	PendingPairingCode string `json:"pendingPairingCode,omitempty"`
	LastError          string `json:"lastError,omitempty"`
}

// StatusQuery exposes the coordinator snapshot to the HTTP boundary. Reads
// never block and never touch the durable store.
type StatusQuery interface {
	CurrentStatus() Status
}

// SessionStarter starts connection attempts.
type SessionStarter interface {
	Start(ctx context.Context, method Method, phoneNumber string) error
}
