package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrInvalidPhoneNumber is returned for malformed pairing input, before
	// any store or protocol work begins.
	ErrInvalidPhoneNumber = errors.New("invalid phone number")

	// ErrPairingRequestFailed is returned when the protocol layer rejects a
	// pairing-code request.
	ErrPairingRequestFailed = errors.New("pairing request failed")

	// ErrProtocolSetupFailed is returned for any other failure constructing
	// or starting the protocol client.
	ErrProtocolSetupFailed = errors.New("protocol client setup failed")

	// ErrConflictingAttempt is returned when a connection attempt is started
	// while another is still active.
	ErrConflictingAttempt = errors.New("a connection attempt is already active")
)

// ConnState is the connection state reported by the protocol client.
type ConnState string

const (
	ConnConnecting ConnState = "connecting"
	ConnOpen       ConnState = "open"
	ConnClosed     ConnState = "close"
)

// Event is a validated protocol event. Exactly the three variants below
// cross the protocol boundary; payloads are checked before they reach the
// coordinator.
type Event interface {
	isEvent()
}

// ConnectionEvent reports a connection state change. QR carries the current
// QR payload when the protocol layer offers one; LoggedOut marks a close
// caused by an explicit sign-out, after which the persisted session can no
// longer be resumed.
type ConnectionEvent struct {
	State     ConnState
	QR        string
	LoggedOut bool
	Err       error
}

// CredentialsEvent reports a mutation of the credentials record. The payload
// is the full record, to be persisted wholesale.
type CredentialsEvent struct {
	Credentials Credentials
}

// KeysEvent reports a batch of key-material mutations.
type KeysEvent struct {
	Delta KeyDelta
}

func (ConnectionEvent) isEvent()  {}
func (CredentialsEvent) isEvent() {}
func (KeysEvent) isEvent()        {}

// KeyReader serves key lookups during the cryptographic handshake. Implemented
// by the key cache so the hot path never round-trips to the durable store.
type KeyReader interface {
	GetKeys(ctx context.Context, keyType KeyType, ids []string) (map[string][]byte, error)
}

// AuthState is the credential/key material handed to the protocol client when
// a connection is established.
type AuthState struct {
	Credentials Credentials
	Keys        KeyReader
}

// ProtocolClient is the capability surface of the external messaging-protocol
// client. It is consumed for the lifetime of one connection attempt and
// discarded on close or error.
type ProtocolClient interface {
	// Events returns the client's event stream. The channel is closed when
	// the connection terminates.
	Events() <-chan Event

	// RequestPairingCode asks the protocol layer to issue a phone-number
	// pairing code for the given protocol address.
	RequestPairingCode(ctx context.Context, address string) (string, error)

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// ProtocolDialer establishes protocol client connections.
type ProtocolDialer interface {
	Dial(ctx context.Context, auth AuthState) (ProtocolClient, error)
}
