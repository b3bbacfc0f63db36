package interfaces

import "encoding/json"

// Credentials is the long-lived registration/identity record of a session.
// The protocol layer owns its schema; this service treats it as an opaque
// JSON document and persists it wholesale.
type Credentials []byte

// EmptyCredentials is the default value for a session that has never paired.
func EmptyCredentials() Credentials {
	return Credentials("{}")
}

// IsEmpty reports whether the record carries no registration data.
func (c Credentials) IsEmpty() bool {
	if len(c) == 0 {
		return true
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(c, &m); err != nil {
		return false
	}
	return len(m) == 0
}

// KeyType enumerates the signal-protocol key material namespaces reported by
// the protocol client. The set mirrors the namespaces the protocol layer
// persists between restarts; unknown namespaces are rejected at the boundary.
type KeyType string

const (
	KeyTypePreKey              KeyType = "pre-key"
	KeyTypeSession             KeyType = "session"
	KeyTypeSenderKey           KeyType = "sender-key"
	KeyTypeSenderKeyMemory     KeyType = "sender-key-memory"
	KeyTypeAppStateSyncKey     KeyType = "app-state-sync-key"
	KeyTypeAppStateSyncVersion KeyType = "app-state-sync-version"
)

// KnownKeyTypes lists every namespace this service persists, in a stable
// order used when loading the full key store.
var KnownKeyTypes = []KeyType{
	KeyTypePreKey,
	KeyTypeSession,
	KeyTypeSenderKey,
	KeyTypeSenderKeyMemory,
	KeyTypeAppStateSyncKey,
	KeyTypeAppStateSyncVersion,
}

// Valid reports whether t is a namespace this service knows how to persist.
func (t KeyType) Valid() bool {
	switch t {
	case KeyTypePreKey, KeyTypeSession, KeyTypeSenderKey,
		KeyTypeSenderKeyMemory, KeyTypeAppStateSyncKey, KeyTypeAppStateSyncVersion:
		return true
	default:
		return false
	}
}

// KeyDelta is a batch of key mutations as emitted by the protocol client.
// A nil blob deletes the entry, any other value inserts or overwrites it.
type KeyDelta map[KeyType]map[string][]byte

// KeyStoreSnapshot is the full persisted key material, keyed by namespace
// and key id.
type KeyStoreSnapshot map[KeyType]map[string][]byte

// Clone returns a deep copy of the snapshot.
func (s KeyStoreSnapshot) Clone() KeyStoreSnapshot {
	out := make(KeyStoreSnapshot, len(s))
	for t, bucket := range s {
		cp := make(map[string][]byte, len(bucket))
		for id, blob := range bucket {
			b := make([]byte, len(blob))
			copy(b, blob)
			cp[id] = b
		}
		out[t] = cp
	}
	return out
}
