package protocol

import "encoding/json"

// Frame type tags on the gateway socket. The gateway wraps the messaging
// protocol's loosely typed events; everything crossing this boundary is
// validated before it becomes an interfaces.Event.
const (
	// service -> gateway
	frameHello       = "hello"
	framePairRequest = "pair-request"
	frameKeyResponse = "key-response"

	// gateway -> service
	frameConnection   = "connection"
	frameCreds        = "creds"
	frameKeys         = "keys"
	framePairResponse = "pair-response"
	frameKeyRequest   = "key-request"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type helloPayload struct {
	Credentials json.RawMessage `json:"credentials"`
}

type connectionPayload struct {
	State     string `json:"state"`
	QR        string `json:"qr,omitempty"`
	LoggedOut bool   `json:"loggedOut,omitempty"`
	Error     string `json:"error,omitempty"`
}

type keysPayload struct {
	// Delta maps key namespace -> key id -> blob. JSON base64-encodes the
	// blobs; null deletes the entry.
	Delta map[string]map[string][]byte `json:"delta"`
}

type pairRequestPayload struct {
	ID      uint64 `json:"id"`
	Address string `json:"address"`
}

type pairResponsePayload struct {
	ID    uint64 `json:"id"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

type keyRequestPayload struct {
	ID      uint64   `json:"id"`
	KeyType string   `json:"keyType"`
	IDs     []string `json:"ids"`
}

type keyResponsePayload struct {
	ID    uint64            `json:"id"`
	Keys  map[string][]byte `json:"keys,omitempty"`
	Error string            `json:"error,omitempty"`
}
