// Package protocol adapts the external messaging-protocol gateway to the
// capability surface the coordinator consumes.
//
// The gateway process owns the protocol client proper: key generation,
// encryption, and wire framing. This package speaks the gateway's websocket
// framing - tagged JSON frames, one event kind per tag - and validates every
// payload at the boundary before it becomes a typed event. Unknown frame
// types and unknown key namespaces are dropped with a log line rather than
// forwarded.
//
// The gateway may ask for key material during the cryptographic handshake
// (key-request frames); those lookups are served from the caller-supplied
// KeyReader, normally the in-memory key cache.
package protocol
