// Package store persists session credentials and signal-protocol key
// material across pluggable durable backends.
//
// The package is layered:
//
//   - RecordStoreFactory creates a keyed record store from a location URI
//     (file://, bolt://, vault://, s3://).
//   - CredentialStore maps the session's two logical records onto the record
//     store: "creds" holds the registration blob and is overwritten
//     wholesale; "keys/<type>" holds one CBOR-encoded bucket per key
//     namespace and is merged incrementally.
//   - KeyCache decorates the credential store with an in-memory write-through
//     cache for the protocol client's high-frequency key reads during the
//     cryptographic handshake.
//
// Splitting credentials from keys mirrors their mutation frequencies:
// credentials change rarely, key material churns continuously, and the merge
// path never rewrites the credentials blob.
package store
