// Package interfaces defines the core types and service interfaces shared
// across the session provisioning backend.
//
// The package deliberately has no dependencies on implementation packages,
// serving as the contract layer between components:
//
//   - RecordStore and RecordStoreFactory: keyed durable record persistence
//     with pluggable backends selected by URI scheme.
//   - CredentialStore: the two logical session records (credentials and key
//     material) layered on top of a RecordStore.
//   - ProtocolClient and ProtocolDialer: the boundary to the external
//     messaging-protocol client, with tagged event variants validated before
//     they enter the coordinator.
//
// # Store URI Format
//
// Durable stores are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/sessiongen/
//   - bolt:///var/lib/sessiongen/session.db
//   - vault://vault.example.com:8200/secret/sessions
//   - s3://bucket-name/prefix/?region=us-west-2
//
// The package also defines the error taxonomy of the service. All sentinel
// errors are matched with errors.Is by callers; implementations wrap them
// with context using fmt.Errorf and %w.
package interfaces
