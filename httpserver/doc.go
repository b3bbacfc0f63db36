// Package httpserver provides the HTTP surface of the session provisioning
// service.
//
// The API routes map directly onto the coordinator:
//
//   - POST /start-session - admit a connection attempt (202/400/409)
//   - GET /status - coordinator snapshot for polling callers
//   - GET /qr.png - the pending QR payload rendered as a PNG
//
// Operational endpoints follow the usual shape: /livez, /readyz, /drain,
// /undrain, an optional pprof mount under /debug, and a Prometheus metrics
// listener on its own address.
package httpserver
