// Package api defines the HTTP request/response types of the session
// provisioning service and a small client for them.
package api

// StartSessionRequest is the body of POST /start-session.
type StartSessionRequest struct {
	// Method selects the pairing flow: "qr" or "pairing".
	Method string `json:"method"`

	// PhoneNumber is required when Method is "pairing": digits only, no
	// leading + and no spaces, e.g. "50912345678".
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// StartSessionResponse acknowledges an admitted connection attempt.
type StartSessionResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State              string `json:"state"`
	PendingQR          string `json:"pendingQr,omitempty"`
	PendingPairingCode string `json:"pendingPairingCode,omitempty"`
	LastError          string `json:"lastError,omitempty"`
}

// ErrorResponse carries a rejection reason.
type ErrorResponse struct {
	Error string `json:"error"`
}
