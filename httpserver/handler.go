package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/wapair/session-backend/api"
	"github.com/wapair/session-backend/coordinator"
	"github.com/wapair/session-backend/interfaces"
)

// maxBodySize is the maximum allowed request body size.
const maxBodySize = 64 * 1024

// qrImageSize is the rendered QR edge length in pixels.
const qrImageSize = 256

// Handler processes the session API requests. It translates the HTTP surface
// onto the coordinator and maps the error taxonomy onto status codes.
type Handler struct {
	starter coordinator.SessionStarter
	status  coordinator.StatusQuery
	log     *slog.Logger
}

// NewHandler creates a handler around the coordinator's two capability
// surfaces.
func NewHandler(starter coordinator.SessionStarter, status coordinator.StatusQuery, log *slog.Logger) *Handler {
	return &Handler{
		starter: starter,
		status:  status,
		log:     log,
	}
}

// HandleStartSession admits a new connection attempt.
//
// URL: POST /start-session
// Request body: JSON, see api.StartSessionRequest
//
// Responses:
//   - 202 Accepted: attempt admitted, progress observable via GET /status
//   - 400 Bad Request: unknown method, or pairing without a valid phone number
//   - 409 Conflict: another attempt is already active
func (h *Handler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.log.Error("Failed to read request body", "err", err)
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req api.StartSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	method, err := coordinator.ParseMethod(req.Method)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.starter.Start(r.Context(), method, req.PhoneNumber)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, api.StartSessionResponse{Status: "accepted"})
	case errors.Is(err, interfaces.ErrConflictingAttempt):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, interfaces.ErrInvalidPhoneNumber):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error("Failed to start session attempt", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to start session attempt")
	}
}

// HandleStatus reports the coordinator snapshot.
//
// URL: GET /status
// Response: JSON, see api.StatusResponse
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.status.CurrentStatus()
	writeJSON(w, http.StatusOK, api.StatusResponse{
		State:              string(st.State),
		PendingQR:          st.PendingQR,
		PendingPairingCode: st.PendingPairingCode,
		LastError:          st.LastError,
	})
}

// HandleQRImage renders the pending QR payload as a scannable PNG.
//
// URL: GET /qr.png
// Responses: 200 with image/png, or 404 when no QR is pending.
func (h *Handler) HandleQRImage(w http.ResponseWriter, r *http.Request) {
	st := h.status.CurrentStatus()
	if st.PendingQR == "" {
		http.Error(w, "no QR pending", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(st.PendingQR, qrcode.Medium, qrImageSize)
	if err != nil {
		h.log.Error("Failed to render QR image", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to render QR image")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}
