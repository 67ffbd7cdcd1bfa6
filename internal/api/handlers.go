package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/planforge/collabd/internal/apperr"
	"github.com/planforge/collabd/internal/collab"
	"github.com/planforge/collabd/internal/models"
)

// SessionHandler serves read-only session state over plain HTTP. Clients
// that lost their websocket use the snapshot endpoint to catch up before
// reconnecting.
type SessionHandler struct {
	registry *collab.Registry
}

func NewSessionHandler(registry *collab.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// Snapshot returns the session document plus the change delta after the
// optional ?since=N sequence.
func (h *SessionHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	sessionID := models.UUID(chi.URLParam(r, "id"))

	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, string(apperr.ErrValidation), "since must be a non-negative integer")
			return
		}
		since = n
	}

	snap, err := h.registry.GetSnapshot(sessionID, since)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Health reports process liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func writeAppError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	writeError(w, httpStatus(code), string(code), err.Error())
}

func httpStatus(code apperr.Code) int {
	switch code {
	case apperr.ErrSessionNotFound, apperr.ErrConflictNotFound, apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrValidation, apperr.ErrInvalidIdentifier, apperr.ErrInvalidTarget, apperr.ErrBadMessage:
		return http.StatusBadRequest
	case apperr.ErrSessionClosed, apperr.ErrConflictClosed, apperr.ErrStaleDependency, apperr.ErrAlreadyJoined:
		return http.StatusConflict
	case apperr.ErrAuthFailed:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
