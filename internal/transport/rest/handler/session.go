package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"resilience-sim/internal/service"
)

// SessionHandler handles simulation session endpoints
type SessionHandler struct {
	gameSvc *service.GameService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(gameSvc *service.GameService) *SessionHandler {
	return &SessionHandler{gameSvc: gameSvc}
}

// CreateSessionRequest is the request body for starting a session
type CreateSessionRequest struct {
	BadgeID string `json:"badgeId"`
}

// SelectChoiceRequest is the request body for resolving a choice
type SelectChoiceRequest struct {
	ChoiceID string `json:"choiceId"`
}

// FreeformRequest is the request body for a freeform submission
type FreeformRequest struct {
	Text string `json:"text"`
}

// Create handles POST /v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BadgeID == "" {
		writeError(w, http.StatusBadRequest, "badgeId is required")
		return
	}

	view, err := h.gameSvc.CreateSession(req.BadgeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// Get handles GET /v1/sessions/{sessionId}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.gameSvc.GetSession(mux.Vars(r)["sessionId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SelectChoice handles POST /v1/sessions/{sessionId}/choice
func (h *SessionHandler) SelectChoice(w http.ResponseWriter, r *http.Request) {
	var req SelectChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ChoiceID == "" {
		writeError(w, http.StatusBadRequest, "choiceId is required")
		return
	}

	result, err := h.gameSvc.SelectChoice(mux.Vars(r)["sessionId"], req.ChoiceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Advance handles POST /v1/sessions/{sessionId}/advance
func (h *SessionHandler) Advance(w http.ResponseWriter, r *http.Request) {
	view, err := h.gameSvc.Advance(mux.Vars(r)["sessionId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SubmitFreeform handles POST /v1/sessions/{sessionId}/freeform
// The verdict arrives asynchronously over the session's WebSocket; the
// response only acknowledges that evaluation started.
func (h *SessionHandler) SubmitFreeform(w http.ResponseWriter, r *http.Request) {
	var req FreeformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.gameSvc.SubmitFreeform(mux.Vars(r)["sessionId"], req.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

// Reset handles POST /v1/sessions/{sessionId}/reset
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	view, err := h.gameSvc.ResetSession(mux.Vars(r)["sessionId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Delete handles DELETE /v1/sessions/{sessionId}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.gameSvc.DeleteSession(mux.Vars(r)["sessionId"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
