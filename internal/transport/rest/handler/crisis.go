package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"resilience-sim/internal/model"
	"resilience-sim/internal/service"
)

// CrisisHandler handles crisis conversation endpoints
type CrisisHandler struct {
	crisisSvc *service.CrisisService
}

// NewCrisisHandler creates a new crisis handler
func NewCrisisHandler(crisisSvc *service.CrisisService) *CrisisHandler {
	return &CrisisHandler{crisisSvc: crisisSvc}
}

// ContextRequest is the request body for submitting the pasted context
type ContextRequest struct {
	HatefulComment string `json:"hatefulComment"`
	OriginalPost   string `json:"originalPost,omitempty"`
	ImageCount     int    `json:"imageCount,omitempty"`
}

// MessageRequest is the request body for a conversation turn
type MessageRequest struct {
	Text string `json:"text"`
}

// Create handles POST /v1/crisis
func (h *CrisisHandler) Create(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.crisisSvc.CreateConversation())
}

// Get handles GET /v1/crisis/{conversationId}
func (h *CrisisHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.crisisSvc.GetConversation(mux.Vars(r)["conversationId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SubmitContext handles POST /v1/crisis/{conversationId}/context
func (h *CrisisHandler) SubmitContext(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.crisisSvc.Begin(r.Context(), mux.Vars(r)["conversationId"], model.CrisisContext{
		HatefulComment: req.HatefulComment,
		OriginalPost:   req.OriginalPost,
		ImageCount:     req.ImageCount,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SendMessage handles POST /v1/crisis/{conversationId}/messages
func (h *CrisisHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.crisisSvc.SendMessage(r.Context(), mux.Vars(r)["conversationId"], req.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AdvanceToStrategies handles POST /v1/crisis/{conversationId}/strategies
func (h *CrisisHandler) AdvanceToStrategies(w http.ResponseWriter, r *http.Request) {
	view, err := h.crisisSvc.AdvanceToStrategies(mux.Vars(r)["conversationId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversation": view,
		"strategies":   h.crisisSvc.Strategies(),
	})
}

// ListStrategies handles GET /v1/crisis/strategies
func (h *CrisisHandler) ListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"strategies": h.crisisSvc.Strategies()})
}

// Delete handles DELETE /v1/crisis/{conversationId}
func (h *CrisisHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.crisisSvc.DeleteConversation(mux.Vars(r)["conversationId"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
