package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"resilience-sim/internal/engine"
	"resilience-sim/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps sentinel errors onto HTTP statuses: unknown ids are
// 404, state conflicts are 409, bad input is 400.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrConversationNotFound),
		errors.Is(err, service.ErrUnknownBadge):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEvaluationPending),
		errors.Is(err, service.ErrMessagePending),
		errors.Is(err, service.ErrRevealInProgress),
		errors.Is(err, service.ErrWrongMode),
		errors.Is(err, engine.ErrNotAwaitingChoice),
		errors.Is(err, engine.ErrCannotAdvance),
		errors.Is(err, engine.ErrCompleted),
		errors.Is(err, engine.ErrNotEvaluating):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrChoiceUnavailable),
		errors.Is(err, engine.ErrFreeformRequired),
		errors.Is(err, engine.ErrNoFreeformChoice),
		errors.Is(err, engine.ErrEmptyInput),
		errors.Is(err, service.ErrMissingComment),
		errors.Is(err, service.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
