package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"resilience-sim/internal/content"
)

// BadgeHandler serves the authored badge catalog
type BadgeHandler struct {
	catalog *content.Catalog
}

// NewBadgeHandler creates a new badge handler
func NewBadgeHandler(catalog *content.Catalog) *BadgeHandler {
	return &BadgeHandler{catalog: catalog}
}

// BadgeSummary is the list-view shape; full phase graphs are only served
// per badge.
type BadgeSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	PhaseCount  int    `json:"phaseCount"`
}

// List handles GET /v1/badges
func (h *BadgeHandler) List(w http.ResponseWriter, r *http.Request) {
	badges := h.catalog.List()
	out := make([]BadgeSummary, 0, len(badges))
	for _, b := range badges {
		out = append(out, BadgeSummary{
			ID:          b.ID,
			Name:        b.Name,
			Description: b.Description,
			Icon:        b.Icon,
			PhaseCount:  len(b.Phases),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"badges": out})
}

// Get handles GET /v1/badges/{badgeId}
func (h *BadgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["badgeId"]
	badge, ok := h.catalog.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "badge not found")
		return
	}
	writeJSON(w, http.StatusOK, badge)
}
