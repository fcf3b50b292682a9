package http

import (
	"net/http"

	"github.com/urlguard/urlguard/internal/utils"
	"github.com/urlguard/urlguard/models"
)

type statusResponse struct {
	Lists []models.ListStatus `json:"lists"`
}

// getStatus reports a point-in-time snapshot of every tracked threat list.
func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	statuses := h.sync.Statuses()

	utils.WriteJSON(w, statusResponse{Lists: statuses}, http.StatusOK)
}
