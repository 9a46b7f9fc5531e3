package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all valuation history routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/portfolios/{id}/history", h.HandleHistory)
	r.Get("/portfolios/{id}/snapshots/{date}", h.HandleSnapshot)
	r.Post("/snapshots/capture", h.HandleCapture)
}
