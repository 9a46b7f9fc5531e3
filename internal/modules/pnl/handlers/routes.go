package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all P&L routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/pnl", h.HandleReport)
}
