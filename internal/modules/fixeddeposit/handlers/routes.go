package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all fixed deposit routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/deposits", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/withdraw", h.HandleWithdraw)
		r.Post("/scan-maturities", h.HandleScanMaturities)
		r.Get("/{id}", h.HandleGet)
	})
}
