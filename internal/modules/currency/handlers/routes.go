package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all currency routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/currency", func(r chi.Router) {
		r.Get("/rate", h.HandleGetRate)
		r.Get("/convert", h.HandleConvert)
		r.Post("/convert", h.HandleConvert)
	})
}
