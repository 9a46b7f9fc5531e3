package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all institution routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/institutions", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Delete("/{id}", h.HandleDelete)
		r.Get("/{id}/cash", h.HandleGetCash)
		r.Put("/{id}/cash", h.HandleSetCash)
	})
}
