// Package handlers provides HTTP handlers for valuation history.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/modules/snapshots"
)

// Handler handles valuation snapshot HTTP requests
type Handler struct {
	repo    *snapshots.Repository
	service *snapshots.Service
	log     zerolog.Logger
}

// NewHandler creates a new snapshots handler
func NewHandler(repo *snapshots.Repository, service *snapshots.Service, log zerolog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		service: service,
		log:     log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleHistory handles GET /api/portfolios/{id}/history?from=&to=
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid portfolio ID", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	points, err := h.repo.GetHistory(portfolioID, q.Get("from"), q.Get("to"))
	if err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to load history")
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, points)
}

// HandleSnapshot handles GET /api/portfolios/{id}/snapshots/{date}
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid portfolio ID", http.StatusBadRequest)
		return
	}
	date := chi.URLParam(r, "date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	snapshot, err := h.repo.Get(portfolioID, date)
	if err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to load snapshot")
		http.Error(w, "Failed to load snapshot", http.StatusInternalServerError)
		return
	}
	if snapshot == nil {
		http.Error(w, "No snapshot for that date", http.StatusNotFound)
		return
	}

	h.writeData(w, http.StatusOK, snapshot)
}

// HandleCapture handles POST /api/snapshots/capture
func (h *Handler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	stored, err := h.service.CaptureAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to capture snapshots")
		http.Error(w, "Failed to capture snapshots", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{"captured": stored})
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	response := map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
