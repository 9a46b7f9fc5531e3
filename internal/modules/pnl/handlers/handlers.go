// Package handlers provides HTTP handlers for realized P&L reports.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/modules/pnl"
)

// Handler handles P&L HTTP requests
type Handler struct {
	service *pnl.Service
	log     zerolog.Logger
}

// NewHandler creates a new P&L handler
func NewHandler(service *pnl.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "pnl").Logger(),
	}
}

// HandleReport handles GET /api/pnl?portfolio_id=N&from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	portfolioID, err := strconv.ParseInt(q.Get("portfolio_id"), 10, 64)
	if err != nil {
		http.Error(w, "portfolio_id is required", http.StatusBadRequest)
		return
	}

	fromDate := q.Get("from")
	toDate := q.Get("to")
	for _, date := range []string{fromDate, toDate} {
		if date == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", date); err != nil {
			http.Error(w, "dates must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	report, err := h.service.ComputeReport(portfolioID, fromDate, toDate)
	if err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to compute P&L report")
		http.Error(w, "Failed to compute report", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"data": report,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
