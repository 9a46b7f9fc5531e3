// Package handlers provides HTTP handlers for CSV exports.
package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/modules/export"
	"github.com/apostolou/hestia/internal/modules/ledger"
)

// Handler handles CSV export HTTP requests
type Handler struct {
	service *export.Service
	log     zerolog.Logger
}

// NewHandler creates a new export handler
func NewHandler(service *export.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "export").Logger(),
	}
}

// HandleTransactionsCSV handles GET /api/export/transactions.csv with
// the same filters as the transactions list.
func (h *Handler) HandleTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.Filter{
		Type:     q.Get("type"),
		FromDate: q.Get("from"),
		ToDate:   q.Get("to"),
	}
	f.PortfolioID, _ = strconv.ParseInt(q.Get("portfolio_id"), 10, 64)
	f.AssetID, _ = strconv.ParseInt(q.Get("asset_id"), 10, 64)

	filename := fmt.Sprintf("transactions-%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	if err := h.service.WriteTransactionsCSV(w, f); err != nil {
		h.log.Error().Err(err).Msg("Failed to export transactions CSV")
	}
}

// HandleHoldingsCSV handles GET /api/export/holdings.csv?portfolio_id=N
func (h *Handler) HandleHoldingsCSV(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := strconv.ParseInt(r.URL.Query().Get("portfolio_id"), 10, 64)
	if err != nil {
		http.Error(w, "portfolio_id is required", http.StatusBadRequest)
		return
	}

	filename := fmt.Sprintf("holdings-%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	if err := h.service.WriteHoldingsCSV(w, portfolioID); err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to export holdings CSV")
	}
}
