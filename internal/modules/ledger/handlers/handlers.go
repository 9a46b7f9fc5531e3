// Package handlers provides HTTP handlers for transaction operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/modules/impact"
	"github.com/apostolou/hestia/internal/modules/ledger"
)

// Handler handles transaction HTTP requests. Writes go through the
// impact service so ledger rows and portfolio state stay consistent.
type Handler struct {
	repo   *ledger.Repository
	impact *impact.Service
	log    zerolog.Logger
}

// NewHandler creates a new transactions handler
func NewHandler(repo *ledger.Repository, impactSvc *impact.Service, log zerolog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		impact: impactSvc,
		log:    log.With().Str("handler", "transactions").Logger(),
	}
}

// HandleCreate handles POST /api/transactions
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req impact.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	t, err := h.impact.Record(req)
	if err != nil {
		if isClientError(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Str("type", req.Type).Msg("Failed to book transaction")
		http.Error(w, "Failed to book transaction", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusCreated, t)
}

// HandleList handles GET /api/transactions with optional filters
// portfolio_id, asset_id, type, from, to, limit.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.Filter{
		Type:     q.Get("type"),
		FromDate: q.Get("from"),
		ToDate:   q.Get("to"),
	}
	f.PortfolioID, _ = strconv.ParseInt(q.Get("portfolio_id"), 10, 64)
	f.AssetID, _ = strconv.ParseInt(q.Get("asset_id"), 10, 64)
	f.Limit, _ = strconv.Atoi(q.Get("limit"))

	transactions, err := h.repo.GetAll(f)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		http.Error(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, transactions)
}

// HandleGet handles GET /api/transactions/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	t, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to get transaction")
		http.Error(w, "Failed to get transaction", http.StatusInternalServerError)
		return
	}
	if t == nil {
		http.Error(w, "Transaction not found", http.StatusNotFound)
		return
	}

	h.writeData(w, http.StatusOK, t)
}

// HandleDelete handles DELETE /api/transactions/{id}. Deleting a
// transaction reverses its effect on portfolio state.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.impact.Reverse(id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Transaction not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to reverse transaction")
		http.Error(w, "Failed to reverse transaction", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{"reversed": id})
}

// HandleSummary handles GET /api/transactions/summary?portfolio_id=N
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	portfolioID, _ := strconv.ParseInt(r.URL.Query().Get("portfolio_id"), 10, 64)

	summary, err := h.repo.GetSummary(portfolioID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute transactions summary")
		http.Error(w, "Failed to compute summary", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, summary)
}

// isClientError reports whether a booking failure was caused by the
// request rather than the server
func isClientError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "required") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "must")
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
