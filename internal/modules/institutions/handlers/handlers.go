// Package handlers provides HTTP handlers for institution operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/modules/institutions"
)

// Handler handles institution HTTP requests
type Handler struct {
	repo     *institutions.Repository
	cashRepo *institutions.CashRepository
	log      zerolog.Logger
}

// NewHandler creates a new institutions handler
func NewHandler(repo *institutions.Repository, cashRepo *institutions.CashRepository, log zerolog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		cashRepo: cashRepo,
		log:      log.With().Str("handler", "institutions").Logger(),
	}
}

// CreateRequest represents a request to create an institution
type CreateRequest struct {
	PortfolioID int64  `json:"portfolio_id"`
	Name        string `json:"name"`
}

// CashRequest represents a request to set an institution cash balance
type CashRequest struct {
	Currency string  `json:"currency"`
	Balance  float64 `json:"balance"`
}

// HandleCreate handles POST /api/institutions
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PortfolioID <= 0 || req.Name == "" {
		http.Error(w, "portfolio_id and name are required", http.StatusBadRequest)
		return
	}

	inst, err := h.repo.Create(req.PortfolioID, req.Name)
	if err != nil {
		h.log.Error().Err(err).Str("name", req.Name).Msg("Failed to create institution")
		http.Error(w, "Failed to create institution", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusCreated, inst)
}

// HandleList handles GET /api/institutions?portfolio_id=N
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := strconv.ParseInt(r.URL.Query().Get("portfolio_id"), 10, 64)
	if err != nil {
		http.Error(w, "portfolio_id is required", http.StatusBadRequest)
		return
	}

	list, err := h.repo.GetByPortfolio(portfolioID)
	if err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to list institutions")
		http.Error(w, "Failed to list institutions", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, list)
}

// HandleDelete handles DELETE /api/institutions/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.institutionID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(id); err != nil {
		h.log.Error().Err(err).Int64("institution_id", id).Msg("Failed to delete institution")
		http.Error(w, "Failed to delete institution", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// HandleGetCash handles GET /api/institutions/{id}/cash
func (h *Handler) HandleGetCash(w http.ResponseWriter, r *http.Request) {
	id, ok := h.institutionID(w, r)
	if !ok {
		return
	}

	balances, err := h.cashRepo.GetAll(id)
	if err != nil {
		h.log.Error().Err(err).Int64("institution_id", id).Msg("Failed to get institution cash")
		http.Error(w, "Failed to get institution cash", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, balances)
}

// HandleSetCash handles PUT /api/institutions/{id}/cash
func (h *Handler) HandleSetCash(w http.ResponseWriter, r *http.Request) {
	id, ok := h.institutionID(w, r)
	if !ok {
		return
	}

	var req CashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Currency == "" {
		http.Error(w, "currency is required", http.StatusBadRequest)
		return
	}

	if err := h.cashRepo.Upsert(id, req.Currency, req.Balance); err != nil {
		h.log.Error().Err(err).Int64("institution_id", id).Msg("Failed to set institution cash")
		http.Error(w, "Failed to set institution cash", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"institution_id": id,
		"currency":       req.Currency,
		"balance":        req.Balance,
	})
}

func (h *Handler) institutionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid institution ID", http.StatusBadRequest)
		return 0, false
	}
	return id, true
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
