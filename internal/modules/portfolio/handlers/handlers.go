// Package handlers provides HTTP handlers for portfolio operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/domain"
	"github.com/apostolou/hestia/internal/modules/holdings"
	"github.com/apostolou/hestia/internal/modules/portfolio"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	repo         *portfolio.Repository
	service      *portfolio.Service
	holdingsRepo *holdings.Repository
	log          zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(repo *portfolio.Repository, service *portfolio.Service, holdingsRepo *holdings.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo:         repo,
		service:      service,
		holdingsRepo: holdingsRepo,
		log:          log.With().Str("handler", "portfolio").Logger(),
	}
}

// CreateRequest represents a request to create a portfolio
type CreateRequest struct {
	Name           string `json:"name"`
	MainCurrency   string `json:"main_currency"`
	CashDiscipline bool   `json:"cash_discipline"`
}

// HandleCreate handles POST /api/portfolios
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	currency := domain.Currency(req.MainCurrency)
	if !currency.IsValid() {
		http.Error(w, "invalid main currency", http.StatusBadRequest)
		return
	}

	p, err := h.repo.Create(req.Name, currency, req.CashDiscipline)
	if err != nil {
		h.log.Error().Err(err).Str("name", req.Name).Msg("Failed to create portfolio")
		http.Error(w, "Failed to create portfolio", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusCreated, p)
}

// HandleList handles GET /api/portfolios
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.repo.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list portfolios")
		http.Error(w, "Failed to list portfolios", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, portfolios)
}

// HandleGet handles GET /api/portfolios/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	p, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", id).Msg("Failed to get portfolio")
		http.Error(w, "Failed to get portfolio", http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.Error(w, "Portfolio not found", http.StatusNotFound)
		return
	}

	h.writeData(w, http.StatusOK, p)
}

// HandleDelete handles DELETE /api/portfolios/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(id); err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", id).Msg("Failed to delete portfolio")
		http.Error(w, "Failed to delete portfolio", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

// HandleValuation handles GET /api/portfolios/{id}/valuation
func (h *Handler) HandleValuation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	v, err := h.service.ComputeValuation(id)
	if err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", id).Msg("Failed to compute valuation")
		http.Error(w, "Failed to compute valuation", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, v)
}

// HandleHoldings handles GET /api/portfolios/{id}/holdings
func (h *Handler) HandleHoldings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.portfolioID(w, r)
	if !ok {
		return
	}

	rows, err := h.holdingsRepo.GetByPortfolio(id)
	if err != nil {
		h.log.Error().Err(err).Int64("portfolio_id", id).Msg("Failed to list holdings")
		http.Error(w, "Failed to list holdings", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, rows)
}

func (h *Handler) portfolioID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid portfolio ID", http.StatusBadRequest)
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
