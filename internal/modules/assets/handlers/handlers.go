// Package handlers provides HTTP handlers for asset operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/domain"
	"github.com/apostolou/hestia/internal/modules/assets"
)

// Handler handles asset HTTP requests
type Handler struct {
	repo *assets.Repository
	log  zerolog.Logger
}

// NewHandler creates a new assets handler
func NewHandler(repo *assets.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "assets").Logger(),
	}
}

// CreateRequest represents a request to create an asset. The deposit
// fields are required only for FIXED_DEPOSIT assets.
type CreateRequest struct {
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Currency     string  `json:"currency"`
	CurrentPrice float64 `json:"current_price"`

	DepositPrincipal    *float64 `json:"deposit_principal,omitempty"`
	DepositAnnualRate   *float64 `json:"deposit_annual_rate,omitempty"`
	DepositStartDate    *string  `json:"deposit_start_date,omitempty"`
	DepositMaturityDate *string  `json:"deposit_maturity_date,omitempty"`
}

// PriceRequest represents a request to update an asset price
type PriceRequest struct {
	Price float64 `json:"price"`
}

// HandleCreate handles POST /api/assets
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	currency := domain.Currency(req.Currency)
	if !currency.IsValid() {
		http.Error(w, "invalid currency", http.StatusBadRequest)
		return
	}

	a := domain.Asset{
		Symbol:       req.Symbol,
		Name:         req.Name,
		Type:         domain.AssetType(req.Type),
		Currency:     currency,
		CurrentPrice: req.CurrentPrice,
	}

	if a.Type == domain.AssetTypeFixedDeposit {
		if req.DepositPrincipal == nil || req.DepositAnnualRate == nil ||
			req.DepositStartDate == nil || req.DepositMaturityDate == nil {
			http.Error(w, "fixed deposits require principal, annual rate, start and maturity dates", http.StatusBadRequest)
			return
		}
		a.DepositPrincipal = req.DepositPrincipal
		a.DepositAnnualRate = req.DepositAnnualRate
		a.DepositStartDate = req.DepositStartDate
		a.DepositMaturityDate = req.DepositMaturityDate
		status := domain.DepositActive
		a.DepositStatus = &status
	}

	created, err := h.repo.Create(a)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", req.Symbol).Msg("Failed to create asset")
		http.Error(w, "Failed to create asset", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusCreated, created)
}

// HandleList handles GET /api/assets?type=STOCK
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.GetAll(r.URL.Query().Get("type"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list assets")
		http.Error(w, "Failed to list assets", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, list)
}

// HandleGet handles GET /api/assets/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}

	a, err := h.repo.GetByID(id)
	if err != nil {
		h.log.Error().Err(err).Int64("asset_id", id).Msg("Failed to get asset")
		http.Error(w, "Failed to get asset", http.StatusInternalServerError)
		return
	}
	if a == nil {
		http.Error(w, "Asset not found", http.StatusNotFound)
		return
	}

	h.writeData(w, http.StatusOK, a)
}

// HandleUpdatePrice handles PUT /api/assets/{id}/price
func (h *Handler) HandleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}

	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Price < 0 {
		http.Error(w, "price must not be negative", http.StatusBadRequest)
		return
	}

	if err := h.repo.UpdatePrice(id, req.Price); err != nil {
		h.log.Error().Err(err).Int64("asset_id", id).Msg("Failed to update price")
		http.Error(w, "Failed to update price", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{"asset_id": id, "price": req.Price})
}

// HandleDelete handles DELETE /api/assets/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(id); err != nil {
		h.log.Error().Err(err).Int64("asset_id", id).Msg("Failed to delete asset")
		http.Error(w, "Failed to delete asset", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{"deleted": id})
}

func (h *Handler) assetID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid asset ID", http.StatusBadRequest)
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
