// Package handlers provides HTTP handlers for fixed deposit operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/modules/fixeddeposit"
)

// Handler handles fixed deposit HTTP requests
type Handler struct {
	service *fixeddeposit.Service
	log     zerolog.Logger
}

// NewHandler creates a new fixed deposit handler
func NewHandler(service *fixeddeposit.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "fixeddeposit").Logger(),
	}
}

// HandleList handles GET /api/deposits?status=ACTIVE
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	deposits, err := h.service.GetAll(r.URL.Query().Get("status"))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list deposits")
		http.Error(w, "Failed to list deposits", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, deposits)
}

// HandleGet handles GET /api/deposits/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid deposit ID", http.StatusBadRequest)
		return
	}

	status, err := h.service.GetByID(id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, "Deposit not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Int64("asset_id", id).Msg("Failed to get deposit")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeData(w, http.StatusOK, status)
}

// HandleWithdraw handles POST /api/deposits/withdraw
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req fixeddeposit.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	t, err := h.service.Withdraw(req)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Int64("asset_id", req.AssetID).Msg("Failed to withdraw deposit")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeData(w, http.StatusOK, t)
}

// HandleScanMaturities handles POST /api/deposits/scan-maturities.
// Manual trigger for the daily maturity scan.
func (h *Handler) HandleScanMaturities(w http.ResponseWriter, r *http.Request) {
	matured, err := h.service.MarkMatured()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to scan deposit maturities")
		http.Error(w, "Failed to scan deposit maturities", http.StatusInternalServerError)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{"matured": matured})
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
