// Package handlers provides HTTP handlers for currency operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/modules/currency"
)

// Handler handles currency HTTP requests
type Handler struct {
	currencyService *currency.Service
	log             zerolog.Logger
}

// NewHandler creates a new currency handler
func NewHandler(currencyService *currency.Service, log zerolog.Logger) *Handler {
	return &Handler{
		currencyService: currencyService,
		log:             log.With().Str("handler", "currency").Logger(),
	}
}

// ConvertRequest represents a request to convert currency
type ConvertRequest struct {
	FromCurrency string  `json:"from_currency"`
	ToCurrency   string  `json:"to_currency"`
	Amount       float64 `json:"amount"`
}

// HandleGetRate handles GET /api/currency/rate?from=USD&to=EUR
func (h *Handler) HandleGetRate(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")

	if from == "" || to == "" {
		http.Error(w, "from and to currencies are required", http.StatusBadRequest)
		return
	}

	rate, err := h.currencyService.GetRate(from, to)
	if err != nil {
		h.log.Warn().Err(err).Str("from", from).Str("to", to).Msg("Failed to get rate")
		http.Error(w, "No exchange rate available", http.StatusBadGateway)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"from_currency": from,
			"to_currency":   to,
			"rate":          rate,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleConvert handles both GET /api/currency/convert?amount=&from=&to=
// and POST /api/currency/convert with a JSON body.
func (h *Handler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest

	if r.Method == http.MethodPost {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		req.FromCurrency = r.URL.Query().Get("from")
		req.ToCurrency = r.URL.Query().Get("to")
		if amountStr := r.URL.Query().Get("amount"); amountStr != "" {
			amount, err := strconv.ParseFloat(amountStr, 64)
			if err != nil {
				http.Error(w, "Invalid amount", http.StatusBadRequest)
				return
			}
			req.Amount = amount
		}
	}

	if req.FromCurrency == "" || req.ToCurrency == "" {
		http.Error(w, "from and to currencies are required", http.StatusBadRequest)
		return
	}

	converted, err := h.currencyService.Convert(req.Amount, req.FromCurrency, req.ToCurrency)
	if err != nil {
		h.log.Warn().Err(err).
			Str("from", req.FromCurrency).
			Str("to", req.ToCurrency).
			Msg("Failed to convert")
		http.Error(w, "No exchange rate available", http.StatusBadGateway)
		return
	}

	response := map[string]interface{}{
		"data": map[string]interface{}{
			"from_currency":    req.FromCurrency,
			"to_currency":      req.ToCurrency,
			"amount":           req.Amount,
			"converted_amount": converted,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	h.writeJSON(w, http.StatusOK, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
