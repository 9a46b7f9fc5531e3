package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// LoginRequest carries the passcode for a login attempt
type LoginRequest struct {
	Passcode string `json:"passcode"`
}

// PasscodeRequest carries a new passcode. The current passcode is
// required when one is already set.
type PasscodeRequest struct {
	CurrentPasscode string `json:"current_passcode"`
	NewPasscode     string `json:"new_passcode"`
}

// HandleLogin handles POST /api/auth/login
func (s *Service) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := s.Login(req.Passcode)
	if err != nil {
		http.Error(w, "Invalid passcode", http.StatusUnauthorized)
		return
	}

	s.writeData(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": time.Now().Add(SessionTTL).Format(time.RFC3339),
	})
}

// HandleLogout handles POST /api/auth/logout
func (s *Service) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if token := bearerToken(r); token != "" {
		s.Logout(token)
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"logged_out": true})
}

// HandleSetPasscode handles PUT /api/auth/passcode
func (s *Service) HandleSetPasscode(w http.ResponseWriter, r *http.Request) {
	var req PasscodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	enabled, err := s.Enabled()
	if err != nil {
		http.Error(w, "Failed to check passcode state", http.StatusInternalServerError)
		return
	}
	if enabled && !s.VerifyPasscode(req.CurrentPasscode) {
		http.Error(w, "Current passcode is wrong", http.StatusUnauthorized)
		return
	}

	if err := s.SetPasscode(req.NewPasscode); err != nil {
		s.log.Error().Err(err).Msg("Failed to set passcode")
		http.Error(w, "Failed to set passcode", http.StatusInternalServerError)
		return
	}

	s.writeData(w, http.StatusOK, map[string]interface{}{"passcode_set": req.NewPasscode != ""})
}

// HandleStatus handles GET /api/auth/status
func (s *Service) HandleStatus(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.Enabled()
	if err != nil {
		http.Error(w, "Failed to check passcode state", http.StatusInternalServerError)
		return
	}

	authenticated := false
	if token := bearerToken(r); token != "" {
		authenticated = s.ValidToken(token)
	}

	s.writeData(w, http.StatusOK, map[string]interface{}{
		"passcode_enabled": enabled,
		"authenticated":    authenticated || !enabled,
	})
}

// RegisterRoutes registers the auth routes. These stay outside the auth
// middleware so login is reachable without a session.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/logout", s.HandleLogout)
		r.Put("/passcode", s.HandleSetPasscode)
		r.Get("/status", s.HandleStatus)
	})
}

func (s *Service) writeData(w http.ResponseWriter, status int, data interface{}) {
	response := map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
