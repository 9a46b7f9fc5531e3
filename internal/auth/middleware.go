package auth

import (
	"net/http"
	"strings"
)

// Middleware rejects requests without a valid session token when a
// passcode is configured. Tokens are sent as "Authorization: Bearer <token>".
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enabled, err := s.Enabled()
		if err != nil {
			http.Error(w, `{"error":"auth check failed"}`, http.StatusInternalServerError)
			return
		}
		if !enabled {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" || !s.ValidToken(token) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
