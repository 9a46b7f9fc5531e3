// Package auth implements the passcode gate: a single shared passcode
// stored as a SHA-256 hash in settings, exchanged at login for a bearer
// session token held in memory.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/apostolou/hestia/internal/modules/settings"
)

// SessionTTL is how long a session token stays valid without re-login
const SessionTTL = 12 * time.Hour

// Service validates passcodes and manages session tokens
type Service struct {
	settings *settings.Repository
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]time.Time // token -> expiry
}

// NewService creates a new auth service
func NewService(settingsRepo *settings.Repository, log zerolog.Logger) *Service {
	return &Service{
		settings: settingsRepo,
		log:      log.With().Str("service", "auth").Logger(),
		sessions: make(map[string]time.Time),
	}
}

// HashPasscode returns the hex SHA-256 digest of a passcode
func HashPasscode(passcode string) string {
	sum := sha256.Sum256([]byte(passcode))
	return hex.EncodeToString(sum[:])
}

// Enabled reports whether a passcode has been configured. When no
// passcode is set, the API is open.
func (s *Service) Enabled() (bool, error) {
	hash, err := s.settings.Get(settings.KeyPasscodeHash)
	if err != nil {
		return false, err
	}
	return hash != nil && *hash != "", nil
}

// Login checks the passcode and issues a session token on success
func (s *Service) Login(passcode string) (string, error) {
	stored, err := s.settings.Get(settings.KeyPasscodeHash)
	if err != nil {
		return "", err
	}
	if stored == nil || *stored == "" {
		return "", fmt.Errorf("no passcode configured")
	}

	candidate := HashPasscode(passcode)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(*stored)) != 1 {
		s.log.Warn().Msg("Rejected login with wrong passcode")
		return "", fmt.Errorf("invalid passcode")
	}

	token := uuid.New().String()
	s.mu.Lock()
	s.sessions[token] = time.Now().Add(SessionTTL)
	s.mu.Unlock()

	s.log.Info().Msg("Session issued")
	return token, nil
}

// VerifyPasscode checks a passcode without issuing a session
func (s *Service) VerifyPasscode(passcode string) bool {
	stored, err := s.settings.Get(settings.KeyPasscodeHash)
	if err != nil || stored == nil || *stored == "" {
		return false
	}
	candidate := HashPasscode(passcode)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(*stored)) == 1
}

// Logout invalidates a session token
func (s *Service) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// ValidToken reports whether a session token is known and unexpired.
// Expired tokens are pruned as a side effect.
func (s *Service) ValidToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(s.sessions, token)
		return false
	}
	return true
}

// SetPasscode stores a new passcode hash. An empty passcode disables
// the gate and drops all active sessions.
func (s *Service) SetPasscode(passcode string) error {
	if passcode == "" {
		if err := s.settings.Delete(settings.KeyPasscodeHash); err != nil {
			return err
		}
	} else {
		desc := "SHA-256 hash of the API passcode"
		if err := s.settings.Set(settings.KeyPasscodeHash, HashPasscode(passcode), &desc); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.sessions = make(map[string]time.Time)
	s.mu.Unlock()

	return nil
}
