package attendance

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Session holds the single auth token used for backend requests
type Session struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time // zero when the token carries no exp claim
	logger    *zap.Logger
}

// NewSession creates a session, optionally seeded with a token
func NewSession(token string, logger *zap.Logger) *Session {
	s := &Session{logger: logger}
	if token != "" {
		s.SetToken(token)
	}
	return s
}

// SetToken stores a new token and reads its expiry.
// The signature is not verified here; the backend does that.
func (s *Session) SetToken(token string) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))

	var expiresAt time.Time
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			expiresAt = exp.Time
		}
	} else {
		s.logger.Debug("Token is not a JWT, expiry unknown", zap.Error(err))
	}

	s.mu.Lock()
	s.token = token
	s.expiresAt = expiresAt
	s.mu.Unlock()

	if !expiresAt.IsZero() {
		s.logger.Info("Session token set",
			zap.Time("expires_at", expiresAt),
			zap.Duration("time_until_expiry", time.Until(expiresAt)))
	}
}

// Token returns the current token, or ErrNoToken / ErrSessionExpired
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == "" {
		return "", ErrNoToken
	}
	if !s.expiresAt.IsZero() && time.Now().After(s.expiresAt) {
		return "", ErrSessionExpired
	}

	return s.token, nil
}

// ExpiresAt returns the token expiry, zero if unknown
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Clear drops the token after the backend rejected it
func (s *Session) Clear() {
	s.mu.Lock()
	hadToken := s.token != ""
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	if hadToken {
		s.logger.Warn("Session cleared, login required")
	}
}
