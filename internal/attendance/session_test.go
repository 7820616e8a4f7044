package attendance

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"user_id": "admin-1"}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestSession_Token(t *testing.T) {
	future := time.Now().Add(time.Hour).Truncate(time.Second)

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr error
	}{
		{"empty session", func(t *testing.T) string { return "" }, ErrNoToken},
		{"opaque token", func(t *testing.T) string { return "opaque-123" }, nil},
		{"valid JWT", func(t *testing.T) string { return signedToken(t, future) }, nil},
		{"JWT without exp", func(t *testing.T) string { return signedToken(t, time.Time{}) }, nil},
		{"expired JWT", func(t *testing.T) string { return signedToken(t, time.Now().Add(-time.Minute)) }, ErrSessionExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession(tt.token(t), zap.NewNop())

			_, err := s.Token()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Token() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSession_ExpiryAndClear(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	s := NewSession("Bearer "+signedToken(t, exp), zap.NewNop())

	if !s.ExpiresAt().Equal(exp) {
		t.Errorf("ExpiresAt() = %v, want %v", s.ExpiresAt(), exp)
	}

	token, err := s.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if len(token) == 0 || token[:7] == "Bearer " {
		t.Errorf("Token() = %q, want bare token", token)
	}

	s.Clear()
	if _, err := s.Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("Token() after Clear error = %v, want ErrNoToken", err)
	}
	if !s.ExpiresAt().IsZero() {
		t.Errorf("ExpiresAt() after Clear = %v, want zero", s.ExpiresAt())
	}
}
