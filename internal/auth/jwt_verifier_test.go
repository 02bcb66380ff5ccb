package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"callagent/internal/domain"
	"callagent/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
)

func newTestVerifier(t *testing.T) (*SupabaseJWTVerifier, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	kf := func(*jwt.Token) (any, error) { return &key.PublicKey, nil }
	return NewKeyfuncVerifier(kf, slog.New(slog.NewTextHandler(io.Discard, nil))), key
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims *models.SupabaseClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return s
}

func operatorClaims(mutate func(c *models.SupabaseClaims)) *models.SupabaseClaims {
	c := &models.SupabaseClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "nurse@example.com",
		Role:  "authenticated",
	}
	if mutate != nil {
		mutate(c)
	}
	return c
}

func TestVerifyToken(t *testing.T) {
	v, key := newTestVerifier(t)

	claims, err := v.VerifyToken(sign(t, jwt.SigningMethodES256, key, operatorClaims(nil)))
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.OperatorID() != "operator-1" {
		t.Errorf("OperatorID() = %q", claims.OperatorID())
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "expired", token: sign(t, jwt.SigningMethodES256, key, operatorClaims(func(c *models.SupabaseClaims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		}))},
		{name: "no expiry", token: sign(t, jwt.SigningMethodES256, key, operatorClaims(func(c *models.SupabaseClaims) {
			c.ExpiresAt = nil
		}))},
		{name: "anon role", token: sign(t, jwt.SigningMethodES256, key, operatorClaims(func(c *models.SupabaseClaims) {
			c.Role = "anon"
		}))},
		{name: "anonymous session", token: sign(t, jwt.SigningMethodES256, key, operatorClaims(func(c *models.SupabaseClaims) {
			c.IsAnonymous = true
		}))},
		{name: "missing subject", token: sign(t, jwt.SigningMethodES256, key, operatorClaims(func(c *models.SupabaseClaims) {
			c.Subject = ""
		}))},
		{name: "hmac algorithm", token: sign(t, jwt.SigningMethodHS256, []byte("shared"), operatorClaims(nil))},
		{name: "garbage", token: "not.a.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.VerifyToken(tt.token); !errors.Is(err, domain.ErrUnauthorized) {
				t.Errorf("VerifyToken() error = %v, want ErrUnauthorized", err)
			}
		})
	}
}
