package models

import "github.com/golang-jwt/jwt/v5"

// SupabaseClaims represents the JWT claims issued to dashboard operators by Supabase Auth.
// See: https://supabase.com/docs/guides/auth/jwts
type SupabaseClaims struct {
	jwt.RegisteredClaims
	Email       string                 `json:"email"`
	Role        string                 `json:"role"` // "authenticated" or "anon"
	AppMetadata map[string]interface{} `json:"app_metadata"`
	SessionID   string                 `json:"session_id"`
	IsAnonymous bool                   `json:"is_anonymous"`
}

// OperatorID returns the operator id from the JWT subject claim
func (c *SupabaseClaims) OperatorID() string {
	return c.Subject
}
