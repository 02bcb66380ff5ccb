package httputil

import (
	"context"
	"net/http"

	"callagent/internal/domain/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	operatorKey contextKey = "operator"
)

// WithOperator attaches the authenticated dashboard operator to the request
func WithOperator(r *http.Request, claims *models.SupabaseClaims) *http.Request {
	ctx := context.WithValue(r.Context(), operatorKey, claims)
	return r.WithContext(ctx)
}

// GetOperator returns the authenticated operator, or nil
func GetOperator(r *http.Request) *models.SupabaseClaims {
	claims, _ := r.Context().Value(operatorKey).(*models.SupabaseClaims)
	return claims
}
