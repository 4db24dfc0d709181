package http

import (
	"context"

	"leadmarket-backend/internal/security"
)

type claimsKey struct{}

func withClaims(ctx context.Context, claims *security.AccountClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the authenticated caller, if any.
func ClaimsFromContext(ctx context.Context) (*security.AccountClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*security.AccountClaims)
	return claims, ok && claims != nil
}
