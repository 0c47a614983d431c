// Package ctxutil provides shared context key accessors.
//
// This package exists to break the circular dependency between server and
// mcp: server mounts the MCP handler, and mcp needs to read the identity
// that server's auth middleware populates. Both packages import ctxutil
// instead of each other.
package ctxutil

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const keyClaims contextKey = "claims"

// WithClaims returns a new context carrying the validated token claims.
func WithClaims(ctx context.Context, claims *jwt.RegisteredClaims) context.Context {
	return context.WithValue(ctx, keyClaims, claims)
}

// ClaimsFromContext extracts the token claims from the context, or nil for
// unauthenticated requests (public routes, or auth disabled).
func ClaimsFromContext(ctx context.Context) *jwt.RegisteredClaims {
	if v, ok := ctx.Value(keyClaims).(*jwt.RegisteredClaims); ok {
		return v
	}
	return nil
}

// Subject returns the authenticated subject (an API key fingerprint), or
// the empty string for unauthenticated requests.
func Subject(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}
