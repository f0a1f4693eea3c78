// Package context stores verified access token claims in request contexts.
package context

import (
	"context"

	"github.com/dtroode/pizzeria-auth/internal/model"
)

type claimsKey struct{}

// Manager sets and reads access claims on a context.
type Manager struct{}

// NewManager creates a new context manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// SetClaimsToContext returns a child context carrying claims.
func (m *Manager) SetClaimsToContext(ctx context.Context, claims model.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// GetClaimsFromContext returns the claims stored by SetClaimsToContext.
func (m *Manager) GetClaimsFromContext(ctx context.Context) (model.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(model.AccessClaims)
	return claims, ok
}
