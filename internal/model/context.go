package model

import "context"

// ContextManager stores verified access claims in a request context.
type ContextManager interface {
	SetClaimsToContext(ctx context.Context, claims AccessClaims) context.Context
	GetClaimsFromContext(ctx context.Context) (AccessClaims, bool)
}
