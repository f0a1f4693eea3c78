package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RefreshTokenStore persists refresh token records keyed by the keyed hash
// of the token value. Plaintext tokens never reach the store.
type RefreshTokenStore interface {
	Add(ctx context.Context, token RefreshToken) error
	GetByHash(ctx context.Context, hash string) (RefreshToken, error)
	// GetValidTokensForUser returns non-revoked, non-expired records of the
	// user in no particular order.
	GetValidTokensForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]RefreshToken, error)
	// Revoke flips IsRevoked on the record with the given hash. It reports
	// whether this call performed the transition; a record that is already
	// revoked (or missing) is left untouched and yields false.
	Revoke(ctx context.Context, hash string, replacedByHash *string) (bool, error)
	// RevokeMany revokes the listed records of one user.
	RevokeMany(ctx context.Context, userID uuid.UUID, hashes []string) (int64, error)
	// RevokeAllForUser revokes every valid record of one user.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

// RefreshToken is a single issued refresh credential.
type RefreshToken struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	TokenHash           string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	IsRevoked           bool
	ReplacedByTokenHash *string
	RevokedAt           *time.Time
}

// TokenState is the lifecycle state of a refresh token record.
type TokenState string

const (
	TokenStateActive  TokenState = "active"
	TokenStateRotated TokenState = "rotated"
	TokenStateRevoked TokenState = "revoked"
	TokenStateExpired TokenState = "expired"
)

// State classifies the record at the given instant. Expired is derived from
// the clock and never stored.
func (t RefreshToken) State(now time.Time) TokenState {
	switch {
	case t.IsRevoked && t.ReplacedByTokenHash != nil:
		return TokenStateRotated
	case t.IsRevoked:
		return TokenStateRevoked
	case !now.Before(t.ExpiresAt):
		return TokenStateExpired
	default:
		return TokenStateActive
	}
}

// IsValid reports whether the record can still be exchanged at now.
func (t RefreshToken) IsValid(now time.Time) bool {
	return t.State(now) == TokenStateActive
}
