// Package memory provides an in-process refresh token store.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/pizzeria-auth/internal/model"
)

var _ model.RefreshTokenStore = (*RefreshTokenRepository)(nil)

// RefreshTokenRepository keeps refresh token records in memory. All
// operations are linearizable under a single mutex.
type RefreshTokenRepository struct {
	mu     sync.Mutex
	byHash map[string]model.RefreshToken
	byUser map[uuid.UUID]map[string]struct{}
	now    func() time.Time
}

// NewRefreshTokenRepository creates an empty store.
func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{
		byHash: make(map[string]model.RefreshToken),
		byUser: make(map[uuid.UUID]map[string]struct{}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets the clock used for RevokedAt stamps.
func (r *RefreshTokenRepository) WithClock(now func() time.Time) *RefreshTokenRepository {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	return r
}

func (r *RefreshTokenRepository) Add(_ context.Context, token model.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byHash[token.TokenHash]; ok {
		return model.ErrAlreadyExists
	}

	r.byHash[token.TokenHash] = cloneToken(token)
	hashes, ok := r.byUser[token.UserID]
	if !ok {
		hashes = make(map[string]struct{})
		r.byUser[token.UserID] = hashes
	}
	hashes[token.TokenHash] = struct{}{}

	return nil
}

func (r *RefreshTokenRepository) GetByHash(_ context.Context, hash string) (model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.byHash[hash]
	if !ok {
		return model.RefreshToken{}, model.ErrNotFound
	}
	return cloneToken(token), nil
}

func (r *RefreshTokenRepository) GetValidTokensForUser(_ context.Context, userID uuid.UUID, now time.Time) ([]model.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var tokens []model.RefreshToken
	for hash := range r.byUser[userID] {
		token := r.byHash[hash]
		if token.IsValid(now) {
			tokens = append(tokens, cloneToken(token))
		}
	}
	return tokens, nil
}

func (r *RefreshTokenRepository) Revoke(_ context.Context, hash string, replacedByHash *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.byHash[hash]
	if !ok || token.IsRevoked {
		return false, nil
	}

	r.revokeLocked(token, replacedByHash)
	return true, nil
}

func (r *RefreshTokenRepository) RevokeMany(_ context.Context, userID uuid.UUID, hashes []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for _, hash := range hashes {
		token, ok := r.byHash[hash]
		if !ok || token.UserID != userID || token.IsRevoked {
			continue
		}
		r.revokeLocked(token, nil)
		count++
	}
	return count, nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(_ context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for hash := range r.byUser[userID] {
		token := r.byHash[hash]
		if !token.IsValid(now) {
			continue
		}
		r.revokeLocked(token, nil)
		count++
	}
	return count, nil
}

// Len returns the number of stored records.
func (r *RefreshTokenRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHash)
}

func (r *RefreshTokenRepository) revokeLocked(token model.RefreshToken, replacedByHash *string) {
	revokedAt := r.now()
	token.IsRevoked = true
	token.RevokedAt = &revokedAt
	if replacedByHash != nil {
		replaced := *replacedByHash
		token.ReplacedByTokenHash = &replaced
	}
	r.byHash[token.TokenHash] = token
}

func cloneToken(token model.RefreshToken) model.RefreshToken {
	if token.ReplacedByTokenHash != nil {
		replaced := *token.ReplacedByTokenHash
		token.ReplacedByTokenHash = &replaced
	}
	if token.RevokedAt != nil {
		revokedAt := *token.RevokedAt
		token.RevokedAt = &revokedAt
	}
	return token
}
