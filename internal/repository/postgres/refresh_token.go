package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/pizzeria-auth/internal/model"
)

var _ model.RefreshTokenStore = (*RefreshTokenRepository)(nil)

type RefreshTokenRepository struct {
	db  *Connection
	now func() time.Time
}

func NewRefreshTokenRepository(db *Connection) *RefreshTokenRepository {
	return &RefreshTokenRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets the clock used for revoked_at stamps.
func (r *RefreshTokenRepository) WithClock(now func() time.Time) *RefreshTokenRepository {
	r.now = now
	return r
}

const refreshTokenColumns = `id, user_id, token_hash, created_at, expires_at, is_revoked, replaced_by_token_hash, revoked_at`

func (r *RefreshTokenRepository) Add(ctx context.Context, token model.RefreshToken) error {
	const query = `
        INSERT INTO refresh_tokens (` + refreshTokenColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	_, err := r.db.Exec(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt,
		token.IsRevoked, token.ReplacedByTokenHash, token.RevokedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrAlreadyExists
		}
		return fmt.Errorf("failed to add refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepository) GetByHash(ctx context.Context, hash string) (model.RefreshToken, error) {
	const query = `SELECT ` + refreshTokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`

	rt, err := scanRefreshToken(r.db.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RefreshToken{}, model.ErrNotFound
		}
		return model.RefreshToken{}, fmt.Errorf("failed to get refresh token by hash: %w", err)
	}
	return rt, nil
}

func (r *RefreshTokenRepository) GetValidTokensForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.RefreshToken, error) {
	const query = `
        SELECT ` + refreshTokenColumns + `
        FROM refresh_tokens
        WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > $2
    `

	rows, err := r.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list valid refresh tokens: %w", err)
	}
	defer rows.Close()

	var tokens []model.RefreshToken
	for rows.Next() {
		rt, err := scanRefreshToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan refresh token: %w", err)
		}
		tokens = append(tokens, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate refresh tokens: %w", err)
	}

	return tokens, nil
}

// Revoke is a single conditional update; the affected row count is the
// compare-and-swap result.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, hash string, replacedByHash *string) (bool, error) {
	const query = `
        UPDATE refresh_tokens
        SET is_revoked = TRUE, revoked_at = $3, replaced_by_token_hash = $2
        WHERE token_hash = $1 AND is_revoked = FALSE
    `

	tag, err := r.db.Exec(ctx, query, hash, replacedByHash, r.now())
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RefreshTokenRepository) RevokeMany(ctx context.Context, userID uuid.UUID, hashes []string) (int64, error) {
	if len(hashes) == 0 {
		return 0, nil
	}

	const query = `
        UPDATE refresh_tokens
        SET is_revoked = TRUE, revoked_at = $3
        WHERE user_id = $1 AND token_hash = ANY($2) AND is_revoked = FALSE
    `

	tag, err := r.db.Exec(ctx, query, userID, hashes, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	const query = `
        UPDATE refresh_tokens
        SET is_revoked = TRUE, revoked_at = $3
        WHERE user_id = $1 AND is_revoked = FALSE AND expires_at > $2
    `

	tag, err := r.db.Exec(ctx, query, userID, now, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens by user: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRefreshToken(row pgx.Row) (model.RefreshToken, error) {
	var rt model.RefreshToken
	err := row.Scan(
		&rt.ID, &rt.UserID, &rt.TokenHash, &rt.CreatedAt, &rt.ExpiresAt,
		&rt.IsRevoked, &rt.ReplacedByTokenHash, &rt.RevokedAt,
	)
	return rt, err
}
