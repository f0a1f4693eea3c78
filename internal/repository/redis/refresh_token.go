// Package redis provides a Redis backed refresh token store. Each record is
// a hash keyed by the token hash; a per-user sorted set indexes records by
// creation time. State transitions run as Lua scripts so that each one is
// atomic on the server. The scripts touch keys derived from the index, so
// the store targets a single Redis node.
//
// Records are deleted by Redis once they are past ExpiresAt by more than the
// retention period. A token presented after that is unknown to the store, so
// refreshing it fails as invalid rather than expired. Keep retention at least
// as long as clients may hold on to an expired refresh token.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dtroode/pizzeria-auth/internal/model"
)

// DefaultRetention keeps records this long past their expiry.
const DefaultRetention = 30 * 24 * time.Hour

const (
	fieldID         = "id"
	fieldUserID     = "user_id"
	fieldCreatedAt  = "created_at"
	fieldExpiresAt  = "expires_at"
	fieldIsRevoked  = "is_revoked"
	fieldReplacedBy = "replaced_by"
	fieldRevokedAt  = "revoked_at"
)

const addScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "id", ARGV[1],
  "user_id", ARGV[2],
  "created_at", ARGV[3],
  "expires_at", ARGV[4],
  "is_revoked", "0")
local ttl = tonumber(ARGV[5])
redis.call("PEXPIRE", KEYS[1], ttl)
redis.call("ZADD", KEYS[2], ARGV[3], ARGV[6])
local current = redis.call("PTTL", KEYS[2])
if current < ttl then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "is_revoked") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "is_revoked", "1", "revoked_at", ARGV[2])
if ARGV[1] ~= "" then
  redis.call("HSET", KEYS[1], "replaced_by", ARGV[1])
end
return 1
`

const revokeManyScript = `
local count = 0
for _, key in ipairs(KEYS) do
  local fields = redis.call("HMGET", key, "user_id", "is_revoked")
  if fields[1] == ARGV[1] and fields[2] == "0" then
    redis.call("HSET", key, "is_revoked", "1", "revoked_at", ARGV[2])
    count = count + 1
  end
end
return count
`

const revokeAllScript = `
local count = 0
local now = tonumber(ARGV[2])
local members = redis.call("ZRANGE", KEYS[1], 0, -1)
for _, member in ipairs(members) do
  local key = ARGV[1] .. member
  local fields = redis.call("HMGET", key, "is_revoked", "expires_at")
  if fields[1] == "0" and fields[2] and tonumber(fields[2]) > now then
    redis.call("HSET", key, "is_revoked", "1", "revoked_at", ARGV[3])
    count = count + 1
  end
end
return count
`

var (
	addLua        = redis.NewScript(addScript)
	revokeLua     = redis.NewScript(revokeScript)
	revokeManyLua = redis.NewScript(revokeManyScript)
	revokeAllLua  = redis.NewScript(revokeAllScript)
)

var _ model.RefreshTokenStore = (*RefreshTokenRepository)(nil)

// RefreshTokenRepository implements model.RefreshTokenStore on Redis.
type RefreshTokenRepository struct {
	rdb       redis.UniversalClient
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// Option configures a RefreshTokenRepository.
type Option func(*RefreshTokenRepository)

// WithPrefix sets the key namespace. Default is "pizzeria".
func WithPrefix(prefix string) Option {
	return func(r *RefreshTokenRepository) { r.prefix = prefix }
}

// WithRetention sets how long records outlive their expiry.
func WithRetention(retention time.Duration) Option {
	return func(r *RefreshTokenRepository) { r.retention = retention }
}

// WithClock sets the clock used for TTLs and RevokedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(r *RefreshTokenRepository) { r.now = now }
}

func NewRefreshTokenRepository(rdb redis.UniversalClient, opts ...Option) *RefreshTokenRepository {
	r := &RefreshTokenRepository{
		rdb:       rdb,
		prefix:    "pizzeria",
		retention: DefaultRetention,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RefreshTokenRepository) tokenPrefix() string {
	return r.prefix + ":rt:"
}

func (r *RefreshTokenRepository) tokenKey(hash string) string {
	return r.tokenPrefix() + hash
}

func (r *RefreshTokenRepository) userKey(userID uuid.UUID) string {
	return r.prefix + ":rt-user:" + userID.String()
}

func (r *RefreshTokenRepository) Add(ctx context.Context, token model.RefreshToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	ttl := token.ExpiresAt.Add(r.retention).Sub(r.now())
	if ttl <= 0 {
		ttl = r.retention
	}

	added, err := addLua.Run(ctx, r.rdb,
		[]string{r.tokenKey(token.TokenHash), r.userKey(token.UserID)},
		token.ID.String(),
		token.UserID.String(),
		token.CreatedAt.UnixMicro(),
		token.ExpiresAt.UnixMicro(),
		ttl.Milliseconds(),
		token.TokenHash,
	).Int64()
	if err != nil {
		return fmt.Errorf("failed to add refresh token: %w", err)
	}
	if added == 0 {
		return model.ErrAlreadyExists
	}

	return nil
}

func (r *RefreshTokenRepository) GetByHash(ctx context.Context, hash string) (model.RefreshToken, error) {
	fields, err := r.rdb.HGetAll(ctx, r.tokenKey(hash)).Result()
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("failed to get refresh token by hash: %w", err)
	}
	if len(fields) == 0 {
		return model.RefreshToken{}, model.ErrNotFound
	}

	rt, err := decodeToken(hash, fields)
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("failed to decode refresh token: %w", err)
	}
	return rt, nil
}

func (r *RefreshTokenRepository) GetValidTokensForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.RefreshToken, error) {
	userKey := r.userKey(userID)

	hashes, err := r.rdb.ZRange(ctx, userKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list refresh tokens: %w", err)
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(hashes))
	for i, hash := range hashes {
		cmds[i] = pipe.HGetAll(ctx, r.tokenKey(hash))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load refresh tokens: %w", err)
	}

	var (
		tokens []model.RefreshToken
		stale  []any
	)
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			stale = append(stale, hashes[i])
			continue
		}
		rt, err := decodeToken(hashes[i], fields)
		if err != nil {
			return nil, fmt.Errorf("failed to decode refresh token: %w", err)
		}
		if rt.IsValid(now) {
			tokens = append(tokens, rt)
		}
	}

	if len(stale) > 0 {
		if err := r.rdb.ZRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune refresh token index: %w", err)
		}
	}

	return tokens, nil
}

func (r *RefreshTokenRepository) Revoke(ctx context.Context, hash string, replacedByHash *string) (bool, error) {
	replacedBy := ""
	if replacedByHash != nil {
		replacedBy = *replacedByHash
	}

	revoked, err := revokeLua.Run(ctx, r.rdb,
		[]string{r.tokenKey(hash)},
		replacedBy,
		r.now().UnixMicro(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return revoked == 1, nil
}

func (r *RefreshTokenRepository) RevokeMany(ctx context.Context, userID uuid.UUID, hashes []string) (int64, error) {
	if len(hashes) == 0 {
		return 0, nil
	}

	keys := make([]string, len(hashes))
	for i, hash := range hashes {
		keys[i] = r.tokenKey(hash)
	}

	count, err := revokeManyLua.Run(ctx, r.rdb, keys, userID.String(), r.now().UnixMicro()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return count, nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	count, err := revokeAllLua.Run(ctx, r.rdb,
		[]string{r.userKey(userID)},
		r.tokenPrefix(),
		now.UnixMicro(),
		r.now().UnixMicro(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens by user: %w", err)
	}
	return count, nil
}

func decodeToken(hash string, fields map[string]string) (model.RefreshToken, error) {
	id, err := uuid.Parse(fields[fieldID])
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("bad id: %w", err)
	}
	userID, err := uuid.Parse(fields[fieldUserID])
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("bad user id: %w", err)
	}
	createdAt, err := parseMicros(fields[fieldCreatedAt])
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("bad created_at: %w", err)
	}
	expiresAt, err := parseMicros(fields[fieldExpiresAt])
	if err != nil {
		return model.RefreshToken{}, fmt.Errorf("bad expires_at: %w", err)
	}

	rt := model.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: hash,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		IsRevoked: fields[fieldIsRevoked] == "1",
	}

	if replacedBy, ok := fields[fieldReplacedBy]; ok && replacedBy != "" {
		rt.ReplacedByTokenHash = &replacedBy
	}
	if raw, ok := fields[fieldRevokedAt]; ok && raw != "" {
		revokedAt, err := parseMicros(raw)
		if err != nil {
			return model.RefreshToken{}, fmt.Errorf("bad revoked_at: %w", err)
		}
		rt.RevokedAt = &revokedAt
	}

	return rt, nil
}

func parseMicros(raw string) (time.Time, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(v).UTC(), nil
}
