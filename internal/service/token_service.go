package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/pizzeria-auth/internal/logger"
	"github.com/dtroode/pizzeria-auth/internal/model"
	"github.com/dtroode/pizzeria-auth/internal/token"
)

// DefaultMaxActiveRefreshTokens caps concurrently valid refresh tokens per user.
const DefaultMaxActiveRefreshTokens = 5

// TokenConfig contains token lifecycle parameters.
type TokenConfig struct {
	SigningKey             string
	Issuer                 string
	Audience               string
	AccessTokenLifetime    time.Duration
	RefreshTokenLifetime   time.Duration
	MaxActiveRefreshTokens int
}

// TokenDeps are the collaborators of TokenService. Audit is optional.
type TokenDeps struct {
	Store    model.RefreshTokenStore
	Verifier model.CredentialVerifier
	Roles    model.RoleResolver
	Users    model.UserLookup
	Audit    model.AuditSink
}

// TokenService issues, rotates and revokes tokens. It is the only writer of
// refresh token state and the only constructor of access tokens.
type TokenService struct {
	issuer     model.AccessTokenIssuer
	store      model.RefreshTokenStore
	verifier   model.CredentialVerifier
	roles      model.RoleResolver
	users      model.UserLookup
	audit      model.AuditSink
	pepper     []byte
	refreshTTL time.Duration
	maxActive  int
	now        func() time.Time
	random     io.Reader
	logger     *logger.Logger
}

// TokenOption customizes a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// WithAccessTokenIssuer replaces the HS256 issuer built from the config.
func WithAccessTokenIssuer(issuer model.AccessTokenIssuer) TokenOption {
	return func(s *TokenService) { s.issuer = issuer }
}

// WithRandom replaces the source of token entropy.
func WithRandom(r io.Reader) TokenOption {
	return func(s *TokenService) { s.random = r }
}

// NewTokenService validates the configuration and builds the service. A weak
// signing key is rejected with model.ErrConfiguration; the caller must not
// start serving in that case.
func NewTokenService(cfg TokenConfig, deps TokenDeps, logger *logger.Logger, opts ...TokenOption) (*TokenService, error) {
	if err := EnsureSigningKeyStrength(cfg.SigningKey); err != nil {
		return nil, err
	}
	if cfg.AccessTokenLifetime <= 0 || cfg.RefreshTokenLifetime <= 0 {
		return nil, fmt.Errorf("%w: token lifetimes must be positive", model.ErrConfiguration)
	}
	if cfg.MaxActiveRefreshTokens < 0 {
		return nil, fmt.Errorf("%w: max active refresh tokens must not be negative", model.ErrConfiguration)
	}
	if deps.Store == nil || deps.Verifier == nil || deps.Roles == nil || deps.Users == nil {
		return nil, fmt.Errorf("%w: token service dependencies are missing", model.ErrConfiguration)
	}

	s := &TokenService{
		store:      deps.Store,
		verifier:   deps.Verifier,
		roles:      deps.Roles,
		users:      deps.Users,
		audit:      deps.Audit,
		pepper:     []byte(cfg.SigningKey),
		refreshTTL: cfg.RefreshTokenLifetime,
		maxActive:  cfg.MaxActiveRefreshTokens,
		now:        func() time.Time { return time.Now().UTC() },
		random:     rand.Reader,
		logger:     logger,
	}
	if s.maxActive == 0 {
		s.maxActive = DefaultMaxActiveRefreshTokens
	}
	if s.audit == nil {
		s.audit = nopAudit{}
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.issuer == nil {
		s.issuer = token.NewJWT(s.pepper, cfg.Issuer, cfg.Audience, cfg.AccessTokenLifetime).WithClock(s.now)
	}

	return s, nil
}

// Login verifies the credential and issues an access token, a refresh token
// and a CSRF token. The refresh token plaintext is returned here only.
func (s *TokenService) Login(ctx context.Context, credential model.Credential) (model.Tokens, error) {
	user, err := s.verifier.VerifyLogin(ctx, credential)
	if errors.Is(err, model.ErrAuthenticationFailed) {
		s.logger.Info("Token service: login rejected")
		return model.Tokens{}, model.ErrAuthenticationFailed
	}
	if err != nil {
		return model.Tokens{}, s.dependencyFailure("verify credentials", err)
	}

	now := s.now()

	accessToken, err := s.buildAccessToken(ctx, user, now)
	if err != nil {
		return model.Tokens{}, err
	}

	refreshToken, refreshHash, err := s.newRefreshToken()
	if err != nil {
		return model.Tokens{}, s.dependencyFailure("generate refresh token", err, "user_id", user.ID)
	}

	csrfToken, err := s.randomToken(csrfTokenBytes)
	if err != nil {
		return model.Tokens{}, s.dependencyFailure("generate csrf token", err, "user_id", user.ID)
	}

	record := s.newRecord(user.ID, refreshHash, now)
	if err := s.store.Add(ctx, record); err != nil {
		return model.Tokens{}, s.dependencyFailure("persist refresh token", err,
			"user_id", user.ID,
			"token_hash_prefix", HashPrefix(refreshHash))
	}

	if err := s.enforceCap(ctx, user.ID, refreshHash, now); err != nil {
		return model.Tokens{}, err
	}

	s.logger.Info("Token service: login succeeded",
		"user_id", user.ID,
		"token_hash_prefix", HashPrefix(refreshHash))

	return model.Tokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		CSRFToken:    csrfToken,
	}, nil
}

// Refresh exchanges a refresh token for a new access/refresh pair and
// revokes the presented one. Presenting an already revoked token is treated
// as theft: every valid token of the owner is revoked.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	if refreshToken == "" {
		return model.TokenPair{}, model.ErrInvalidToken
	}

	hash := s.hashRefreshToken(refreshToken)
	record, err := s.store.GetByHash(ctx, hash)
	if errors.Is(err, model.ErrNotFound) {
		s.logger.Debug("Token service: refresh token not found",
			"token_hash_prefix", HashPrefix(hash))
		return model.TokenPair{}, model.ErrInvalidToken
	}
	if err != nil {
		return model.TokenPair{}, s.dependencyFailure("get refresh token", err,
			"token_hash_prefix", HashPrefix(hash))
	}

	now := s.now()
	if !now.Before(record.ExpiresAt) {
		s.logger.Debug("Token service: refresh token expired",
			"user_id", record.UserID,
			"token_hash_prefix", HashPrefix(hash))
		return model.TokenPair{}, model.ErrExpiredToken
	}

	if record.IsRevoked {
		return model.TokenPair{}, s.teardown(ctx, record, now, model.EventReuseDetected)
	}

	user, err := s.users.GetUserByID(ctx, record.UserID)
	if errors.Is(err, model.ErrNotFound) {
		s.logger.Info("Token service: refresh token owner no longer exists",
			"user_id", record.UserID,
			"token_hash_prefix", HashPrefix(hash))
		return model.TokenPair{}, model.ErrInvalidToken
	}
	if err != nil {
		return model.TokenPair{}, s.dependencyFailure("get user", err, "user_id", record.UserID)
	}

	accessToken, err := s.buildAccessToken(ctx, user, now)
	if err != nil {
		return model.TokenPair{}, err
	}

	newRefreshToken, newHash, err := s.newRefreshToken()
	if err != nil {
		return model.TokenPair{}, s.dependencyFailure("generate refresh token", err, "user_id", user.ID)
	}

	// The replacement is stored before the old record is revoked so that a
	// failure in between leaves the user with two valid tokens, never none.
	if err := s.store.Add(ctx, s.newRecord(user.ID, newHash, now)); err != nil {
		return model.TokenPair{}, s.dependencyFailure("persist refresh token", err,
			"user_id", user.ID,
			"token_hash_prefix", HashPrefix(newHash))
	}

	rotated, err := s.store.Revoke(ctx, record.TokenHash, &newHash)
	if err != nil {
		return model.TokenPair{}, s.dependencyFailure("revoke rotated refresh token", err,
			"user_id", user.ID,
			"token_hash_prefix", HashPrefix(hash))
	}
	if !rotated {
		// A concurrent refresh with the same token won the swap.
		return model.TokenPair{}, s.teardown(ctx, record, now, model.EventRotationRace)
	}

	s.logger.Info("Token service: refresh token rotated",
		"user_id", user.ID,
		"token_hash_prefix", HashPrefix(hash),
		"replaced_by_prefix", HashPrefix(newHash))

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
	}, nil
}

// Revoke revokes a refresh token. Unknown and already revoked tokens are
// not an error.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	hash := s.hashRefreshToken(refreshToken)
	record, err := s.store.GetByHash(ctx, hash)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return s.dependencyFailure("get refresh token", err, "token_hash_prefix", HashPrefix(hash))
	}
	if record.IsRevoked {
		return nil
	}

	revoked, err := s.store.Revoke(ctx, hash, nil)
	if err != nil {
		return s.dependencyFailure("revoke refresh token", err,
			"user_id", record.UserID,
			"token_hash_prefix", HashPrefix(hash))
	}

	if revoked {
		s.logger.Info("Token service: refresh token revoked",
			"user_id", record.UserID,
			"token_hash_prefix", HashPrefix(hash))
	}

	return nil
}

// ValidateAccessToken verifies an access token and returns its claims.
func (s *TokenService) ValidateAccessToken(_ context.Context, accessToken string) (model.AccessClaims, error) {
	if accessToken == "" {
		return model.AccessClaims{}, model.ErrInvalidToken
	}
	return s.issuer.Parse(accessToken)
}

func (s *TokenService) buildAccessToken(ctx context.Context, user model.User, now time.Time) (string, error) {
	roles, err := s.roles.RolesForUser(ctx, user.ID)
	if err != nil {
		return "", s.dependencyFailure("resolve roles", err, "user_id", user.ID)
	}

	accessToken, err := s.issuer.Issue(model.AccessTokenParams{
		UserID:   user.ID,
		Email:    user.Email,
		Roles:    roles,
		IssuedAt: now,
	})
	if err != nil {
		return "", s.dependencyFailure("sign access token", err, "user_id", user.ID)
	}

	return accessToken, nil
}

// enforceCap revokes the oldest valid tokens of the user beyond maxActive.
// The token issued by the current login is always kept. It runs at login
// only, so rotations may exceed the cap temporarily.
func (s *TokenService) enforceCap(ctx context.Context, userID uuid.UUID, keepHash string, now time.Time) error {
	valid, err := s.store.GetValidTokensForUser(ctx, userID, now)
	if err != nil {
		return s.dependencyFailure("list valid refresh tokens", err, "user_id", userID)
	}
	if len(valid) <= s.maxActive {
		return nil
	}

	slices.SortStableFunc(valid, func(a, b model.RefreshToken) int {
		switch {
		case a.TokenHash == keepHash:
			return -1
		case b.TokenHash == keepHash:
			return 1
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	excess := valid[s.maxActive:]
	hashes := make([]string, 0, len(excess))
	for _, t := range excess {
		hashes = append(hashes, t.TokenHash)
	}

	revoked, err := s.store.RevokeMany(ctx, userID, hashes)
	if err != nil {
		return s.dependencyFailure("revoke excess refresh tokens", err, "user_id", userID)
	}

	s.logger.Info("Token service: refresh token cap enforced",
		"user_id", userID,
		"max_active", s.maxActive,
		"revoked", revoked)

	s.recordEvent(ctx, model.SecurityEvent{
		Type:         model.EventCapEnforced,
		UserID:       userID,
		RevokedCount: revoked,
		OccurredAt:   now,
	})

	return nil
}

// teardown revokes every valid token of the record owner after a replay.
func (s *TokenService) teardown(ctx context.Context, record model.RefreshToken, now time.Time, eventType model.SecurityEventType) error {
	revoked, err := s.store.RevokeAllForUser(ctx, record.UserID, now)
	if err != nil {
		return s.dependencyFailure("revoke refresh token lineage", err,
			"user_id", record.UserID,
			"token_hash_prefix", HashPrefix(record.TokenHash))
	}

	s.logger.Warn("Token service: refresh token reuse detected, all sessions revoked",
		"user_id", record.UserID,
		"token_hash_prefix", HashPrefix(record.TokenHash),
		"reason", string(eventType),
		"revoked", revoked)

	s.recordEvent(ctx, model.SecurityEvent{
		Type:            eventType,
		UserID:          record.UserID,
		TokenHashPrefix: HashPrefix(record.TokenHash),
		RevokedCount:    revoked,
		OccurredAt:      now,
	})

	return model.ErrInvalidToken
}

func (s *TokenService) recordEvent(ctx context.Context, event model.SecurityEvent) {
	event.ID = uuid.New()
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Error("Token service: failed to record security event",
			"type", string(event.Type),
			"user_id", event.UserID,
			"error", err.Error())
	}
}

func (s *TokenService) newRecord(userID uuid.UUID, hash string, now time.Time) model.RefreshToken {
	return model.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
}

func (s *TokenService) newRefreshToken() (plaintext string, hash string, err error) {
	plaintext, err = s.randomToken(refreshTokenBytes)
	if err != nil {
		return "", "", err
	}
	return plaintext, s.hashRefreshToken(plaintext), nil
}

func (s *TokenService) dependencyFailure(op string, err error, args ...any) error {
	s.logger.Error("Token service: "+op+" failed", append(args, "error", err.Error())...)
	return fmt.Errorf("%w: %s", model.ErrDependencyFailure, op)
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, model.SecurityEvent) error { return nil }
