// Package token builds and verifies HS256 access tokens.
//
// Access tokens are stateless: they are never persisted and cannot be revoked
// one by one. Their short lifetime is the only revocation mechanism, so a
// leaked access token stays usable until it expires.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dtroode/pizzeria-auth/internal/model"
)

// Claims represents access token claims.
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Roles []string `json:"roles,omitempty"`
}

// JWT implements model.AccessTokenIssuer backed by symmetric HMAC.
type JWT struct {
	secretKey []byte
	issuer    string
	audience  string
	ttl       time.Duration
	now       func() time.Time
}

var _ model.AccessTokenIssuer = (*JWT)(nil)

// NewJWT creates an access token issuer. The key strength is checked by the
// token service before the issuer is built.
func NewJWT(secretKey []byte, issuer, audience string, ttl time.Duration) *JWT {
	return &JWT{
		secretKey: secretKey,
		issuer:    issuer,
		audience:  audience,
		ttl:       ttl,
		now:       time.Now,
	}
}

// WithClock returns a copy of the issuer that validates expiry against now.
func (j *JWT) WithClock(now func() time.Time) *JWT {
	c := *j
	c.now = now
	return &c
}

// Issue signs a new access token with a fresh jti.
func (j *JWT) Issue(params model.AccessTokenParams) (string, error) {
	issuedAt := params.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = j.now()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   params.UserID.String(),
			ID:        uuid.NewString(),
			Issuer:    j.issuer,
			Audience:  jwt.ClaimStrings{j.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(j.ttl)),
		},
		Email: params.Email,
		Roles: NormalizeRoles(params.Roles),
	})

	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

// Parse verifies signature, issuer, audience and validity window of an
// access token and returns its claims.
func (j *JWT) Parse(tokenString string) (model.AccessClaims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return j.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(j.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.AccessClaims{}, fmt.Errorf("%w: %v", model.ErrExpiredToken, err)
		}
		return model.AccessClaims{}, fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.AccessClaims{}, fmt.Errorf("%w: malformed subject", model.ErrInvalidToken)
	}

	out := model.AccessClaims{
		UserID: userID,
		Email:  claims.Email,
		JTI:    claims.ID,
		Roles:  claims.Roles,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}

	return out, nil
}

// NormalizeRoles drops blank role names and collapses duplicates, keeping
// the order of first appearance.
func NormalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if strings.TrimSpace(r) == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
