package model

import (
	"time"

	"github.com/google/uuid"
)

// AccessTokenIssuer builds and verifies signed access tokens.
type AccessTokenIssuer interface {
	Issue(params AccessTokenParams) (string, error)
	Parse(token string) (AccessClaims, error)
}

// AccessTokenParams describes the access token to sign.
type AccessTokenParams struct {
	UserID   uuid.UUID
	Email    string
	Roles    []string
	IssuedAt time.Time
}

// AccessClaims are the verified claims of an access token.
type AccessClaims struct {
	UserID    uuid.UUID
	Email     string
	JTI       string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Tokens is the result of a successful login. RefreshToken and CSRFToken
// are plaintexts and are observable only here.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	CSRFToken    string
}

// TokenPair is the result of a successful refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
