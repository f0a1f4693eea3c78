package middleware

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/pizzeria-auth/internal/logger"
	"github.com/dtroode/pizzeria-auth/internal/model"
)

// AccessTokenValidator verifies bearer access tokens.
type AccessTokenValidator interface {
	ValidateAccessToken(ctx context.Context, accessToken string) (model.AccessClaims, error)
}

// Authenticate validates bearer tokens and injects access claims into context.
type Authenticate struct {
	validator      AccessTokenValidator
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(validator AccessTokenValidator, contextManager model.ContextManager, logger *logger.Logger) *Authenticate {
	return &Authenticate{validator: validator, contextManager: contextManager, logger: logger}
}

// AuthFunc parses Authorization header, validates token and returns a context with claims.
func (m *Authenticate) AuthFunc(ctx context.Context) (context.Context, error) {
	var tokenString string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if authHeaders := md.Get("authorization"); len(authHeaders) > 0 {
			tokenString = strings.TrimPrefix(authHeaders[0], "Bearer ")
		}
	}

	if tokenString == "" {
		return nil, status.Error(codes.Unauthenticated, "missing authorization token")
	}

	claims, err := m.validator.ValidateAccessToken(ctx, tokenString)
	if err != nil {
		m.logger.Debug("Authenticate: access token rejected", "kind", model.KindOf(err).String())
		if errors.Is(err, model.ErrExpiredToken) {
			return nil, status.Error(codes.Unauthenticated, "access token expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid access token")
	}

	return m.contextManager.SetClaimsToContext(ctx, claims), nil
}
