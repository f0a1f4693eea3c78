package handler

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dtroode/pizzeria-auth/internal/api/grpc/authv1"
	"github.com/dtroode/pizzeria-auth/internal/logger"
	"github.com/dtroode/pizzeria-auth/internal/model"
)

// TokenService defines the token lifecycle operations exposed over gRPC.
type TokenService interface {
	Login(ctx context.Context, credential model.Credential) (model.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// Auth handles gRPC endpoints for authentication.
type Auth struct {
	authv1.UnimplementedAuthServer
	tokenService   TokenService
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuth creates a new Auth handler.
func NewAuth(tokenService TokenService, contextManager model.ContextManager, logger *logger.Logger) *Auth {
	return &Auth{
		tokenService:   tokenService,
		contextManager: contextManager,
		logger:         logger,
	}
}

// Login verifies credentials and issues a fresh token set.
func (h *Auth) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h.logger.Debug("Auth handler: processing login request")

	email, password, err := authv1.ParseLoginRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "email and password are required")
	}

	tokens, err := h.tokenService.Login(ctx, model.Credential{Email: email, Password: password})
	if err != nil {
		h.logger.Warn("Auth handler: login failed",
			"kind", model.KindOf(err).String())
		return nil, handleError(err)
	}

	h.logger.Info("Auth handler: login completed")

	return authv1.StringFields(map[string]string{
		authv1.FieldAccessToken:  tokens.AccessToken,
		authv1.FieldRefreshToken: tokens.RefreshToken,
		authv1.FieldCSRFToken:    tokens.CSRFToken,
	}), nil
}

// Refresh exchanges a refresh token for a new access and refresh token.
func (h *Auth) Refresh(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	h.logger.Debug("Auth handler: processing token refresh request")

	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh token is required")
	}

	pair, err := h.tokenService.Refresh(ctx, req.GetValue())
	if err != nil {
		h.logger.Warn("Auth handler: token refresh failed",
			"kind", model.KindOf(err).String())
		return nil, handleError(err)
	}

	h.logger.Info("Auth handler: token refresh successful")

	return authv1.StringFields(map[string]string{
		authv1.FieldAccessToken:  pair.AccessToken,
		authv1.FieldRefreshToken: pair.RefreshToken,
	}), nil
}

// Revoke revokes a refresh token. Unknown and already revoked tokens succeed.
func (h *Auth) Revoke(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	h.logger.Debug("Auth handler: processing token revoke request")

	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh token is required")
	}

	if err := h.tokenService.Revoke(ctx, req.GetValue()); err != nil {
		h.logger.Error("Auth handler: token revoke failed",
			"kind", model.KindOf(err).String())
		return nil, handleError(err)
	}

	h.logger.Info("Auth handler: token revoke successful")

	return &emptypb.Empty{}, nil
}

// Me returns the verified claims placed in the context by the auth interceptor.
func (h *Auth) Me(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	claims, ok := h.contextManager.GetClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing authorization token")
	}

	roles := make([]any, 0, len(claims.Roles))
	for _, role := range claims.Roles {
		roles = append(roles, role)
	}

	out, err := structpb.NewStruct(map[string]any{
		authv1.FieldUserID:    claims.UserID.String(),
		authv1.FieldEmail:     claims.Email,
		authv1.FieldRoles:     roles,
		authv1.FieldExpiresAt: claims.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error("Auth handler: failed to encode claims", "error", err.Error())
		return nil, status.Error(codes.Internal, "internal server error")
	}

	return out, nil
}
