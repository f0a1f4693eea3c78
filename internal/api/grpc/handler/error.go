package handler

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/pizzeria-auth/internal/model"
)

func handleError(err error) error {
	switch model.KindOf(err) {
	case model.KindAuthenticationFailed:
		return status.Error(codes.Unauthenticated, "invalid email or password")
	case model.KindExpiredToken:
		return status.Error(codes.Unauthenticated, "refresh token expired")
	case model.KindInvalidToken:
		return status.Error(codes.Unauthenticated, "invalid refresh token")
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}
