package router

import (
	"context"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/selector"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/dtroode/pizzeria-auth/internal/api/grpc/authv1"
	"github.com/dtroode/pizzeria-auth/internal/api/grpc/handler"
	"github.com/dtroode/pizzeria-auth/internal/api/grpc/middleware"
	"github.com/dtroode/pizzeria-auth/internal/logger"
	"github.com/dtroode/pizzeria-auth/internal/model"
)

// Router wires handlers and interceptors into a gRPC server.
type Router struct {
	tokenService   handler.TokenService
	validator      middleware.AccessTokenValidator
	contextManager model.ContextManager
	logger         *logger.Logger
}

// New creates new gRPC Router instance.
func New(
	tokenService handler.TokenService,
	validator middleware.AccessTokenValidator,
	contextManager model.ContextManager,
	logger *logger.Logger,
) *Router {
	return &Router{
		tokenService:   tokenService,
		validator:      validator,
		contextManager: contextManager,
		logger:         logger,
	}
}

// requiresAuth selects methods that need a bearer access token.
func requiresAuth(_ context.Context, c interceptors.CallMeta) bool {
	return c.FullMethod() == authv1.Auth_Me_FullMethodName
}

// Register builds the gRPC server with recovery, request logging and
// authentication interceptors, and registers the auth and health services.
func (r *Router) Register() *grpc.Server {
	logging := middleware.NewLogging(r.logger)
	authenticate := middleware.NewAuthenticate(r.validator, r.contextManager, r.logger)

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recovery.UnaryServerInterceptor(recovery.WithRecoveryHandler(r.recoverPanic)),
			logging.HandleGRPC,
			selector.UnaryServerInterceptor(
				auth.UnaryServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(requiresAuth),
			),
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(recovery.WithRecoveryHandler(r.recoverPanic)),
		),
	)

	authv1.RegisterAuthServer(s, handler.NewAuth(r.tokenService, r.contextManager, r.logger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(authv1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, healthServer)

	return s
}

func (r *Router) recoverPanic(p any) error {
	r.logger.Error("Router: recovered from panic", "panic", p)
	return status.Error(codes.Internal, "internal server error")
}
