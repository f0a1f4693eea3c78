package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"google.golang.org/grpc/reflection"

	grpcctx "github.com/dtroode/pizzeria-auth/internal/api/grpc/context"
	"github.com/dtroode/pizzeria-auth/internal/api/grpc/router"
	grpcServer "github.com/dtroode/pizzeria-auth/internal/api/grpc/server"
	"github.com/dtroode/pizzeria-auth/internal/audit"
	"github.com/dtroode/pizzeria-auth/internal/config"
	"github.com/dtroode/pizzeria-auth/internal/logger"
	"github.com/dtroode/pizzeria-auth/internal/model"
	"github.com/dtroode/pizzeria-auth/internal/repository/memory"
	"github.com/dtroode/pizzeria-auth/internal/repository/postgres"
	"github.com/dtroode/pizzeria-auth/internal/repository/redis"
	"github.com/dtroode/pizzeria-auth/internal/server"
	"github.com/dtroode/pizzeria-auth/internal/service"
	storage "github.com/dtroode/pizzeria-auth/internal/storage/minio"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel, cfg.LogFormat)

	db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to initialize storage", "error", err)
	}
	defer db.Close()

	userRepo := postgres.NewUserRepository(db)
	roleRepo := postgres.NewRoleRepository(db)

	directory, err := service.NewDirectory(userRepo, cfg.Password.BcryptCost, logger)
	if err != nil {
		logger.Fatal("failed to initialize credential directory", "error", err)
	}

	if cfg.Bootstrap.AdminEmail != "" {
		if err := bootstrapAdmin(ctx, directory, userRepo, roleRepo, cfg.Bootstrap); err != nil {
			logger.Fatal("failed to bootstrap admin account", "error", err)
		}
	}

	store, closeStore, err := newRefreshTokenStore(ctx, cfg, db)
	if err != nil {
		logger.Fatal("failed to initialize refresh token store", "error", err, "backend", cfg.Store.Backend)
	}
	defer closeStore()

	sinks := audit.Multi{audit.NewLogSink(logger)}
	if cfg.Audit.ArchiveEnabled {
		storageClient, err := storage.Connect(ctx, storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Fatal("failed to initialize storage client", "error", err)
		}
		sinks = append(sinks, audit.NewArchiveSink(storageClient))
	}

	tokenService, err := service.NewTokenService(service.TokenConfig{
		SigningKey:             cfg.Token.SigningKey,
		Issuer:                 cfg.Token.Issuer,
		Audience:               cfg.Token.Audience,
		AccessTokenLifetime:    cfg.Token.AccessTokenLifetime,
		RefreshTokenLifetime:   cfg.Token.RefreshTokenLifetime,
		MaxActiveRefreshTokens: cfg.Token.MaxActiveRefreshTokens,
	}, service.TokenDeps{
		Store:    store,
		Verifier: directory,
		Roles:    roleRepo,
		Users:    directory,
		Audit:    sinks,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize token service", "error", err)
	}

	grpcServer := registerGRPCServer(logger, tokenService, grpcctx.NewManager(), fmt.Sprintf(":%s", cfg.GRPC.Port))

	var sl model.SecurityLayer

	if cfg.GRPC.EnableHTTPS {
		sl = server.NewTLSListener(cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address(), "store", cfg.Store.Backend)
		err := s.Start(sl)
		if err != nil {
			logger.Error("failed to start server", "error", err)
			stop()
		}
	}(grpcServer)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := grpcServer.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", grpcServer.Address())
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}

func newRefreshTokenStore(ctx context.Context, cfg *config.Config, db *postgres.Connection) (model.RefreshTokenStore, func(), error) {
	switch cfg.Store.Backend {
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		store := redis.NewRefreshTokenRepository(rdb,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithRetention(cfg.Redis.Retention),
		)
		return store, func() { _ = rdb.Close() }, nil
	case "memory":
		return memory.NewRefreshTokenRepository(), func() {}, nil
	default:
		return postgres.NewRefreshTokenRepository(db), func() {}, nil
	}
}

func bootstrapAdmin(
	ctx context.Context,
	directory *service.Directory,
	users model.UserStore,
	roles *postgres.RoleRepository,
	cfg config.Bootstrap,
) error {
	user, err := directory.Register(ctx, model.Credential{Email: cfg.AdminEmail, Password: cfg.AdminPassword})
	if errors.Is(err, model.ErrAlreadyExists) {
		user, err = users.GetByEmail(ctx, service.NormalizeEmail(cfg.AdminEmail))
	}
	if err != nil {
		return err
	}

	return roles.Assign(ctx, user.ID, "admin")
}

func registerGRPCServer(
	logger *logger.Logger,
	tokenService *service.TokenService,
	ctxMgr model.ContextManager,
	addr string,
) *grpcServer.GRPCServer {
	r := router.New(tokenService, tokenService, ctxMgr, logger)
	s := r.Register()

	reflection.Register(s)

	return grpcServer.NewGRPCServer(s, addr)
}
