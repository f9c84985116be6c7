package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/thidima/fedlink/internal/account"
	"github.com/thidima/fedlink/internal/api"
	"github.com/thidima/fedlink/internal/config"
	"github.com/thidima/fedlink/internal/crypto"
	"github.com/thidima/fedlink/internal/logging"
	"github.com/thidima/fedlink/internal/oauth"
	"github.com/thidima/fedlink/internal/session"
	"github.com/thidima/fedlink/internal/signin"
	"github.com/thidima/fedlink/internal/store"
	"github.com/thidima/fedlink/internal/tenant"
	"github.com/thidima/fedlink/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var queries store.Querier
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		queries = store.NewMemory()
	default:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		if err := store.Migrate(ctx, pool); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		queries = store.New(pool)
	}

	enc, err := crypto.NewEncryptor(cfg.RootEncryptionKey)
	if err != nil {
		logger.Fatal("failed to initialize encryptor", zap.Error(err))
	}

	providers, err := oauth.ProvidersFromConfig(cfg, logger.Named("oauth"))
	if err != nil {
		logger.Fatal("failed to configure providers", zap.Error(err))
	}

	states := oauth.NewStateStore(queries, cfg.StateTTL, nil)
	w := worker.New(queries, states.TTL(), cfg.SweepInterval, logger.Named("worker"))

	tenantSvc := tenant.NewService(queries, enc)
	svc := signin.NewService(
		providers,
		states,
		account.NewResolver(queries, logger.Named("account")),
		account.NewLinker(queries, logger.Named("account")),
		session.NewIssuer(queries, cfg.SessionTTL, nil),
		logger.Named("signin"),
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.AccessLog(logger.Named("http")), gin.Recovery())
	api.RegisterRoutes(router, api.NewHandler(svc, tenantSvc, cfg.PublicBaseURL, logger.Named("api")), tenantSvc, cfg.AdminToken, logger.Named("tenant"))

	switch cfg.Mode {
	case "worker":
		logger.Info("starting in worker-only mode")
		w.Start(ctx) // blocks until ctx cancelled
	case "api":
		// API-only: sweep from a separate worker process.
		logger.Info("starting in api-only mode", zap.Strings("providers", providers.Names()))
		if err := router.Run(":" + cfg.Port); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	default:
		// Default: run both API server and sweeper in the same process.
		go w.Start(ctx)

		logger.Info("starting", zap.String("port", cfg.Port), zap.Strings("providers", providers.Names()))
		if err := router.Run(":" + cfg.Port); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}
}
