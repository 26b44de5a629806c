package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"jazzcash-gateway/internal/config"
	"jazzcash-gateway/internal/database"
	awsinfra "jazzcash-gateway/internal/infrastructure/aws"
	"jazzcash-gateway/internal/jazzcash"
	"jazzcash-gateway/internal/lock"
	"jazzcash-gateway/internal/logger"
	"jazzcash-gateway/internal/repo"
	"jazzcash-gateway/internal/server"
	"jazzcash-gateway/internal/service"
	"jazzcash-gateway/internal/storefront"
	"jazzcash-gateway/internal/worker"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync() //nolint:errcheck

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// AWS is only needed for the password secret and payment events.
	var awsCfg *aws.Config
	if cfg.Gateway.PasswordSecretID != "" || cfg.EventsTopicARN != "" {
		c, err := awsinfra.LoadConfig(ctx)
		if err != nil {
			zl.Fatal("Failed to load AWS config", zap.Error(err))
		}
		awsCfg = &c
	}

	var secrets config.SecretGetter
	if awsCfg != nil && cfg.Gateway.PasswordSecretID != "" {
		secrets = awsinfra.NewSecretsClient(*awsCfg)
	}
	if err := cfg.ResolveSecrets(ctx, secrets); err != nil {
		zl.Fatal("Failed to resolve gateway credentials", zap.Error(err))
	}

	dbService, err := database.New(cfg.Database)
	if err != nil {
		zl.Fatal("Failed to open database", zap.Error(err))
	}
	defer dbService.Close() //nolint:errcheck
	db := dbService.DB()

	if err := database.Migrate(db); err != nil {
		zl.Fatal("Failed to migrate database", zap.Error(err))
	}

	locker := lock.NewLocal()
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			zl.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer client.Close() //nolint:errcheck
		locker = lock.NewRedis(client, "jazzcash:lock:", 30*time.Second)
		zl.Info("Using redis transaction locks")
	}

	events := service.NoopPublisher()
	if awsCfg != nil && cfg.EventsTopicARN != "" {
		events = awsinfra.NewEventPublisher(*awsCfg, cfg.EventsTopicARN)
	}

	orderRepo := repo.NewOrderRepo(db)
	noteRepo := repo.NewNoteRepo(db)
	callbackRepo := repo.NewCallbackRepo(db)

	signer := jazzcash.NewSigner(cfg.Gateway, time.Now)
	checkoutService := service.NewCheckoutService(db, orderRepo, signer, cfg.Gateway, zl)
	callbackService := service.NewCallbackService(
		db,
		orderRepo,
		noteRepo,
		callbackRepo,
		locker,
		storefront.NewURLs(cfg.Store),
		events,
		cfg.Gateway,
		zl,
	)

	reconciler := worker.NewReconciliationWorker(
		db,
		orderRepo,
		noteRepo,
		callbackRepo,
		locker,
		nil, // no status inquiry against the live processor yet
		events,
		cfg.Gateway.PendingExpiry,
		cfg.WorkerInterval,
		zl,
	)
	go reconciler.Run(ctx)

	handler := server.NewHandler(checkoutService, callbackService, dbService, cfg.Gateway, zl)
	srv := server.NewHTTPServer(cfg.Port, server.NewRouter(handler, cfg.Store, zl))

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Server failed", zap.Error(err))
		}
	}()

	zl.Info("JazzCash gateway started",
		zap.String("port", cfg.Port),
		zap.Bool("enabled", cfg.Gateway.Enabled),
		zap.Bool("test_mode", cfg.Gateway.TestMode),
	)
	<-ctx.Done()
	zl.Info("Shutting down JazzCash gateway...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server forced to shutdown", zap.Error(err))
		return
	}
	zl.Info("Server exited cleanly")
}
