package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/pressdeck/engine/internal/api"
	"github.com/pressdeck/engine/internal/api/handlers"
	"github.com/pressdeck/engine/internal/queue/tasks"
	"github.com/pressdeck/engine/internal/reconcile"
	"github.com/pressdeck/engine/internal/repository"
	"github.com/pressdeck/engine/internal/services"
	"github.com/pressdeck/engine/pkg/config"
	"github.com/pressdeck/engine/pkg/database"
	"github.com/pressdeck/engine/pkg/logger"
)

// @title           Pressdeck Engine API
// @version         1.0
// @description     Managed WordPress hosting orchestration: Hetzner servers, Dokploy deployments.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg := config.MustLoad()

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("starting pressdeck engine api",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
	)

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		log.Warn("JWT_SECRET not set, using default (INSECURE for production)")
		jwtSecret = []byte("change-me-in-production-please")
	}

	userRepo := repository.NewUserRepository(db)
	credRepo := repository.NewCredentialRepository(db)
	serverRepo := repository.NewServerRepository(db)
	deployRepo := repository.NewDeploymentRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer asynqClient.Close()

	factory := reconcile.NewAdapterFactory()
	policy := reconcile.Policy{Base: cfg.ReconcileBackoffBase, Cap: cfg.ReconcileBackoffCap, Jitter: 0.2}
	scheduler := reconcile.NewScheduler(
		taskRepo,
		tasks.NewAsynqEnqueuer(asynqClient),
		policy,
		cfg.ReconcilePollInterval,
		cfg.ReconcileMaxAttempts,
		reconcile.NewServerReconciler(serverRepo, credRepo, factory),
		reconcile.NewDeploymentReconciler(deployRepo, serverRepo, credRepo, factory),
	)

	authSvc := services.NewAuthService(userRepo, jwtSecret)
	credSvc := services.NewCredentialService(credRepo, factory)
	serverSvc := services.NewServerService(serverRepo, credRepo, scheduler)
	deploySvc := services.NewDeploymentService(deployRepo, serverRepo, credRepo, scheduler)

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("failed to access sql db", zap.Error(err))
	}

	router := api.NewRouter(api.Dependencies{
		HMACSecret:         jwtSecret,
		AuthHandler:        handlers.NewAuthHandler(authSvc),
		CredentialsHandler: handlers.NewCredentialsHandler(credSvc),
		ServersHandler:     handlers.NewServersHandler(serverSvc),
		DeploymentsHandler: handlers.NewDeploymentsHandler(deploySvc),
		HealthHandler:      handlers.NewHealthHandler(sqlDB.Ping),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}
}
