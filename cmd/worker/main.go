package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pressdeck/engine/internal/queue/tasks"
	"github.com/pressdeck/engine/internal/reconcile"
	"github.com/pressdeck/engine/internal/repository"
	"github.com/pressdeck/engine/pkg/config"
	"github.com/pressdeck/engine/pkg/database"
	"github.com/pressdeck/engine/pkg/logger"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	ctx := context.Background()
	db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}

	credRepo := repository.NewCredentialRepository(db)
	serverRepo := repository.NewServerRepository(db)
	deployRepo := repository.NewDeploymentRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	}
	asynqClient := asynq.NewClient(redisOpt)
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

	// Rebuild the queue from persistent state before accepting new work, so
	// resources caught mid-flight by the last shutdown resume.
	if err := scheduler.Resync(ctx); err != nil {
		log.Fatal("resync failed", zap.Error(err))
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues:      map[string]int{tasks.QueueReconcile: 10},
	})

	mux := asynq.NewServeMux()
	tasks.NewHandler(scheduler).Register(mux)

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("asynq worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
		if err := srv.Run(mux); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.L().Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.L().Error("worker stopped with error", zap.Error(err))
	}

	srv.Shutdown()
}
