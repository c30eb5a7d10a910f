package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/hszk-dev/countrytube/internal/catalog"
	"github.com/hszk-dev/countrytube/internal/config"
	"github.com/hszk-dev/countrytube/internal/domain/repository"
	"github.com/hszk-dev/countrytube/internal/infrastructure/cache"
	"github.com/hszk-dev/countrytube/internal/infrastructure/postgres"
	"github.com/hszk-dev/countrytube/internal/infrastructure/queue"
	"github.com/hszk-dev/countrytube/internal/logging"
	"github.com/hszk-dev/countrytube/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.Setup(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})

	// The worker shares pages and catalogs with the API through Redis and
	// PostgreSQL; an in-process cache would warm nothing the API can read.
	if cfg.Cache.Backend != config.CacheBackendRedis {
		return fmt.Errorf("worker requires CACHE_BACKEND=%s", config.CacheBackendRedis)
	}
	if !cfg.Database.Enabled {
		return errors.New("worker requires POSTGRES_ENABLED=true")
	}

	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")

	queueCfg := queue.DefaultClientConfig(cfg.RabbitMQ.URL())
	queueCfg.TaskTTL = cfg.Cache.TTL
	queueClient, err := queue.NewClient(ctx, queueCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	store := catalog.NewStore()
	catalogSvc := usecase.NewCatalogService(nil, pgClient.CatalogRepository(), store)
	if err := catalogSvc.Restore(ctx); err != nil {
		if !errors.Is(err, repository.ErrCatalogEmpty) {
			return fmt.Errorf("failed to restore catalog: %w", err)
		}
		logger.Info("no persisted catalog yet, restoring on first task")
	}

	prefetchSvc := usecase.NewPrefetchService(
		store,
		catalogSvc,
		cache.NewRedisPageCache(redisClient),
		cache.NewRedisDispatchState(redisClient),
		usecase.PrefetchServiceConfig{
			CacheTTL:   cfg.Cache.TTL,
			MaxRetries: cfg.Prefetch.MaxRetries,
		},
	)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cancelling consumeCtx stops the delivery loop; the task in hand runs
	// to completion on a context detached from it.
	consumeCtx, stopConsuming := context.WithCancel(ctx)
	defer stopConsuming()

	var g errgroup.Group
	g.Go(func() error {
		logger.Info("starting worker, consuming prefetch tasks")
		err := queueClient.ConsumePrefetchTasks(consumeCtx, func(ctx context.Context, task repository.PrefetchTask) error {
			return prefetchSvc.ProcessTask(context.WithoutCancel(ctx), task)
		})
		if err != nil && consumeCtx.Err() == nil {
			return fmt.Errorf("consumer error: %w", err)
		}
		return nil
	})

	consumerDone := make(chan error, 1)
	go func() { consumerDone <- g.Wait() }()

	select {
	case err := <-consumerDone:
		return err
	case <-sigCtx.Done():
		logger.Info("shutting down worker")
	}

	stopConsuming()
	select {
	case <-consumerDone:
		logger.Info("in-flight task completed")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		logger.Warn("shutdown timeout exceeded, abandoning in-flight task")
	}

	logger.Info("worker stopped")
	return nil
}
