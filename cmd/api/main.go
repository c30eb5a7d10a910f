package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/hszk-dev/countrytube/internal/api"
	"github.com/hszk-dev/countrytube/internal/api/handler"
	"github.com/hszk-dev/countrytube/internal/catalog"
	"github.com/hszk-dev/countrytube/internal/config"
	"github.com/hszk-dev/countrytube/internal/domain/repository"
	"github.com/hszk-dev/countrytube/internal/infrastructure/cache"
	"github.com/hszk-dev/countrytube/internal/infrastructure/origin"
	"github.com/hszk-dev/countrytube/internal/infrastructure/postgres"
	"github.com/hszk-dev/countrytube/internal/infrastructure/queue"
	"github.com/hszk-dev/countrytube/internal/infrastructure/storage"
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
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.Setup(logging.Config{Format: cfg.Log.Format, Level: cfg.Log.Level})

	store := catalog.NewStore()
	checks := map[string]handler.HealthCheck{}

	// Page cache and prefetch state
	var (
		pageCache     cache.PageCache
		dispatchState cache.DispatchState
	)
	switch cfg.Cache.Backend {
	case config.CacheBackendRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis.Addr()))

		pageCache = cache.NewRedisPageCache(redisClient)
		dispatchState = cache.NewRedisDispatchState(redisClient)
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	default:
		pageCache = cache.NewMemoryPageCache()
		dispatchState = cache.NewMemoryDispatchState()
	}

	// Catalog persistence
	var catalogRepo repository.CatalogRepository
	if cfg.Database.Enabled {
		pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		defer pgClient.Close()
		logger.Info("connected to PostgreSQL")

		repo := pgClient.CatalogRepository()
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
		catalogRepo = repo
		checks["postgres"] = pgClient.Ping
	}

	catalogOrigin, err := newOrigin(ctx, cfg, checks)
	if err != nil {
		return err
	}
	logger.Info("catalog origin configured", slog.String("origin", catalogOrigin.Name()))

	// Prefetch transport
	var (
		prefetchQueue repository.PrefetchQueue
		localQueue    *queue.LocalQueue
	)
	switch cfg.Prefetch.Transport {
	case config.TransportRabbitMQ:
		queueCfg := queue.DefaultClientConfig(cfg.RabbitMQ.URL())
		queueCfg.TaskTTL = cfg.Cache.TTL
		queueClient, err := queue.NewClient(ctx, queueCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		logger.Info("connected to RabbitMQ")
		prefetchQueue = queueClient
	default:
		localQueue = queue.NewLocalQueue(cfg.Prefetch.QueueSize, cfg.Prefetch.Workers)
		prefetchQueue = localQueue
	}

	// Services
	catalogSvc := usecase.NewCatalogService(catalogOrigin, catalogRepo, store)
	dispatcher := usecase.NewPrefetchDispatcher(dispatchState, prefetchQueue, usecase.PrefetchDispatcherConfig{
		Pages:          cfg.Prefetch.Pages,
		PublishTimeout: cfg.Prefetch.PublishTimeout,
	})
	pageSvc := usecase.NewCachedPageService(usecase.NewPageService(), pageCache, dispatcher, usecase.CachedPageServiceConfig{
		CacheTTL: cfg.Cache.TTL,
	})
	countrySvc := usecase.NewCountryService(store, pageSvc, pageCache, dispatcher, usecase.CountryServiceConfig{
		MaxConcurrency: cfg.Query.MaxConcurrency,
	})

	if catalogRepo != nil {
		if err := catalogSvc.Restore(ctx); err != nil {
			if !errors.Is(err, repository.ErrCatalogEmpty) {
				return fmt.Errorf("failed to restore catalog: %w", err)
			}
			logger.Info("no persisted catalog to restore")
		}
	}
	if cfg.Server.SeedOnStartup {
		if _, err := catalogSvc.Seed(ctx); err != nil {
			logger.Warn("startup seed failed, serving the restored catalog", slog.String("error", err.Error()))
		}
	}

	// In-process warm-up workers
	consumeCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()
	var consumers errgroup.Group
	if localQueue != nil {
		prefetchSvc := usecase.NewPrefetchService(store, nil, pageCache, dispatchState, usecase.PrefetchServiceConfig{
			CacheTTL:   cfg.Cache.TTL,
			MaxRetries: cfg.Prefetch.MaxRetries,
		})
		consumers.Go(func() error {
			return localQueue.ConsumePrefetchTasks(consumeCtx, prefetchSvc.ProcessTask)
		})
	}

	r := api.NewRouter(api.RouterConfig{
		Logger: logger,
		Countries: handler.NewCountryHandler(countrySvc, catalogSvc, handler.CountryHandlerConfig{
			DefaultMaxResults: cfg.Query.DefaultMaxResults,
			MaxPageSize:       cfg.Query.MaxPageSize,
		}),
		Health:  handler.NewHealthHandler(store, checks),
		Metrics: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	// No request can dispatch any more; flush pending publishes, then let
	// the in-process workers drain what is queued.
	dispatcher.Wait()
	if err := prefetchQueue.Close(); err != nil {
		logger.Warn("failed to close prefetch queue", slog.String("error", err.Error()))
	}

	done := make(chan error, 1)
	go func() { done <- consumers.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Warn("prefetch workers stopped with error", slog.String("error", err.Error()))
		}
	case <-shutdownCtx.Done():
		stopConsumers()
		logger.Warn("shutdown timeout exceeded, abandoning queued prefetch tasks")
	}

	logger.Info("server stopped")
	return nil
}

// newOrigin builds the configured catalog origin and registers the health
// check of any service it depends on.
func newOrigin(ctx context.Context, cfg *config.Config, checks map[string]handler.HealthCheck) (repository.Origin, error) {
	switch cfg.Origin.Kind {
	case config.OriginYouTube:
		seeds, err := origin.DefaultCountries()
		if err != nil {
			return nil, fmt.Errorf("failed to load country metadata: %w", err)
		}

		opts := []option.ClientOption{option.WithAPIKey(cfg.YouTube.APIKey)}
		if cfg.YouTube.Endpoint != "" {
			opts = append(opts, option.WithEndpoint(cfg.YouTube.Endpoint))
		}

		yt, err := origin.NewYouTubeOrigin(ctx, origin.YouTubeConfig{
			Regions:   cfg.YouTube.Regions,
			MaxVideos: cfg.YouTube.MaxVideos,
			Countries: origin.Metadata(seeds),
		}, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create YouTube client: %w", err)
		}
		return yt, nil

	case config.OriginSnapshot:
		storageClient, err := storage.NewClient(ctx, storage.ClientConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
		}
		slog.Info("connected to MinIO", slog.String("bucket", storageClient.Bucket()))
		checks["minio"] = storageClient.Ping
		return origin.NewSnapshotOrigin(storageClient, cfg.MinIO.SnapshotKey), nil

	default:
		return origin.NewStaticOrigin(cfg.Origin.FixturePath), nil
	}
}
