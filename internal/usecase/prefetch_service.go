package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hszk-dev/countrytube/internal/catalog"
	"github.com/hszk-dev/countrytube/internal/domain/model"
	"github.com/hszk-dev/countrytube/internal/domain/repository"
	"github.com/hszk-dev/countrytube/internal/infrastructure/cache"
	"github.com/hszk-dev/countrytube/internal/infrastructure/metrics"
	"github.com/hszk-dev/countrytube/internal/logging"
)

const (
	// DefaultMaxRetries is the default number of attempts before a task is dropped.
	DefaultMaxRetries = 3
)

// PrefetchServiceConfig holds configuration for PrefetchService.
type PrefetchServiceConfig struct {
	// CacheTTL is the lifetime of warmed pages.
	CacheTTL time.Duration
	// MaxRetries is the number of attempts after which a task is dropped.
	MaxRetries int
}

// DefaultPrefetchServiceConfig returns the default configuration.
func DefaultPrefetchServiceConfig() PrefetchServiceConfig {
	return PrefetchServiceConfig{
		CacheTTL:   20 * time.Minute,
		MaxRetries: DefaultMaxRetries,
	}
}

// PrefetchService defines the warm-up work performed for a dispatched country.
type PrefetchService interface {
	// ProcessTask stores the pages described by task in the page cache.
	// Returns nil on success and for tasks that can never succeed (stale or
	// out of retries). Returns an error for transient failures that should be retried.
	ProcessTask(ctx context.Context, task repository.PrefetchTask) error
}

type prefetchService struct {
	store    *catalog.Store
	catalogs CatalogService
	cache    cache.PageCache
	state    cache.DispatchState

	cacheTTL   time.Duration
	maxRetries int
}

// NewPrefetchService creates a new PrefetchService. catalogs may be nil when
// the store is shared with the process that seeds it. state must be the
// dispatch state the tasks were claimed against; its epoch tells which
// tasks predate the last cache clear.
func NewPrefetchService(
	store *catalog.Store,
	catalogs CatalogService,
	pageCache cache.PageCache,
	state cache.DispatchState,
	cfg PrefetchServiceConfig,
) PrefetchService {
	return &prefetchService{
		store:      store,
		catalogs:   catalogs,
		cache:      pageCache,
		state:      state,
		cacheTTL:   cfg.CacheTTL,
		maxRetries: cfg.MaxRetries,
	}
}

func (s *prefetchService) ProcessTask(ctx context.Context, task repository.PrefetchTask) error {
	logger := logging.FromContext(ctx).With(
		"task_id", task.ID,
		"country", task.Country,
		"retry_count", task.RetryCount,
	)

	if task.RetryCount >= s.maxRetries {
		metrics.PrefetchTasksTotal.WithLabelValues(metrics.TaskDropped).Inc()
		logger.Warn("prefetch task exceeded max retries, dropping")
		return nil
	}

	if task.PageSize <= 0 || task.Offset < 0 {
		metrics.PrefetchTasksTotal.WithLabelValues(metrics.TaskDropped).Inc()
		logger.Warn("malformed prefetch task, dropping",
			"offset", task.Offset,
			"page_size", task.PageSize,
		)
		return nil
	}

	c, err := s.catalogFor(ctx, task)
	if err != nil {
		metrics.PrefetchTasksTotal.WithLabelValues(metrics.TaskFailed).Inc()
		return err
	}
	if c == nil {
		metrics.PrefetchTasksTotal.WithLabelValues(metrics.TaskStale).Inc()
		logger.Info("prefetch task is stale, dropping", "version", task.Version)
		return nil
	}

	warmed, err := s.warm(ctx, c, task)
	if errors.Is(err, errEpochMoved) {
		metrics.PrefetchTasksTotal.WithLabelValues(metrics.TaskStale).Inc()
		logger.Info("prefetch task predates a cache clear, dropping",
			"epoch", task.Epoch,
			"pages_warmed", warmed,
		)
		return nil
	}
	if err != nil {
		metrics.PrefetchTasksTotal.WithLabelValues(metrics.TaskFailed).Inc()
		return err
	}

	metrics.PrefetchTasksTotal.WithLabelValues(metrics.TaskCompleted).Inc()
	logger.Info("prefetch task completed", "pages_warmed", warmed)
	return nil
}

// catalogFor returns the catalog the task was computed from, reloading the
// store once if it is behind. A nil catalog means the task is stale.
func (s *prefetchService) catalogFor(ctx context.Context, task repository.PrefetchTask) (*model.CountryCatalog, error) {
	c, err := s.store.Catalog(task.Country)
	if err == nil && c.Version == task.Version {
		return c, nil
	}
	if s.catalogs == nil {
		return nil, nil
	}

	if err := s.catalogs.Restore(ctx); err != nil {
		if errors.Is(err, repository.ErrCatalogEmpty) {
			return nil, nil
		}
		return nil, fmt.Errorf("restore catalog: %w", err)
	}

	c, err = s.store.Catalog(task.Country)
	if err != nil || c.Version != task.Version {
		return nil, nil
	}
	return c, nil
}

// errEpochMoved reports that the cache was cleared after the task was dispatched.
var errEpochMoved = errors.New("prefetch epoch moved")

// checkEpoch returns errEpochMoved once the dispatch state has been reset
// since task was dispatched.
func (s *prefetchService) checkEpoch(ctx context.Context, task repository.PrefetchTask) error {
	epoch, err := s.state.Epoch(ctx)
	if err != nil {
		return fmt.Errorf("read prefetch epoch: %w", err)
	}
	if epoch != task.Epoch {
		return errEpochMoved
	}
	return nil
}

// warm stores up to task.Pages pages starting at task.Offset, skipping pages
// that are already cached. The epoch is checked before every write so a task
// from before a clear never fills the cleared cache.
func (s *prefetchService) warm(ctx context.Context, c *model.CountryCatalog, task repository.PrefetchTask) (int, error) {
	warmed := 0
	for i := 0; i < task.Pages; i++ {
		offset := task.Offset + i*task.PageSize
		if offset >= c.Total() {
			break
		}

		q := model.PageQuery{
			Country:  c.Country.Code,
			Offset:   offset,
			PageSize: task.PageSize,
			Version:  c.Version,
		}

		cached, err := s.cache.Get(ctx, q)
		if err != nil {
			return warmed, fmt.Errorf("cache get %s: %w", q, err)
		}
		if cached != nil {
			continue
		}

		page, err := model.Paginate(c, offset, task.PageSize)
		if err != nil {
			return warmed, fmt.Errorf("paginate %s: %w", q, err)
		}
		if err := s.checkEpoch(ctx, task); err != nil {
			return warmed, err
		}
		if err := s.cache.Set(ctx, q, page, s.cacheTTL); err != nil {
			return warmed, fmt.Errorf("cache set %s: %w", q, err)
		}
		warmed++
		metrics.PrefetchPagesWarmedTotal.Inc()
	}
	return warmed, nil
}
