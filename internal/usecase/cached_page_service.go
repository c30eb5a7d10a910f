package usecase

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hszk-dev/countrytube/internal/domain/model"
	"github.com/hszk-dev/countrytube/internal/infrastructure/cache"
	"github.com/hszk-dev/countrytube/internal/infrastructure/metrics"
	"github.com/hszk-dev/countrytube/internal/logging"
)

// CachedPageServiceConfig holds configuration for the cached PageService.
type CachedPageServiceConfig struct {
	// CacheTTL is the lifetime of a cached page. Zero keeps pages until cleared.
	CacheTTL time.Duration
}

// DefaultCachedPageServiceConfig returns the default configuration.
func DefaultCachedPageServiceConfig() CachedPageServiceConfig {
	return CachedPageServiceConfig{
		CacheTTL: 20 * time.Minute,
	}
}

// cachedPageService wraps PageService with a page cache and triggers the
// prefetch dispatcher on genuine misses.
type cachedPageService struct {
	delegate   PageService
	cache      cache.PageCache
	dispatcher PrefetchDispatcher
	sfGroup    singleflight.Group

	cacheTTL time.Duration
}

// pageLookup is the shared result of one coalesced lookup.
type pageLookup struct {
	page *model.PageResult
	cold bool
}

// NewCachedPageService creates a PageService that serves repeated queries from pageCache.
func NewCachedPageService(
	delegate PageService,
	pageCache cache.PageCache,
	dispatcher PrefetchDispatcher,
	cfg CachedPageServiceConfig,
) PageService {
	return &cachedPageService{
		delegate:   delegate,
		cache:      pageCache,
		dispatcher: dispatcher,
		cacheTTL:   cfg.CacheTTL,
	}
}

// GetPage serves the page from cache when possible. Concurrent requests for
// the same page share one lookup; every caller that observed a miss asks the
// dispatcher, which lets exactly one of them report a dispatch.
func (s *cachedPageService) GetPage(ctx context.Context, c *model.CountryCatalog, offset, pageSize int) (*model.PageResult, error) {
	q := model.PageQuery{
		Country:  c.Country.Code,
		Offset:   offset,
		PageSize: pageSize,
		Version:  c.Version,
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	result, err, shared := s.sfGroup.Do(q.String(), func() (any, error) {
		return s.getPageWithCache(ctx, c, q)
	})

	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}

	if err != nil {
		return nil, err
	}

	lookup := result.(*pageLookup)
	page := lookup.page.Clone()
	page.DispatchedPrefetcher = false
	if lookup.cold {
		page.DispatchedPrefetcher = s.dispatcher.DispatchOnce(ctx, q, page)
	}
	return page, nil
}

// getPageWithCache implements the cache-aside pattern.
func (s *cachedPageService) getPageWithCache(ctx context.Context, c *model.CountryCatalog, q model.PageQuery) (*pageLookup, error) {
	logger := logging.FromContext(ctx)

	page, err := s.cache.Get(ctx, q)
	if err != nil {
		logger.Warn("cache get failed, computing page",
			"query", q.String(),
			"error", err,
		)
	}
	if page != nil {
		return &pageLookup{page: page}, nil
	}

	page, err = s.delegate.GetPage(ctx, c, q.Offset, q.PageSize)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, q, page, s.cacheTTL); err != nil {
		logger.Warn("failed to cache page",
			"query", q.String(),
			"error", err,
		)
	}

	return &pageLookup{page: page, cold: true}, nil
}
