package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hszk-dev/countrytube/internal/domain/model"
	"github.com/hszk-dev/countrytube/internal/domain/repository"
)

// mockPageCache provides a configurable in-memory mock for PageCache.
type mockPageCache struct {
	mu      sync.RWMutex
	data    map[model.PageQuery]*model.PageResult
	getFn   func(ctx context.Context, q model.PageQuery) (*model.PageResult, error)
	setFn   func(ctx context.Context, q model.PageQuery, page *model.PageResult, ttl time.Duration) error
	clearFn func(ctx context.Context) error

	setCount atomic.Int32
}

func newMockPageCache() *mockPageCache {
	return &mockPageCache{
		data: make(map[model.PageQuery]*model.PageResult),
	}
}

func (m *mockPageCache) Get(ctx context.Context, q model.PageQuery) (*model.PageResult, error) {
	if m.getFn != nil {
		return m.getFn(ctx, q)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.data[q]; ok {
		return p.Clone(), nil
	}
	return nil, nil
}

func (m *mockPageCache) Set(ctx context.Context, q model.PageQuery, page *model.PageResult, ttl time.Duration) error {
	m.setCount.Add(1)
	if m.setFn != nil {
		return m.setFn(ctx, q, page, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := page.Clone()
	stored.DispatchedPrefetcher = false
	m.data[q] = stored
	return nil
}

func (m *mockPageCache) Clear(ctx context.Context) error {
	if m.clearFn != nil {
		return m.clearFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[model.PageQuery]*model.PageResult)
	return nil
}

func (m *mockPageCache) has(q model.PageQuery) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[q]
	return ok
}

// mockDispatchState provides a configurable mock for DispatchState.
type mockDispatchState struct {
	claimFn func(ctx context.Context, country string) (bool, error)
	epochFn func(ctx context.Context) (int64, error)
	resetFn func(ctx context.Context) error
}

func (m *mockDispatchState) Claim(ctx context.Context, country string) (bool, error) {
	if m.claimFn != nil {
		return m.claimFn(ctx, country)
	}
	return true, nil
}

func (m *mockDispatchState) Epoch(ctx context.Context) (int64, error) {
	if m.epochFn != nil {
		return m.epochFn(ctx)
	}
	return 0, nil
}

func (m *mockDispatchState) Reset(ctx context.Context) error {
	if m.resetFn != nil {
		return m.resetFn(ctx)
	}
	return nil
}

// mockPrefetchQueue provides a configurable mock for PrefetchQueue.
type mockPrefetchQueue struct {
	publishPrefetchTaskFn  func(ctx context.Context, task repository.PrefetchTask) error
	consumePrefetchTasksFn func(ctx context.Context, handler func(ctx context.Context, task repository.PrefetchTask) error) error
}

func (m *mockPrefetchQueue) PublishPrefetchTask(ctx context.Context, task repository.PrefetchTask) error {
	if m.publishPrefetchTaskFn != nil {
		return m.publishPrefetchTaskFn(ctx, task)
	}
	return nil
}

func (m *mockPrefetchQueue) ConsumePrefetchTasks(ctx context.Context, handler func(ctx context.Context, task repository.PrefetchTask) error) error {
	if m.consumePrefetchTasksFn != nil {
		return m.consumePrefetchTasksFn(ctx, handler)
	}
	return nil
}

func (m *mockPrefetchQueue) Close() error {
	return nil
}

// mockOrigin provides a configurable mock for Origin.
type mockOrigin struct {
	fetchFn func(ctx context.Context) ([]repository.SeedCountry, error)
}

func (m *mockOrigin) Fetch(ctx context.Context) ([]repository.SeedCountry, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx)
	}
	return nil, nil
}

func (m *mockOrigin) Name() string {
	return "mock"
}

// mockCatalogRepository provides a configurable mock for CatalogRepository.
type mockCatalogRepository struct {
	replaceAllFn func(ctx context.Context, catalogs []*model.CountryCatalog) error
	loadAllFn    func(ctx context.Context) ([]*model.CountryCatalog, error)
}

func (m *mockCatalogRepository) ReplaceAll(ctx context.Context, catalogs []*model.CountryCatalog) error {
	if m.replaceAllFn != nil {
		return m.replaceAllFn(ctx, catalogs)
	}
	return nil
}

func (m *mockCatalogRepository) LoadAll(ctx context.Context) ([]*model.CountryCatalog, error) {
	if m.loadAllFn != nil {
		return m.loadAllFn(ctx)
	}
	return nil, repository.ErrCatalogEmpty
}

// mockPageService counts computations and delegates to Paginate by default.
type mockPageService struct {
	getPageFn    func(ctx context.Context, c *model.CountryCatalog, offset, pageSize int) (*model.PageResult, error)
	getPageCount atomic.Int32
}

func (m *mockPageService) GetPage(ctx context.Context, c *model.CountryCatalog, offset, pageSize int) (*model.PageResult, error) {
	m.getPageCount.Add(1)
	if m.getPageFn != nil {
		return m.getPageFn(ctx, c, offset, pageSize)
	}
	return model.Paginate(c, offset, pageSize)
}

// mockPrefetchDispatcher provides a configurable mock for PrefetchDispatcher.
type mockPrefetchDispatcher struct {
	dispatchOnceFn func(ctx context.Context, q model.PageQuery, page *model.PageResult) bool
	resetFn        func(ctx context.Context) error
	dispatchCount  atomic.Int32
}

func (m *mockPrefetchDispatcher) DispatchOnce(ctx context.Context, q model.PageQuery, page *model.PageResult) bool {
	m.dispatchCount.Add(1)
	if m.dispatchOnceFn != nil {
		return m.dispatchOnceFn(ctx, q, page)
	}
	return false
}

func (m *mockPrefetchDispatcher) Reset(ctx context.Context) error {
	if m.resetFn != nil {
		return m.resetFn(ctx)
	}
	return nil
}

func (m *mockPrefetchDispatcher) Wait() {}

// mockCatalogService provides a configurable mock for CatalogService.
type mockCatalogService struct {
	seedFn               func(ctx context.Context) (*SeedOutput, error)
	restoreFn            func(ctx context.Context) error
	supportedCountriesFn func(ctx context.Context) map[string]model.Country
	restoreCount         atomic.Int32
}

func (m *mockCatalogService) Seed(ctx context.Context) (*SeedOutput, error) {
	if m.seedFn != nil {
		return m.seedFn(ctx)
	}
	return &SeedOutput{}, nil
}

func (m *mockCatalogService) Restore(ctx context.Context) error {
	m.restoreCount.Add(1)
	if m.restoreFn != nil {
		return m.restoreFn(ctx)
	}
	return nil
}

func (m *mockCatalogService) SupportedCountries(ctx context.Context) map[string]model.Country {
	if m.supportedCountriesFn != nil {
		return m.supportedCountriesFn(ctx)
	}
	return nil
}

// newTestCatalog builds a catalog of n videos with ids v1..vn.
func newTestCatalog(t *testing.T, code string, n int) *model.CountryCatalog {
	t.Helper()
	videos := make([]model.VideoRecord, n)
	for i := range videos {
		id := fmt.Sprintf("v%d", i+1)
		videos[i] = model.VideoRecord{ID: id, Payload: []byte(`{"title":"` + id + `"}`)}
	}
	c, _, err := model.NewCountryCatalog(model.Country{Code: code, Name: code}, videos)
	if err != nil {
		t.Fatalf("NewCountryCatalog failed: %v", err)
	}
	return c
}

func seedCountry(code string, ids ...string) repository.SeedCountry {
	videos := make([]model.VideoRecord, len(ids))
	for i, id := range ids {
		videos[i] = model.VideoRecord{ID: id}
	}
	return repository.SeedCountry{Country: model.Country{Code: code, Name: "Country " + code}, Videos: videos}
}
