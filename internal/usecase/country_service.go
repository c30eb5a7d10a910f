package usecase

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hszk-dev/countrytube/internal/catalog"
	"github.com/hszk-dev/countrytube/internal/domain/model"
	"github.com/hszk-dev/countrytube/internal/domain/repository"
	"github.com/hszk-dev/countrytube/internal/infrastructure/cache"
	"github.com/hszk-dev/countrytube/internal/logging"
)

// AllCountries is the selector that expands to every known country.
const AllCountries = "ALL"

// ListVideosInput contains the parameters of a listing request.
type ListVideosInput struct {
	// Country is a country code or AllCountries. Empty means AllCountries.
	Country    string
	PageToken  int
	MaxResults int
}

// ListVideosOutput holds one page per selected country, in country code order.
type ListVideosOutput struct {
	Data []*model.PageResult `json:"data"`
}

// CountryService coordinates listing requests across the store, the page
// cache and the prefetch dispatcher.
type CountryService interface {
	// ListVideos returns the page at PageToken of every selected country.
	// An unknown country yields no pages rather than an error.
	ListVideos(ctx context.Context, input ListVideosInput) (*ListVideosOutput, error)

	// ClearCache discards every cached page and re-arms the prefetch dispatcher.
	ClearCache(ctx context.Context) error
}

// CountryServiceConfig holds configuration for CountryService.
type CountryServiceConfig struct {
	// MaxConcurrency bounds the countries resolved in parallel for one request.
	MaxConcurrency int
}

// DefaultCountryServiceConfig returns the default configuration.
func DefaultCountryServiceConfig() CountryServiceConfig {
	return CountryServiceConfig{
		MaxConcurrency: 8,
	}
}

type countryService struct {
	store      *catalog.Store
	pages      PageService
	cache      cache.PageCache
	dispatcher PrefetchDispatcher

	maxConcurrency int
}

// NewCountryService creates a new CountryService instance.
func NewCountryService(
	store *catalog.Store,
	pages PageService,
	pageCache cache.PageCache,
	dispatcher PrefetchDispatcher,
	cfg CountryServiceConfig,
) CountryService {
	return &countryService{
		store:          store,
		pages:          pages,
		cache:          pageCache,
		dispatcher:     dispatcher,
		maxConcurrency: cfg.MaxConcurrency,
	}
}

func (s *countryService) ListVideos(ctx context.Context, input ListVideosInput) (*ListVideosOutput, error) {
	if input.MaxResults <= 0 {
		return nil, model.ErrInvalidPageSize
	}
	if input.PageToken < 0 {
		return nil, model.ErrInvalidOffset
	}

	catalogs, err := s.selectCatalogs(input.Country)
	if err != nil {
		return nil, err
	}

	data := make([]*model.PageResult, len(catalogs))
	g, gctx := errgroup.WithContext(ctx)
	if s.maxConcurrency > 0 {
		g.SetLimit(s.maxConcurrency)
	}
	for i, c := range catalogs {
		g.Go(func() error {
			page, err := s.pages.GetPage(gctx, c, input.PageToken, input.MaxResults)
			if err != nil {
				return fmt.Errorf("country %s: %w", c.Country.Code, err)
			}
			data[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &ListVideosOutput{Data: data}, nil
}

// selectCatalogs resolves the selector against a single store snapshot.
func (s *countryService) selectCatalogs(selector string) ([]*model.CountryCatalog, error) {
	snap := s.store.Snapshot()

	code := model.NormalizeCountryCode(selector)
	if code == "" || code == AllCountries {
		return snap.Catalogs(), nil
	}

	c, err := snap.Catalog(code)
	if err != nil {
		if errors.Is(err, repository.ErrCountryNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return []*model.CountryCatalog{c}, nil
}

func (s *countryService) ClearCache(ctx context.Context) error {
	// Advance the epoch first so warm-up tasks still queued from before stop
	// writing before the cache is emptied.
	var errs []error
	if err := s.dispatcher.Reset(ctx); err != nil {
		errs = append(errs, fmt.Errorf("reset prefetch state: %w", err))
	}
	if err := s.cache.Clear(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear page cache: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	logging.FromContext(ctx).Info("page cache cleared")
	return nil
}
