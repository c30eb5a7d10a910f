package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hszk-dev/countrytube/internal/catalog"
	"github.com/hszk-dev/countrytube/internal/domain/model"
	"github.com/hszk-dev/countrytube/internal/domain/repository"
	"github.com/hszk-dev/countrytube/internal/infrastructure/metrics"
	"github.com/hszk-dev/countrytube/internal/logging"
)

var (
	// ErrUpstreamSeedFailure is returned when the catalog could not be seeded.
	// The previously seeded catalog stays in effect.
	ErrUpstreamSeedFailure = errors.New("upstream seed failure")
)

// SeedOutput summarizes a completed seed.
type SeedOutput struct {
	Origin    string
	Countries int
	Videos    int
	Dropped   int
	Duration  time.Duration
}

// CatalogService defines the operations that populate and describe the video store.
type CatalogService interface {
	// Seed replaces the whole catalog with the origin's current data.
	// Seeding is all-or-nothing and does not touch the page cache.
	Seed(ctx context.Context) (*SeedOutput, error)

	// Restore loads the persisted catalog into the store.
	// Returns repository.ErrCatalogEmpty if nothing was persisted yet or no
	// repository is configured.
	Restore(ctx context.Context) error

	// SupportedCountries returns the metadata of every known country by code.
	SupportedCountries(ctx context.Context) map[string]model.Country
}

type catalogService struct {
	origin repository.Origin
	repo   repository.CatalogRepository
	store  *catalog.Store

	// mu serializes seeds so persistence and the store swap happen in the same order.
	mu sync.Mutex
}

// NewCatalogService creates a new CatalogService. repo may be nil, in which
// case the catalog only lives in memory. origin may be nil for processes that
// only Restore.
func NewCatalogService(
	origin repository.Origin,
	repo repository.CatalogRepository,
	store *catalog.Store,
) CatalogService {
	return &catalogService{
		origin: origin,
		repo:   repo,
		store:  store,
	}
}

func (s *catalogService) Seed(ctx context.Context) (*SeedOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.origin == nil {
		return nil, fmt.Errorf("%w: no origin configured", ErrUpstreamSeedFailure)
	}

	logger := logging.FromContext(ctx)
	start := time.Now()
	name := s.origin.Name()

	out, err := s.seed(ctx, name)
	if err != nil {
		metrics.SeedsTotal.WithLabelValues(name, metrics.SeedError).Inc()
		logger.Error("catalog seed failed",
			"origin", name,
			"error", err,
		)
		return nil, err
	}

	out.Duration = time.Since(start)
	metrics.SeedsTotal.WithLabelValues(name, metrics.SeedSuccess).Inc()
	logger.Info("catalog seeded",
		"origin", name,
		"countries", out.Countries,
		"videos", out.Videos,
		"dropped_duplicates", out.Dropped,
		"duration", out.Duration,
	)
	return out, nil
}

func (s *catalogService) seed(ctx context.Context, name string) (*SeedOutput, error) {
	seeds, err := s.origin.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch from %s: %w", ErrUpstreamSeedFailure, name, err)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: %s returned no countries", ErrUpstreamSeedFailure, name)
	}

	catalogs, dropped, err := buildCatalogs(ctx, seeds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamSeedFailure, err)
	}

	if s.repo != nil {
		if err := s.repo.ReplaceAll(ctx, catalogs); err != nil {
			return nil, fmt.Errorf("%w: persist catalog: %w", ErrUpstreamSeedFailure, err)
		}
	}

	snap := s.store.Replace(catalogs)
	recordCatalogSize(snap)

	return &SeedOutput{
		Origin:    name,
		Countries: snap.Len(),
		Videos:    snap.VideoCount(),
		Dropped:   dropped,
	}, nil
}

// buildCatalogs validates seeds in origin order. Repeated countries and
// repeated video IDs keep their first occurrence.
func buildCatalogs(ctx context.Context, seeds []repository.SeedCountry) ([]*model.CountryCatalog, int, error) {
	logger := logging.FromContext(ctx)

	catalogs := make([]*model.CountryCatalog, 0, len(seeds))
	seen := make(map[string]struct{}, len(seeds))
	total := 0
	for _, seed := range seeds {
		c, dropped, err := model.NewCountryCatalog(seed.Country, seed.Videos)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid country %q: %w", seed.Country.Code, err)
		}
		if _, dup := seen[c.Country.Code]; dup {
			logger.Warn("duplicate country in seed, keeping first", "country", c.Country.Code)
			continue
		}
		seen[c.Country.Code] = struct{}{}

		if len(dropped) > 0 {
			logger.Warn("dropped duplicate video ids",
				"country", c.Country.Code,
				"count", len(dropped),
				"ids", dropped,
			)
			total += len(dropped)
		}
		catalogs = append(catalogs, c)
	}
	return catalogs, total, nil
}

func (s *catalogService) Restore(ctx context.Context) error {
	if s.repo == nil {
		return repository.ErrCatalogEmpty
	}

	catalogs, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	s.mu.Lock()
	snap := s.store.Replace(catalogs)
	s.mu.Unlock()

	recordCatalogSize(snap)
	logging.FromContext(ctx).Info("catalog restored",
		"countries", snap.Len(),
		"videos", snap.VideoCount(),
	)
	return nil
}

func (s *catalogService) SupportedCountries(_ context.Context) map[string]model.Country {
	snap := s.store.Snapshot()
	out := make(map[string]model.Country, snap.Len())
	for _, c := range snap.Catalogs() {
		out[c.Country.Code] = c.Country
	}
	return out
}

func recordCatalogSize(snap *catalog.Snapshot) {
	metrics.CatalogSize.WithLabelValues(metrics.UnitCountries).Set(float64(snap.Len()))
	metrics.CatalogSize.WithLabelValues(metrics.UnitVideos).Set(float64(snap.VideoCount()))
}
