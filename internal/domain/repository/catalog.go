package repository

import (
	"context"

	"github.com/hszk-dev/countrytube/internal/domain/model"
)

// CatalogRepository persists the seeded catalog so it survives restarts.
// Implementations should be provided by the infrastructure layer (e.g., PostgreSQL).
type CatalogRepository interface {
	// ReplaceAll atomically replaces every stored catalog with catalogs.
	// On error the previously stored catalogs remain intact.
	ReplaceAll(ctx context.Context, catalogs []*model.CountryCatalog) error

	// LoadAll returns every stored catalog in the order it was stored.
	// Returns ErrCatalogEmpty if nothing has been stored yet.
	LoadAll(ctx context.Context) ([]*model.CountryCatalog, error)
}

// Origin is the upstream source of the country to video mapping.
type Origin interface {
	// Fetch returns the full catalog of every country the origin knows about.
	// Catalogs are returned unvalidated; the caller normalizes them.
	Fetch(ctx context.Context) ([]SeedCountry, error)

	// Name identifies the origin in logs and metrics.
	Name() string
}

// SeedCountry is a country and its ordered videos as delivered by an Origin.
type SeedCountry struct {
	Country model.Country
	Videos  []model.VideoRecord
}
