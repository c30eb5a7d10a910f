package origin

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/hszk-dev/countrytube/internal/domain/repository"
)

//go:embed fixtures/countries.yaml
var defaultFixture []byte

// StaticOrigin serves a catalog document from a file, or the embedded
// six-country fixture when no path is configured.
type StaticOrigin struct {
	path string
}

// Compile-time verification that StaticOrigin implements repository.Origin.
var _ repository.Origin = (*StaticOrigin)(nil)

// NewStaticOrigin creates an origin reading path on every Fetch. An empty
// path selects the embedded fixture.
func NewStaticOrigin(path string) *StaticOrigin {
	return &StaticOrigin{path: path}
}

// Name identifies the origin in logs and metrics.
func (o *StaticOrigin) Name() string {
	return "static"
}

// Fetch parses the document. The file is re-read each time so an edited
// fixture is picked up by the next seed.
func (o *StaticOrigin) Fetch(ctx context.Context) ([]repository.SeedCountry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if o.path == "" {
		return DefaultCountries()
	}

	data, err := os.ReadFile(o.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseDocument(bytes.NewReader(data))
}

// DefaultCountries returns the embedded fixture.
func DefaultCountries() ([]repository.SeedCountry, error) {
	return ParseDocument(bytes.NewReader(defaultFixture))
}
