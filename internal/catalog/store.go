// Package catalog holds the in-memory video store. The store is replaced
// wholesale by seeding and read concurrently by request handlers.
package catalog

import (
	"sort"
	"sync/atomic"

	"github.com/hszk-dev/countrytube/internal/domain/model"
	"github.com/hszk-dev/countrytube/internal/domain/repository"
)

// Snapshot is an immutable view of every country catalog.
type Snapshot struct {
	catalogs map[string]*model.CountryCatalog
	codes    []string
	videos   int
}

var emptySnapshot = &Snapshot{catalogs: map[string]*model.CountryCatalog{}}

// NewSnapshot builds a snapshot from catalogs. Later catalogs with the same
// code replace earlier ones.
func NewSnapshot(catalogs []*model.CountryCatalog) *Snapshot {
	s := &Snapshot{catalogs: make(map[string]*model.CountryCatalog, len(catalogs))}
	for _, c := range catalogs {
		if prev, ok := s.catalogs[c.Country.Code]; ok {
			s.videos -= prev.Total()
		} else {
			s.codes = append(s.codes, c.Country.Code)
		}
		s.catalogs[c.Country.Code] = c
		s.videos += c.Total()
	}
	sort.Strings(s.codes)
	return s
}

// Catalog returns the catalog of code, or ErrCountryNotFound.
func (s *Snapshot) Catalog(code string) (*model.CountryCatalog, error) {
	c, ok := s.catalogs[code]
	if !ok {
		return nil, repository.ErrCountryNotFound
	}
	return c, nil
}

// Countries returns the known country codes in sorted order.
// The returned slice must not be modified.
func (s *Snapshot) Countries() []string {
	return s.codes
}

// Catalogs returns every catalog in country code order.
func (s *Snapshot) Catalogs() []*model.CountryCatalog {
	out := make([]*model.CountryCatalog, 0, len(s.codes))
	for _, code := range s.codes {
		out = append(out, s.catalogs[code])
	}
	return out
}

// Len returns the number of countries.
func (s *Snapshot) Len() int {
	return len(s.codes)
}

// VideoCount returns the number of videos across all countries.
func (s *Snapshot) VideoCount() int {
	return s.videos
}

// Store owns the current snapshot. Readers never observe a partially
// replaced catalog: Replace builds the new snapshot first and swaps a pointer.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(emptySnapshot)
	return s
}

// Snapshot returns the current snapshot. Use a single snapshot for all reads
// that belong to one request.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Replace swaps in a snapshot built from catalogs and returns it.
func (s *Store) Replace(catalogs []*model.CountryCatalog) *Snapshot {
	snap := NewSnapshot(catalogs)
	s.current.Store(snap)
	return snap
}

// Catalog returns the catalog of code from the current snapshot.
func (s *Store) Catalog(code string) (*model.CountryCatalog, error) {
	return s.Snapshot().Catalog(code)
}

// Countries returns the country codes of the current snapshot.
func (s *Store) Countries() []string {
	return s.Snapshot().Countries()
}
