package cache

import (
	"context"
	"time"

	"github.com/hszk-dev/countrytube/internal/domain/model"
)

// PageCache defines the interface for caching computed pages.
// Implementations should handle serialization/deserialization transparently.
type PageCache interface {
	// Get retrieves a page from cache.
	// Returns nil, nil if the page is not found in cache (cache miss).
	// The returned page is owned by the caller.
	Get(ctx context.Context, q model.PageQuery) (*model.PageResult, error)

	// Set stores a page in cache with the specified TTL. A zero TTL stores the
	// page without expiry. The dispatch flag is never stored.
	Set(ctx context.Context, q model.PageQuery, page *model.PageResult, ttl time.Duration) error

	// Clear discards every cached page at once.
	Clear(ctx context.Context) error
}

// DispatchState tracks which countries already had a prefetch dispatched
// since the last reset. Each reset starts a new epoch.
type DispatchState interface {
	// Claim atomically marks country as dispatched. It returns true only for
	// the first caller since the last Reset.
	Claim(ctx context.Context, country string) (bool, error)

	// Epoch returns the number of resets seen so far. Warm-up tasks carry the
	// epoch they were dispatched in and are discarded once it has moved.
	Epoch(ctx context.Context) (int64, error)

	// Reset forgets every claim and advances the epoch.
	Reset(ctx context.Context) error
}

// storedCopy returns the form of page that is kept in a cache.
func storedCopy(page *model.PageResult) *model.PageResult {
	c := page.Clone()
	c.DispatchedPrefetcher = false
	return c
}
