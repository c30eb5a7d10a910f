package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hszk-dev/countrytube/internal/domain/model"
	"github.com/hszk-dev/countrytube/internal/infrastructure/metrics"
)

type memoryEntry struct {
	page      *model.PageResult
	expiresAt time.Time
}

// MemoryPageCache implements PageCache in process memory.
// Entries live in a sync.Map so unrelated keys never contend; Clear swaps
// the whole map.
type MemoryPageCache struct {
	entries atomic.Pointer[sync.Map]
	now     func() time.Time
}

// NewMemoryPageCache creates an empty in-memory page cache.
func NewMemoryPageCache() *MemoryPageCache {
	c := &MemoryPageCache{now: time.Now}
	c.entries.Store(new(sync.Map))
	return c
}

// Get retrieves a page. Expired entries are treated as a miss and removed.
func (c *MemoryPageCache) Get(_ context.Context, q model.PageQuery) (*model.PageResult, error) {
	m := c.entries.Load()
	v, ok := m.Load(q)
	if !ok {
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeMemory).Inc()
		return nil, nil
	}

	entry := v.(*memoryEntry)
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		m.CompareAndDelete(q, entry)
		metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss, metrics.CacheTypeMemory).Inc()
		return nil, nil
	}

	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit, metrics.CacheTypeMemory).Inc()
	return entry.page.Clone(), nil
}

// Set stores a copy of page.
func (c *MemoryPageCache) Set(_ context.Context, q model.PageQuery, page *model.PageResult, ttl time.Duration) error {
	entry := &memoryEntry{page: storedCopy(page)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries.Load().Store(q, entry)
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess, metrics.CacheTypeMemory).Inc()
	return nil
}

// Clear discards every entry. Writers racing with Clear land in the
// discarded map.
func (c *MemoryPageCache) Clear(_ context.Context) error {
	c.entries.Store(new(sync.Map))
	metrics.CacheOperationsTotal.WithLabelValues(metrics.CacheOpClear, metrics.CacheStatusSuccess, metrics.CacheTypeMemory).Inc()
	return nil
}

// Len returns the number of stored entries, including expired ones.
func (c *MemoryPageCache) Len() int {
	n := 0
	c.entries.Load().Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// claimEpoch holds the claims made since one reset.
type claimEpoch struct {
	epoch  int64
	claims sync.Map
}

// MemoryDispatchState implements DispatchState with one atomic flag per country.
type MemoryDispatchState struct {
	current atomic.Pointer[claimEpoch]
}

// NewMemoryDispatchState creates a dispatch state with no claims.
func NewMemoryDispatchState() *MemoryDispatchState {
	s := &MemoryDispatchState{}
	s.current.Store(&claimEpoch{})
	return s
}

// Claim reports whether this call is the first for country since the last Reset.
func (s *MemoryDispatchState) Claim(_ context.Context, country string) (bool, error) {
	v, _ := s.current.Load().claims.LoadOrStore(country, new(atomic.Bool))
	return v.(*atomic.Bool).CompareAndSwap(false, true), nil
}

// Epoch returns the number of resets so far.
func (s *MemoryDispatchState) Epoch(_ context.Context) (int64, error) {
	return s.current.Load().epoch, nil
}

// Reset forgets every claim and advances the epoch.
func (s *MemoryDispatchState) Reset(_ context.Context) error {
	for {
		old := s.current.Load()
		if s.current.CompareAndSwap(old, &claimEpoch{epoch: old.epoch + 1}) {
			return nil
		}
	}
}

// Compile-time verification of interface implementations.
var (
	_ PageCache     = (*MemoryPageCache)(nil)
	_ DispatchState = (*MemoryDispatchState)(nil)
)
