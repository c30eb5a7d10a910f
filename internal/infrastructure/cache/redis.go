package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/countrytube/internal/domain/model"
	"github.com/hszk-dev/countrytube/internal/infrastructure/metrics"
	"github.com/hszk-dev/countrytube/internal/logging"
)

const (
	// pageCacheKeyPrefix is the prefix for page cache keys in Redis.
	// Keys: page:{generation}:{country}:{version}:{offset}:{page_size}
	pageCacheKeyPrefix = "page:"

	// pageGenerationKey holds the current page generation. Clear increments it.
	pageGenerationKey = "page:gen"

	// dispatchKeyPrefix is the prefix for prefetch claim keys.
	// Keys: prefetch:{generation}:{country}
	dispatchKeyPrefix = "prefetch:"

	// dispatchGenerationKey holds the current claim generation, which is also
	// the epoch stamped on warm-up tasks.
	dispatchGenerationKey = "prefetch:gen"

	scanBatchSize = 500
)

// pageJSON is the JSON representation of a PageResult for caching.
// Using explicit struct avoids coupling to the API's JSON tags.
type pageJSON struct {
	Country      string          `json:"c"`
	Offset       int             `json:"o"`
	NumResults   int             `json:"n"`
	TotalResults int             `json:"t"`
	Videos       model.VideoList `json:"v"`
	NextToken    *int            `json:"next,omitempty"`
}

// RedisPageCache implements PageCache using Redis as the backing store.
type RedisPageCache struct {
	client *redis.Client
}

// NewRedisPageCache creates a new Redis-backed page cache.
func NewRedisPageCache(client *redis.Client) *RedisPageCache {
	return &RedisPageCache{
		client: client,
	}
}

// Get retrieves a page from Redis cache.
// Returns nil, nil on cache miss.
func (c *RedisPageCache) Get(ctx context.Context, q model.PageQuery) (*model.PageResult, error) {
	gen, err := generation(ctx, c.client, pageGenerationKey)
	if err != nil {
		c.record(metrics.CacheOpGet, metrics.CacheStatusError)
		return nil, err
	}

	data, err := c.client.Get(ctx, c.buildKey(gen, q)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.record(metrics.CacheOpGet, metrics.CacheStatusMiss)
			return nil, nil // Cache miss
		}
		c.record(metrics.CacheOpGet, metrics.CacheStatusError)
		return nil, fmt.Errorf("redis get: %w", err)
	}

	page, err := c.deserialize(data)
	if err != nil {
		c.record(metrics.CacheOpGet, metrics.CacheStatusError)
		return nil, fmt.Errorf("deserialize page: %w", err)
	}

	c.record(metrics.CacheOpGet, metrics.CacheStatusHit)
	return page, nil
}

// Set stores a page in Redis cache with the specified TTL.
func (c *RedisPageCache) Set(ctx context.Context, q model.PageQuery, page *model.PageResult, ttl time.Duration) error {
	gen, err := generation(ctx, c.client, pageGenerationKey)
	if err != nil {
		c.record(metrics.CacheOpSet, metrics.CacheStatusError)
		return err
	}

	data, err := c.serialize(page)
	if err != nil {
		c.record(metrics.CacheOpSet, metrics.CacheStatusError)
		return fmt.Errorf("serialize page: %w", err)
	}

	if err := c.client.Set(ctx, c.buildKey(gen, q), data, ttl).Err(); err != nil {
		c.record(metrics.CacheOpSet, metrics.CacheStatusError)
		return fmt.Errorf("redis set: %w", err)
	}

	c.record(metrics.CacheOpSet, metrics.CacheStatusSuccess)
	return nil
}

// Clear moves the cache to a new generation, which makes every existing key
// unreachable in one atomic step, then removes the retired generation's keys.
// Failure to remove old keys is logged; they expire through their TTL.
func (c *RedisPageCache) Clear(ctx context.Context) error {
	gen, err := c.client.Incr(ctx, pageGenerationKey).Result()
	if err != nil {
		c.record(metrics.CacheOpClear, metrics.CacheStatusError)
		return fmt.Errorf("redis incr: %w", err)
	}
	c.record(metrics.CacheOpClear, metrics.CacheStatusSuccess)

	retired := pageCacheKeyPrefix + strconv.FormatInt(gen-1, 10) + ":*"
	if err := unlinkMatching(ctx, c.client, retired); err != nil {
		logging.FromContext(ctx).Warn("failed to remove retired page generation",
			"generation", gen-1,
			"error", err,
		)
	}
	return nil
}

// buildKey constructs the Redis key for a page.
func (c *RedisPageCache) buildKey(gen int64, q model.PageQuery) string {
	return pageCacheKeyPrefix + strconv.FormatInt(gen, 10) + ":" + q.String()
}

// serialize converts a PageResult to JSON bytes.
func (c *RedisPageCache) serialize(page *model.PageResult) ([]byte, error) {
	return json.Marshal(pageJSON{
		Country:      page.Country,
		Offset:       page.Offset,
		NumResults:   page.NumResults,
		TotalResults: page.TotalResults,
		Videos:       page.Videos,
		NextToken:    page.NextToken,
	})
}

// deserialize converts JSON bytes to a PageResult.
func (c *RedisPageCache) deserialize(data []byte) (*model.PageResult, error) {
	var p pageJSON
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Videos == nil {
		p.Videos = model.VideoList{}
	}
	if len(p.Videos) != p.NumResults {
		return nil, fmt.Errorf("corrupt page: %d videos, numResults %d", len(p.Videos), p.NumResults)
	}

	return &model.PageResult{
		Country:      p.Country,
		Offset:       p.Offset,
		NumResults:   p.NumResults,
		TotalResults: p.TotalResults,
		Videos:       p.Videos,
		NextToken:    p.NextToken,
	}, nil
}

func (c *RedisPageCache) record(op, status string) {
	metrics.CacheOperationsTotal.WithLabelValues(op, status, metrics.CacheTypeRedis).Inc()
}

// RedisDispatchState implements DispatchState with SET NX, so API replicas
// sharing one Redis agree on a single winner per country.
type RedisDispatchState struct {
	client *redis.Client
}

// NewRedisDispatchState creates a Redis-backed dispatch state. Claims never
// expire on their own; they live until the next Reset.
func NewRedisDispatchState(client *redis.Client) *RedisDispatchState {
	return &RedisDispatchState{client: client}
}

// Claim reports whether this call is the first for country since the last Reset.
func (s *RedisDispatchState) Claim(ctx context.Context, country string) (bool, error) {
	gen, err := generation(ctx, s.client, dispatchGenerationKey)
	if err != nil {
		return false, err
	}

	key := dispatchKeyPrefix + strconv.FormatInt(gen, 10) + ":" + country
	ok, err := s.client.SetNX(ctx, key, 1, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Epoch returns the current claim generation.
func (s *RedisDispatchState) Epoch(ctx context.Context) (int64, error) {
	return generation(ctx, s.client, dispatchGenerationKey)
}

// Reset moves claims to a new generation and removes the retired one.
func (s *RedisDispatchState) Reset(ctx context.Context) error {
	gen, err := s.client.Incr(ctx, dispatchGenerationKey).Result()
	if err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}

	retired := dispatchKeyPrefix + strconv.FormatInt(gen-1, 10) + ":*"
	if err := unlinkMatching(ctx, s.client, retired); err != nil {
		logging.FromContext(ctx).Warn("failed to remove retired prefetch claims",
			"generation", gen-1,
			"error", err,
		)
	}
	return nil
}

// generation returns the counter stored at key, zero if unset.
func generation(ctx context.Context, client *redis.Client, key string) (int64, error) {
	gen, err := client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get generation: %w", err)
	}
	return gen, nil
}

// unlinkMatching removes every key matching pattern in SCAN batches.
func unlinkMatching(ctx context.Context, client *redis.Client, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := client.Unlink(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis unlink: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Compile-time verification of interface implementations.
var (
	_ PageCache     = (*RedisPageCache)(nil)
	_ DispatchState = (*RedisDispatchState)(nil)
)
