package chain

import (
	"context"
	"sync"
	"time"
)

// HeadFunc fetches the latest block height.
type HeadFunc func(ctx context.Context) (uint64, error)

// HeadCache caches the chain head to reduce redundant API calls.
// Every polling watch shares one cache, so N open streams cost one
// eth_blockNumber per TTL instead of N.
type HeadCache struct {
	fetch HeadFunc
	ttl   time.Duration

	mu       sync.RWMutex
	cached   uint64
	cachedAt time.Time
}

// NewHeadCache creates a new head cache with the given TTL.
func NewHeadCache(fetch HeadFunc, ttl time.Duration) *HeadCache {
	return &HeadCache{
		fetch: fetch,
		ttl:   ttl,
	}
}

// LatestBlock returns the cached chain head if within TTL, otherwise fetches fresh.
func (c *HeadCache) LatestBlock(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	if time.Since(c.cachedAt) < c.ttl && c.cached > 0 {
		cached := c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	head, err := c.fetch(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	if head >= c.cached {
		c.cached = head
	}
	c.cachedAt = time.Now()
	head = c.cached
	c.mu.Unlock()

	return head, nil
}

// Invalidate clears the cache, forcing the next call to fetch fresh data.
func (c *HeadCache) Invalidate() {
	c.mu.Lock()
	c.cachedAt = time.Time{}
	c.mu.Unlock()
}
