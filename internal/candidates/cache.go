package candidates

import (
	"context"
	"sync"
	"time"
)

// Cache is a TTL cache decorating a Provider. Entries are served until they
// expire; a stale-but-cached set never breaks correctness of the annotation
// state machine, so there is no active invalidation.
type Cache struct {
	provider Provider
	ttl      time.Duration

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry

	now func() time.Time
}

type cacheKey struct {
	primary, secondary string
}

type cacheEntry struct {
	set     Set
	expires time.Time
}

// NewCache wraps provider with a TTL cache.
func NewCache(provider Provider, ttl time.Duration) *Cache {
	return &Cache{
		provider: provider,
		ttl:      ttl,
		entries:  make(map[cacheKey]cacheEntry),
		now:      time.Now,
	}
}

func (c *Cache) Candidates(ctx context.Context, primary, secondary string) (Set, error) {
	key := cacheKey{primary, secondary}

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.set, nil
	}
	c.mu.Unlock()

	set, err := c.provider.Candidates(ctx, primary, secondary)
	if err != nil {
		// Serve the expired entry rather than failing the run; the lookup
		// is advisory.
		if ok {
			return entry.set, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{set: set, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return set, nil
}

var _ Provider = (*Cache)(nil)
