package secretstore

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL bounds how long a read may be served from the cache.
const DefaultCacheTTL = 5 * time.Minute

var cacheRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tenancy_secret_cache_requests_total",
		Help: "Secret store reads by cache result",
	},
	[]string{"result"},
)

type cacheEntry struct {
	data      map[string]string
	expiresAt time.Time
}

// Cache is a process-local read-through cache in front of a Backend. Reads
// are cached per path for the TTL; a write invalidates the path before it
// returns. Concurrent misses for one path share a single backend read.
type Cache struct {
	next Backend
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	// gen is bumped on every invalidation so that a read which started
	// before a write cannot repopulate the entry with the old value.
	gen   map[string]uint64
	group singleflight.Group
}

var _ Backend = (*Cache)(nil)

func NewCache(next Backend, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		next:    next,
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]cacheEntry{},
		gen:     map[string]uint64{},
	}
}

func (c *Cache) Read(ctx context.Context, path string) (map[string]string, error) {
	c.mu.Lock()
	if e, ok := c.entries[path]; ok && c.now().Before(e.expiresAt) {
		c.mu.Unlock()
		cacheRequestsTotal.WithLabelValues("hit").Inc()
		return maps.Clone(e.data), nil
	}
	gen := c.gen[path]
	c.mu.Unlock()
	cacheRequestsTotal.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(path, func() (interface{}, error) {
		data, err := c.next.Read(ctx, path)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen[path] == gen {
			c.entries[path] = cacheEntry{data: data, expiresAt: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return maps.Clone(v.(map[string]string)), nil
}

func (c *Cache) Write(ctx context.Context, path string, data map[string]string) error {
	c.Invalidate(path)
	defer c.Invalidate(path)
	return c.next.Write(ctx, path, data)
}

// Invalidate drops the cached entry for path.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.gen[path]++
	c.mu.Unlock()
	c.group.Forget(path)
}

// Len returns the number of cached paths, expired entries included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
