package indicators

import (
	"container/list"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// cacheKey identifies one indicator value: the timestamp of the newest
// candle used makes stale entries unreachable as the series grows.
type cacheKey struct {
	symbol    string
	indicator string
	period    int
	latest    time.Time
}

type cacheEntry struct {
	key   cacheKey
	value decimal.Decimal
}

// Cache is a bounded, mutex-guarded LRU cache for indicator values. It is
// the only structure in the decision path mutated by concurrent callers.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // front = most recently used
	entries map[cacheKey]*list.Element
}

// DefaultCacheSize bounds the cache when no size is given.
const DefaultCacheSize = 512

// NewCache creates an LRU cache holding at most maxSize entries.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheSize
	}
	return &Cache{
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[cacheKey]*list.Element),
	}
}

// GetOrCompute returns the cached value for (symbol, indicator, period,
// latest) or invokes compute, stores the result, and returns it. Compute
// runs at most once per distinct key while the entry remains cached.
func (c *Cache) GetOrCompute(
	symbol, indicator string,
	period int,
	latest time.Time,
	compute func() (decimal.Decimal, error),
) (decimal.Decimal, error) {
	key := cacheKey{symbol: symbol, indicator: indicator, period: period, latest: latest}

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		value := el.Value.(*cacheEntry).value
		c.mu.Unlock()
		return value, nil
	}
	c.mu.Unlock()

	// Compute outside the lock; indicator math can be slow on long series.
	value, err := compute()
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).value, nil
	}
	el := c.order.PushFront(&cacheEntry{key: key, value: value})
	c.entries[key] = el
	if c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	return value, nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
