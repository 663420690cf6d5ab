package lrucache

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	handlecache "github.com/karupanerura/handle-cache"
)

type entry[V handlecache.ValueConstraint] struct {
	value    V
	storedAt time.Time
}

// Cache is a bounded cache with least-recently-used eviction.
// It is safe for concurrent use.
type Cache[K handlecache.KeyConstraint, V handlecache.ValueConstraint] struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[K, *entry[V]]
	removed []handlecache.Entry[K, V]
	options options[K, V]
}

var _ handlecache.Sweeper = (*Cache[uint8, struct{}])(nil)

// New creates a new cache holding at most maxSize entries.
// It returns ErrInvalidMaxSize if maxSize is not positive.
func New[K handlecache.KeyConstraint, V handlecache.ValueConstraint](maxSize int, opts ...Option[K, V]) (*Cache[K, V], error) {
	if maxSize <= 0 {
		return nil, ErrInvalidMaxSize
	}

	options := defaultOptions[K, V]()
	for _, opt := range opts {
		opt.apply(&options)
	}

	c := &Cache[K, V]{options: options}
	lru, err := simplelru.NewLRU[K, *entry[V]](maxSize, c.onRemove)
	if err != nil {
		return nil, fmt.Errorf("lrucache: %w", err)
	}
	c.lru = lru
	return c, nil
}

// onRemove is called by the LRU list with c.mu held.
func (c *Cache[K, V]) onRemove(key K, e *entry[V]) {
	if c.options.onEvict != nil {
		c.removed = append(c.removed, handlecache.Entry[K, V]{Key: key, Value: e.value})
	}
}

// unlock releases c.mu and then reports the entries removed while it was held.
func (c *Cache[K, V]) unlock() {
	removed := c.removed
	c.removed = nil
	c.mu.Unlock()

	for _, e := range removed {
		c.options.onEvict(e.Key, e.Value)
	}
}

func (c *Cache[K, V]) isExpired(e *entry[V], now time.Time) bool {
	if c.options.ttl <= 0 {
		return false
	}
	return c.options.policy.IsExpired(now.Sub(e.storedAt), c.options.ttl)
}

// Get returns the value associated with the key and marks it as recently used.
// An expired entry is removed and reported as absent.
func (c *Cache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return value, false
	}
	if c.isExpired(e, c.options.clock.Now()) {
		c.lru.Remove(key)
		return value, false
	}
	return c.options.cloner.CloneValue(e.value), true
}

// Has reports whether a live entry exists for the key.
// It has the same expiry and recency semantics as Get.
func (c *Cache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return false
	}
	if c.isExpired(e, c.options.clock.Now()) {
		c.lru.Remove(key)
		return false
	}
	return true
}

// Peek returns the value associated with the key without touching it.
// An expired entry is reported as absent but left for the next read or sweep to remove.
func (c *Cache[K, V]) Peek(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.unlock()

	e, ok := c.lru.Peek(key)
	if !ok || c.isExpired(e, c.options.clock.Now()) {
		return value, false
	}
	return c.options.cloner.CloneValue(e.value), true
}

// Set stores the value for the key.
// Updating an existing key replaces the value in place and never evicts.
// Inserting a new key into a full cache evicts the least recently used entry first.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.unlock()

	now := c.options.clock.Now()
	if e, ok := c.lru.Get(key); ok {
		e.value = value
		e.storedAt = now
		return
	}
	c.lru.Add(key, &entry[V]{value: value, storedAt: now})
}

// LoadOrStore returns the live value for the key if present.
// Otherwise it stores the given value and returns it with loaded set to false.
func (c *Cache[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	c.mu.Lock()
	defer c.unlock()

	now := c.options.clock.Now()
	if e, ok := c.lru.Get(key); ok {
		if !c.isExpired(e, now) {
			return c.options.cloner.CloneValue(e.value), true
		}
		c.lru.Remove(key)
	}
	c.lru.Add(key, &entry[V]{value: value, storedAt: now})
	return value, false
}

// Delete removes the entry for the key and reports whether it was present.
// The eviction callback has completed when Delete returns.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.unlock()

	return c.lru.Remove(key)
}

// Clear removes every entry, calling the eviction callback once per entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.unlock()

	c.lru.Purge()
}

// SweepExpired removes every expired entry and returns how many were removed.
func (c *Cache[K, V]) SweepExpired() int {
	c.mu.Lock()
	defer c.unlock()

	if c.options.ttl <= 0 {
		return 0
	}

	now := c.options.clock.Now()
	removed := 0
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && c.isExpired(e, now) {
			c.lru.Remove(key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, including expired entries not yet removed.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Len()
}

// Keys returns the keys from the least to the most recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lru.Keys()
}
