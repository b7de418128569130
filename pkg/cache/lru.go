package cache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries held when no capacity is configured.
const DefaultCapacity = 500

var (
	// ErrInvalidCapacity indicates a non-positive cache capacity
	ErrInvalidCapacity = errors.New("cache capacity must be positive")
)

// Option configures an LRU.
type Option func(*LRU)

// WithClock replaces time.Now (for testing).
func WithClock(now func() time.Time) Option {
	return func(c *LRU) {
		c.now = now
	}
}

// WithEvictCallback registers a function called with the key of every entry
// removed to make room for a new one.
func WithEvictCallback(fn func(key string)) Option {
	return func(c *LRU) {
		c.onEvict = fn
	}
}

// LRU is a fixed-capacity, least-recently-used store where every entry
// carries its own expiry. Expiry is checked lazily on read; Prune removes
// expired entries eagerly.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	now      func() time.Time
	onEvict  func(key string)
}

// NewLRU creates a cache holding at most capacity entries.
func NewLRU(capacity int, opts ...Option) (*LRU, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidCapacity, capacity)
	}

	c := &LRU{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the value stored under key. An expired entry is a miss and is
// removed on the spot. A hit marks the entry as most recently used.
func (c *LRU) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		CacheMisses.Inc()
		return nil, false
	}

	entry := elem.Value.(*CacheEntry)
	if entry.IsExpired(c.now()) {
		c.removeElement(elem)
		CacheEvictions.WithLabelValues("expired").Inc()
		CacheMisses.Inc()
		return nil, false
	}

	c.ll.MoveToFront(elem)
	CacheHits.WithLabelValues("memory").Inc()
	return entry.Value, true
}

// Peek returns the entry stored under key without touching recency or
// expiry state. Intended for inspection and tests.
func (c *LRU) Peek(key string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := *elem.Value.(*CacheEntry)
	return &entry, true
}

// Set stores value under key for ttl. Setting an existing key replaces the
// value and resets both its expiry and its recency. When the cache is full
// the least recently used entry is evicted, whether or not it has expired.
// A non-positive ttl stores nothing and drops any existing entry for key.
func (c *LRU) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		if elem, ok := c.items[key]; ok {
			c.removeElement(elem)
		}
		return
	}

	now := c.now()
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*CacheEntry)
		entry.Value = value
		entry.CachedAt = now
		entry.ExpiresAt = now.Add(ttl)
		c.ll.MoveToFront(elem)
		return
	}

	elem := c.ll.PushFront(&CacheEntry{
		Key:       key,
		Value:     value,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	})
	c.items[key] = elem

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*CacheEntry).Key
		c.removeElement(oldest)
		CacheEvictions.WithLabelValues("capacity").Inc()
		if c.onEvict != nil {
			c.onEvict(evicted)
		}
	}

	CacheEntries.Set(float64(c.ll.Len()))
}

// Delete removes key. Deleting a missing key is a no-op.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Clear removes every entry.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.items = make(map[string]*list.Element, c.capacity)
	CacheEntries.Set(0)
}

// Prune physically removes expired entries and returns how many were removed.
func (c *LRU) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.ll.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*CacheEntry).IsExpired(now) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	if removed > 0 {
		CacheEvictions.WithLabelValues("expired").Add(float64(removed))
	}
	return removed
}

// Len returns the number of stored entries, including expired ones not yet
// purged.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Capacity returns the maximum number of entries.
func (c *LRU) Capacity() int {
	return c.capacity
}

// Keys returns stored keys from most to least recently used.
func (c *LRU) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.ll.Len())
	for elem := c.ll.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*CacheEntry).Key)
	}
	return keys
}

// removeElement unlinks elem. Caller must hold c.mu.
func (c *LRU) removeElement(elem *list.Element) {
	c.ll.Remove(elem)
	delete(c.items, elem.Value.(*CacheEntry).Key)
	CacheEntries.Set(float64(c.ll.Len()))
}
