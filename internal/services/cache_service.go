package services

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CacheServiceImpl implements CacheService with an in-memory keyed store.
// Entries are immutable snapshots: Put replaces the whole entry and Get hands
// out copies, so a consumer holding a reference never observes a half-updated
// value while a refetch is outstanding.
type CacheServiceImpl struct {
	mu      sync.RWMutex
	entries map[CacheKey]*cacheEntry
	logger  *zap.Logger
}

type cacheEntry struct {
	value     interface{}
	stale     bool
	fetchedAt time.Time
}

// NewCacheService creates an empty cache
func NewCacheService() *CacheServiceImpl {
	return &CacheServiceImpl{
		entries: make(map[CacheKey]*cacheEntry),
	}
}

// SetLogger sets the logger for debug output
func (c *CacheServiceImpl) SetLogger(logger *zap.Logger) {
	c.logger = logger
}

// Get returns a snapshot of the entry for key, if present
func (c *CacheServiceImpl) Get(key CacheKey) (CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return CacheEntry{}, false
	}
	return CacheEntry{Value: e.value, Stale: e.stale, FetchedAt: e.fetchedAt}, true
}

// Put stores value under key, replacing any previous entry and clearing
// staleness
func (c *CacheServiceImpl) Put(key CacheKey, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheEntry{value: value, fetchedAt: time.Now()}
	if c.logger != nil {
		c.logger.Debug("cache put",
			zap.String("resource", string(key.Resource)),
			zap.String("scope", key.Scope),
			zap.String("filter", key.Filter))
	}
}

// Invalidate marks the entry stale. The stored payload is left untouched so
// current readers keep a coherent value until the refetch lands.
func (c *CacheServiceImpl) Invalidate(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked(key)
}

// InvalidateScope marks every entry of a resource under one scope stale,
// regardless of filter signature
func (c *CacheServiceImpl) InvalidateScope(resource ResourceType, scope string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.Resource == resource && key.Scope == scope {
			c.invalidateLocked(key)
		}
	}
}

// InvalidateWhere marks every entry matching pred stale
func (c *CacheServiceImpl) InvalidateWhere(pred func(CacheKey) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if pred(key) {
			c.invalidateLocked(key)
		}
	}
}

func (c *CacheServiceImpl) invalidateLocked(key CacheKey) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	// Replace rather than mutate: snapshots already handed out keep their
	// staleness flag as observed at read time.
	c.entries[key] = &cacheEntry{value: e.value, stale: true, fetchedAt: e.fetchedAt}
	if c.logger != nil {
		c.logger.Debug("cache invalidate",
			zap.String("resource", string(key.Resource)),
			zap.String("scope", key.Scope),
			zap.String("filter", key.Filter))
	}
}

// Drop removes the entry entirely; the next read is a hard miss
func (c *CacheServiceImpl) Drop(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// DropWhere removes every entry matching pred
func (c *CacheServiceImpl) DropWhere(pred func(CacheKey) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if pred(key) {
			delete(c.entries, key)
		}
	}
}

// StaleKeys returns the keys currently marked stale
func (c *CacheServiceImpl) StaleKeys() []CacheKey {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var keys []CacheKey
	for key, e := range c.entries {
		if e.stale {
			keys = append(keys, key)
		}
	}
	return keys
}
