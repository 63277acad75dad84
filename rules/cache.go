package rules

import (
	"sync"
	"time"
)

// RulesCache caches a tenant's enabled rules list between mutations. It lets
// the serving path skip a database query per validation request while the
// registry invalidates on every rule change.
type RulesCache interface {
	// Get retrieves the tenant's cached rules, nil on miss or expiry.
	Get(tenantID string) []*Rule

	// Set stores the tenant's enabled rules.
	Set(tenantID string, rules []*Rule)

	// Invalidate clears the tenant's entry, forcing a refresh on next Get.
	Invalidate(tenantID string)
}

// CacheConfig holds configuration for cache behavior.
type CacheConfig struct {
	// TTL is the time-to-live for cached entries.
	// Zero means no expiration (manual invalidation only).
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for rule caching.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

type cacheEntry struct {
	rules    []*Rule
	cachedAt time.Time
}

// InMemoryRulesCache is a thread-safe in-memory RulesCache keyed by tenant.
type InMemoryRulesCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
}

// NewInMemoryRulesCache creates a new in-memory rules cache.
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{
		entries: make(map[string]cacheEntry),
		config:  config,
	}
}

func (c *InMemoryRulesCache) Get(tenantID string) []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[tenantID]
	if !ok {
		return nil
	}
	if c.config.TTL > 0 && time.Since(entry.cachedAt) > c.config.TTL {
		return nil
	}

	// Return a copy to prevent external modification.
	rulesCopy := make([]*Rule, len(entry.rules))
	copy(rulesCopy, entry.rules)
	return rulesCopy
}

func (c *InMemoryRulesCache) Set(tenantID string, list []*Rule) {
	stored := make([]*Rule, len(list))
	copy(stored, list)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tenantID] = cacheEntry{rules: stored, cachedAt: time.Now()}
}

func (c *InMemoryRulesCache) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
}
