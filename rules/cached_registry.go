package rules

import "context"

// CachedRegistry wraps a Registry with an enabled-rules cache. Mutations
// invalidate the owning tenant's entry so the serving path always sees the
// current enabled set; everything else passes straight through.
type CachedRegistry struct {
	Registry
	cache RulesCache
}

// NewCachedRegistry wraps reg with the given cache.
func NewCachedRegistry(reg Registry, cache RulesCache) *CachedRegistry {
	return &CachedRegistry{Registry: reg, cache: cache}
}

func (c *CachedRegistry) EnabledRules(ctx context.Context, tenantID string) ([]*Rule, error) {
	if cached := c.cache.Get(tenantID); cached != nil {
		return cached, nil
	}

	list, err := c.Registry.EnabledRules(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(tenantID, list)
	return list, nil
}

func (c *CachedRegistry) Create(ctx context.Context, tenantID string, rule *Rule) error {
	if err := c.Registry.Create(ctx, tenantID, rule); err != nil {
		return err
	}
	c.cache.Invalidate(tenantID)
	return nil
}

func (c *CachedRegistry) Update(ctx context.Context, tenantID string, rule *Rule) error {
	if err := c.Registry.Update(ctx, tenantID, rule); err != nil {
		return err
	}
	c.cache.Invalidate(tenantID)
	return nil
}
