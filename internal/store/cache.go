package store

import (
	"context"
	"sync"

	"github.com/opsdeck/deskflow/internal/workflow"
)

// RuleLister is the subset of Store the cache wraps. It matches the
// engine's RuleSource port.
type RuleLister interface {
	ListActiveRules(ctx context.Context, tenant string, entityType workflow.EntityType, trigger workflow.TriggerType) ([]workflow.Rule, error)
}

type cacheKey struct {
	tenant     string
	entityType workflow.EntityType
	trigger    workflow.TriggerType
}

// RuleCache memoizes active rule lists per (tenant, entity type,
// trigger) scope.
//
// There is no TTL and no implicit invalidation: the cache is emptied
// only through explicit hooks (Invalidate, Reset) wired into rule CRUD
// paths. Hidden process-wide state is exactly what this collaborator
// exists to avoid - every consumer receives the cache it was given.
//
// Thread-safe for concurrent engine invocations.
type RuleCache struct {
	src RuleLister

	mu      sync.RWMutex
	entries map[cacheKey][]workflow.Rule
}

// NewRuleCache creates a cache over a rule source, typically a *Store.
func NewRuleCache(src RuleLister) *RuleCache {
	return &RuleCache{
		src:     src,
		entries: make(map[cacheKey][]workflow.Rule),
	}
}

// ListActiveRules returns the cached rule list for the scope, fetching
// from the source on first use.
func (c *RuleCache) ListActiveRules(ctx context.Context, tenant string, entityType workflow.EntityType, trigger workflow.TriggerType) ([]workflow.Rule, error) {
	key := cacheKey{tenant: tenant, entityType: entityType, trigger: trigger}

	c.mu.RLock()
	rules, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return rules, nil
	}

	rules, err := c.src.ListActiveRules(ctx, tenant, entityType, trigger)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = rules
	c.mu.Unlock()

	return rules, nil
}

// Invalidate drops every cached scope for a tenant. Rule CRUD paths
// call this after any save, delete, or activation change.
func (c *RuleCache) Invalidate(tenant string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.tenant == tenant {
			delete(c.entries, key)
		}
	}
}

// Reset drops the entire cache.
func (c *RuleCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey][]workflow.Rule)
}

// Len returns the number of cached scopes. Used for testing.
func (c *RuleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
