package rules

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRuleNotFound is returned when a rule ID does not exist for the tenant.
var ErrRuleNotFound = errors.New("rule not found")

// Registry manages rule persistence and retrieval, scoped by tenant.
type Registry interface {
	// TenantRules returns a page of the tenant's rules. An empty state
	// returns rules in every state.
	TenantRules(ctx context.Context, tenantID string, limit, offset int, state State) (*RuleCollection, error)

	// Rule returns a single rule by ID, or ErrRuleNotFound.
	Rule(ctx context.Context, tenantID, ruleID string) (*Rule, error)

	// Create stores a new rule, assigning its ID and timestamps.
	Create(ctx context.Context, tenantID string, rule *Rule) error

	// Update replaces an existing rule, or returns ErrRuleNotFound.
	Update(ctx context.Context, tenantID string, rule *Rule) error

	// EnabledRules returns the tenant's enabled rules in deterministic
	// order: ascending order number, creation order breaking ties.
	EnabledRules(ctx context.Context, tenantID string) ([]*Rule, error)
}

// InMemoryRegistry implements Registry using per-tenant slices. Insertion
// order is preserved so listing order is deterministic without a database.
type InMemoryRegistry struct {
	tenants map[string][]*Rule
	mu      sync.RWMutex
}

// NewInMemoryRegistry creates an empty in-memory registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		tenants: make(map[string][]*Rule),
	}
}

func (r *InMemoryRegistry) TenantRules(ctx context.Context, tenantID string, limit, offset int, state State) (*RuleCollection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Rule
	for _, rule := range r.tenants[tenantID] {
		if state == "" || rule.State == state {
			matched = append(matched, rule)
		}
	}

	if offset > len(matched) {
		offset = len(matched)
	}
	end := len(matched)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	page := make([]*Rule, 0, end-offset)
	for _, rule := range matched[offset:end] {
		page = append(page, copyRule(rule))
	}
	return &RuleCollection{Rules: page, TotalRecords: len(page)}, nil
}

func (r *InMemoryRegistry) Rule(ctx context.Context, tenantID, ruleID string) (*Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rule := range r.tenants[tenantID] {
		if rule.ID == ruleID {
			return copyRule(rule), nil
		}
	}
	return nil, ErrRuleNotFound
}

func (r *InMemoryRegistry) Create(ctx context.Context, tenantID string, rule *Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	rule.ID = uuid.New().String()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	r.tenants[tenantID] = append(r.tenants[tenantID], copyRule(rule))
	return nil
}

func (r *InMemoryRegistry) Update(ctx context.Context, tenantID string, rule *Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.tenants[tenantID] {
		if existing.ID == rule.ID {
			rule.CreatedAt = existing.CreatedAt
			rule.UpdatedAt = time.Now()
			r.tenants[tenantID][i] = copyRule(rule)
			return nil
		}
	}
	return ErrRuleNotFound
}

func (r *InMemoryRegistry) EnabledRules(ctx context.Context, tenantID string) ([]*Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var enabled []*Rule
	for _, rule := range r.tenants[tenantID] {
		if rule.State == StateEnabled {
			enabled = append(enabled, copyRule(rule))
		}
	}
	// Stable keeps insertion order for equal order numbers.
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].OrderNo < enabled[j].OrderNo
	})
	return enabled, nil
}

// copyRule returns a shallow copy so callers never share stored entries.
func copyRule(r *Rule) *Rule {
	c := *r
	return &c
}
