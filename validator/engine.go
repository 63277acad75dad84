// Package validator implements the password validation engine: it loads the
// tenant's enabled rules, resolves the user's identity, evaluates every rule
// against the candidate password and aggregates a deterministic verdict.
package validator

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/passval/rules"
)

// DefaultLookupTimeout bounds each outbound call (user lookup, programmatic
// rule check) when no timeout is configured.
const DefaultLookupTimeout = time.Second

// RuleSource supplies the ordered, enabled rule set for a tenant. The engine
// reads one snapshot per validation call and never caches across calls.
type RuleSource interface {
	EnabledRules(ctx context.Context, tenantID string) ([]*rules.Rule, error)
}

// Engine orchestrates one-shot, stateless password validation. Collaborators
// are injected at construction; concurrent Validate calls share nothing but
// the HTTP client.
type Engine struct {
	source  RuleSource
	users   UserSource
	client  *http.Client
	timeout time.Duration
}

// NewEngine creates a validation engine. A nil client falls back to
// http.DefaultClient, a non-positive timeout to DefaultLookupTimeout.
func NewEngine(source RuleSource, users UserSource, client *http.Client, timeout time.Duration) *Engine {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Engine{
		source:  source,
		users:   users,
		client:  client,
		timeout: timeout,
	}
}

// Validate checks the password against the tenant's enabled rules and returns
// the verdict. Rule fetch and user lookup run in parallel; programmatic rules
// are dispatched concurrently so total latency is bounded by the slowest
// single rule. Message order follows rule order, never completion order.
//
// Any error aborts the call without a verdict: RuleSourceError,
// IdentityResolutionError, RemoteRuleError for a failed Strong rule check,
// or ConfigurationError for a malformed rule.
func (e *Engine) Validate(ctx context.Context, userID, password string, rc RequestContext) (*rules.ValidationResult, error) {
	var (
		snapshot []*rules.Rule
		user     *User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := e.source.EnabledRules(gctx, rc.TenantID)
		if err != nil {
			return &RuleSourceError{TenantID: rc.TenantID, Err: err}
		}
		snapshot = list
		return nil
	})
	g.Go(func() error {
		u, err := e.users.Lookup(gctx, userID, rc)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prepared := prepareRules(snapshot, user.Username)

	// Pattern rules run inline first; this also rejects malformed rules
	// before any remote call is dispatched.
	outcomes := make([]outcome, len(prepared))
	for i, rule := range prepared {
		switch rule.Type {
		case rules.TypeRegExp:
			out, err := evaluateRegExp(rule, password)
			if err != nil {
				return nil, err
			}
			outcomes[i] = out
		case rules.TypeProgrammatic:
			// Dispatched below.
		default:
			return nil, &ConfigurationError{
				RuleName: rule.Name,
				Detail:   fmt.Sprintf("unknown rule type %q", rule.Type),
			}
		}
	}

	eg, egctx := errgroup.WithContext(ctx)
	for i, rule := range prepared {
		if rule.Type != rules.TypeProgrammatic {
			continue
		}
		eg.Go(func() error {
			out, err := e.evaluateProgrammatic(egctx, rule, userID, password, rc)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	messages := []string{}
	for _, out := range outcomes {
		if out.failed {
			messages = append(messages, out.message)
		}
	}
	result := rules.ResultValid
	if len(messages) > 0 {
		result = rules.ResultInvalid
	}
	return &rules.ValidationResult{Result: result, Messages: messages}, nil
}

// prepareRules copies the snapshot, substitutes the user name placeholder
// into pattern expressions, and sorts by order number. The sort is stable so
// equal order numbers keep their fetch order, making evaluation and
// reporting order reproducible for the same rule set.
func prepareRules(snapshot []*rules.Rule, username string) []*rules.Rule {
	prepared := make([]*rules.Rule, 0, len(snapshot))
	for _, r := range snapshot {
		c := *r
		if c.Type == rules.TypeRegExp {
			c.Expression = strings.ReplaceAll(c.Expression, rules.UserNamePlaceholder, username)
		}
		prepared = append(prepared, &c)
	}
	sort.SliceStable(prepared, func(i, j int) bool {
		return prepared[i].OrderNo < prepared[j].OrderNo
	})
	return prepared
}
