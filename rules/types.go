package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// RuleType distinguishes how a rule is checked.
type RuleType string

const (
	// TypeRegExp rules are matched locally against the whole password.
	TypeRegExp RuleType = "RegExp"
	// TypeProgrammatic rules delegate the check to a remote policy endpoint.
	TypeProgrammatic RuleType = "Programmatic"
)

// Severity governs what happens when a programmatic rule's remote check
// cannot be completed: Strong aborts the validation call, Soft treats the
// rule as passed.
type Severity string

const (
	SeverityStrong Severity = "Strong"
	SeveritySoft   Severity = "Soft"
)

// State controls whether a rule participates in validation.
type State string

const (
	StateEnabled  State = "Enabled"
	StateDisabled State = "Disabled"
)

// UserNamePlaceholder is the reserved token inside a RegExp rule expression
// that is replaced with the current user's name before matching.
const UserNamePlaceholder = "<USER_NAME>"

// Rule is a single password validation criterion.
type Rule struct {
	ID                string    `json:"ruleId"`
	Name              string    `json:"name"`
	Type              RuleType  `json:"type"`
	Severity          Severity  `json:"severity"`
	State             State     `json:"state"`
	OrderNo           int       `json:"orderNo"`
	Expression        string    `json:"expression,omitempty"`
	ImplementationRef string    `json:"implementationReference,omitempty"`
	ErrMessageID      string    `json:"errMessageId"`
	Description       string    `json:"description,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// RuleCollection is the wire shape for a page of rules.
type RuleCollection struct {
	Rules        []*Rule `json:"rules"`
	TotalRecords int     `json:"totalRecords"`
}

// Validation verdict values.
const (
	ResultValid   = "valid"
	ResultInvalid = "invalid"
)

// ValidationResult is the engine's sole output: an overall verdict plus the
// error message IDs of every failed rule, in rule evaluation order.
type ValidationResult struct {
	Result   string   `json:"result"`
	Messages []string `json:"messages"`
}

// Validate checks the creation-time invariants of a rule. These are enforced
// before a rule is ever stored, so the engine can assume they hold.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if strings.TrimSpace(r.ErrMessageID) == "" {
		return fmt.Errorf("errMessageId is required")
	}
	if r.OrderNo < 0 {
		return fmt.Errorf("order number cannot be negative")
	}
	switch r.State {
	case StateEnabled, StateDisabled:
	default:
		return fmt.Errorf("unknown rule state %q", r.State)
	}
	switch r.Type {
	case TypeRegExp:
		if r.Severity != SeverityStrong {
			return fmt.Errorf("in case of RegExp rule severity can only be Strong")
		}
		if r.Expression == "" {
			return fmt.Errorf("in case of RegExp rule an expression should be provided")
		}
		// Compile with the placeholder substituted by a literal so that
		// expressions parameterized on the user name still validate.
		probe := strings.ReplaceAll(r.Expression, UserNamePlaceholder, "username")
		if _, err := regexp2.Compile(probe, regexp2.None); err != nil {
			return fmt.Errorf("invalid rule expression: %w", err)
		}
	case TypeProgrammatic:
		if r.ImplementationRef == "" {
			return fmt.Errorf("in case of Programmatic rule an implementation reference should be provided")
		}
		switch r.Severity {
		case SeverityStrong, SeveritySoft:
		default:
			return fmt.Errorf("unknown rule severity %q", r.Severity)
		}
	default:
		return fmt.Errorf("unknown rule type %q", r.Type)
	}
	return nil
}
