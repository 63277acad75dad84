package validator

import "fmt"

// RuleSourceError reports a failed rule fetch. The validation call produces
// no verdict when this occurs.
type RuleSourceError struct {
	TenantID string
	Err      error
}

func (e *RuleSourceError) Error() string {
	return fmt.Sprintf("failed to fetch rules for tenant %s: %v", e.TenantID, e.Err)
}

func (e *RuleSourceError) Unwrap() error { return e.Err }

// IdentityReason distinguishes why identity resolution failed.
type IdentityReason string

const (
	// IdentityNotFound: the lookup returned zero users.
	IdentityNotFound IdentityReason = "not found"
	// IdentityAmbiguous: the lookup returned more than one user.
	IdentityAmbiguous IdentityReason = "ambiguous"
	// IdentityMalformed: the response was missing expected fields or
	// internally inconsistent.
	IdentityMalformed IdentityReason = "malformed response"
	// IdentityUnavailable: the lookup did not complete with a success status.
	IdentityUnavailable IdentityReason = "unavailable"
)

// IdentityResolutionError reports a failed user lookup. The reasons are kept
// distinct so callers can tell a missing user from a broken resolver.
type IdentityResolutionError struct {
	UserID string
	Reason IdentityReason
	Detail string
}

func (e *IdentityResolutionError) Error() string {
	msg := fmt.Sprintf("user lookup for %s failed: %s", e.UserID, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// RemoteRuleError reports a Strong programmatic rule whose remote check was
// unreachable or returned a non-success status. Status is zero when the
// request never completed.
type RemoteRuleError struct {
	RuleName string
	Status   int
	Err      error
}

func (e *RemoteRuleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("programmatic rule %s failed: %v", e.RuleName, e.Err)
	}
	return fmt.Sprintf("programmatic rule %s returned status code %d", e.RuleName, e.Status)
}

func (e *RemoteRuleError) Unwrap() error { return e.Err }

// ConfigurationError reports a malformed rule reaching the evaluator, which
// means the registry failed to enforce its own invariants.
type ConfigurationError struct {
	RuleName string
	Detail   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("rule %s is misconfigured: %s", e.RuleName, e.Detail)
}
