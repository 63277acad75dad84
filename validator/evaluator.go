package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/liamcoop/passval/internal/logger"
	"github.com/liamcoop/passval/rules"
)

// matchTimeout bounds a single regular-expression match so a pathological
// backtracking expression cannot stall the request.
const matchTimeout = time.Second

// outcome is a single rule's buffered result. Outcomes are assembled into
// the verdict only after every rule has one, keyed by rule position.
type outcome struct {
	failed  bool
	message string
}

// matchExpression reports whether expr matches the entire password. Partial
// matches do not count; the expression is anchored on both ends.
func matchExpression(expr, password string) (bool, error) {
	re, err := regexp2.Compile(`\A(?:`+expr+`)\z`, regexp2.None)
	if err != nil {
		return false, err
	}
	re.MatchTimeout = matchTimeout
	return re.MatchString(password)
}

// evaluateRegExp checks a local pattern rule. A non-matching password fails
// the rule; the check itself cannot fail except for a broken expression,
// which means the registry let a bad rule through.
func evaluateRegExp(rule *rules.Rule, password string) (outcome, error) {
	matched, err := matchExpression(rule.Expression, password)
	if err != nil {
		return outcome{}, &ConfigurationError{RuleName: rule.Name, Detail: err.Error()}
	}
	if !matched {
		return outcome{failed: true, message: rule.ErrMessageID}, nil
	}
	return outcome{}, nil
}

// remoteVerdict is the body a programmatic rule endpoint answers with.
type remoteVerdict struct {
	Result string `json:"result"`
}

// evaluateProgrammatic posts the password to the rule's remote endpoint and
// interprets the verdict. Transport failures, timeouts, non-success statuses
// and unparseable bodies all go through the rule's severity policy.
func (e *Engine) evaluateProgrammatic(ctx context.Context, rule *rules.Rule, userID, password string, rc RequestContext) (outcome, error) {
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"password": password,
		"userId":   userID,
	})
	if err != nil {
		return outcome{}, fmt.Errorf("failed to encode validation request: %w", err)
	}

	checkURL := rc.ServiceURL + rule.ImplementationRef
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, checkURL, bytes.NewReader(body))
	if err != nil {
		return e.remoteFailure(rule, 0, err)
	}
	req.Header.Set(HeaderTenant, rc.TenantID)
	req.Header.Set(HeaderToken, rc.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return e.remoteFailure(rule, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return e.remoteFailure(rule, resp.StatusCode, nil)
	}

	var verdict remoteVerdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return e.remoteFailure(rule, resp.StatusCode, fmt.Errorf("malformed verdict body: %w", err))
	}
	if verdict.Result == rules.ResultInvalid {
		return outcome{failed: true, message: rule.ErrMessageID}, nil
	}
	return outcome{}, nil
}

// remoteFailure applies the rule's severity to a check that could not be
// completed. Strong aborts the whole validation call, Soft passes the rule
// without reporting it, anything else is a configuration error.
func (e *Engine) remoteFailure(rule *rules.Rule, status int, cause error) (outcome, error) {
	switch rule.Severity {
	case rules.SeverityStrong:
		logger.Error("programmatic rule endpoint is not available",
			"rule", rule.Name, "status", status)
		return outcome{}, &RemoteRuleError{RuleName: rule.Name, Status: status, Err: cause}
	case rules.SeveritySoft:
		logger.Warn("skipping unavailable soft programmatic rule",
			"rule", rule.Name, "status", status)
		return outcome{}, nil
	default:
		return outcome{}, &ConfigurationError{
			RuleName: rule.Name,
			Detail:   fmt.Sprintf("no failure policy for severity %q", rule.Severity),
		}
	}
}
