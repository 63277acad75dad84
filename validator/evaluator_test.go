package validator

import (
	"errors"
	"testing"

	"github.com/liamcoop/passval/rules"
)

func TestMatchExpression(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		password string
		want     bool
	}{
		{
			name:     "exact match",
			expr:     `abc`,
			password: "abc",
			want:     true,
		},
		{
			name:     "partial match does not count",
			expr:     `abc`,
			password: "xabcx",
			want:     false,
		},
		{
			name:     "leading text rejected",
			expr:     `abc`,
			password: "xabc",
			want:     false,
		},
		{
			name:     "trailing text rejected",
			expr:     `abc`,
			password: "abcx",
			want:     false,
		},
		{
			name:     "alternation is grouped before anchoring",
			expr:     `cat|dog`,
			password: "dogma",
			want:     false,
		},
		{
			name:     "alternation matches whole string",
			expr:     `cat|dog`,
			password: "dog",
			want:     true,
		},
		{
			name:     "lookahead combination matches",
			expr:     `(?=.*[A-Za-z])(?=.*\d).+`,
			password: "P@sword12",
			want:     true,
		},
		{
			name:     "lookahead combination rejects letters only",
			expr:     `(?=.*[A-Za-z])(?=.*\d).+`,
			password: "password",
			want:     false,
		},
		{
			name:     "minimum length",
			expr:     `.{8,}`,
			password: "1234567",
			want:     false,
		},
		{
			name:     "empty password against non-empty pattern",
			expr:     `.+`,
			password: "",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matchExpression(tt.expr, tt.password)
			if err != nil {
				t.Fatalf("matchExpression(%q, %q) failed: %v", tt.expr, tt.password, err)
			}
			if got != tt.want {
				t.Errorf("matchExpression(%q, %q) = %v, want %v", tt.expr, tt.password, got, tt.want)
			}
		})
	}
}

func TestMatchExpressionBadPattern(t *testing.T) {
	if _, err := matchExpression(`[unclosed`, "anything"); err == nil {
		t.Error("matchExpression should fail for an invalid expression")
	}
}

func TestEvaluateRegExp(t *testing.T) {
	rule := &rules.Rule{
		Name:         "digits-only",
		Type:         rules.TypeRegExp,
		Expression:   `\d+`,
		ErrMessageID: "notDigits",
	}

	out, err := evaluateRegExp(rule, "12345")
	if err != nil {
		t.Fatalf("evaluateRegExp() failed: %v", err)
	}
	if out.failed {
		t.Errorf("matching password should not fail the rule")
	}

	out, err = evaluateRegExp(rule, "123a5")
	if err != nil {
		t.Fatalf("evaluateRegExp() failed: %v", err)
	}
	if !out.failed {
		t.Error("non-matching password should fail the rule")
	}
	if out.message != "notDigits" {
		t.Errorf("message = %q, want notDigits", out.message)
	}
}

func TestEvaluateRegExpBrokenExpression(t *testing.T) {
	rule := &rules.Rule{
		Name:         "broken",
		Type:         rules.TypeRegExp,
		Expression:   `(unclosed`,
		ErrMessageID: "broken",
	}

	_, err := evaluateRegExp(rule, "anything")
	var confErr *ConfigurationError
	if !errors.As(err, &confErr) {
		t.Fatalf("error = %T (%v), want *ConfigurationError", err, err)
	}
	if confErr.RuleName != "broken" {
		t.Errorf("RuleName = %q, want broken", confErr.RuleName)
	}
}

func TestPrepareRulesSubstitutesPlaceholder(t *testing.T) {
	snapshot := []*rules.Rule{
		{
			Name:       "no-username",
			Type:       rules.TypeRegExp,
			Expression: `(?!.*<USER_NAME>).*`,
		},
		{
			Name:              "remote",
			Type:              rules.TypeProgrammatic,
			ImplementationRef: "/check/<USER_NAME>",
		},
	}

	prepared := prepareRules(snapshot, "jdoe")

	if prepared[0].Expression != `(?!.*jdoe).*` {
		t.Errorf("expression = %q, placeholder should be replaced", prepared[0].Expression)
	}
	// Substitution applies to pattern expressions only.
	if prepared[1].ImplementationRef != "/check/<USER_NAME>" {
		t.Errorf("implementation reference = %q, should be untouched", prepared[1].ImplementationRef)
	}
	if snapshot[0].Expression != `(?!.*<USER_NAME>).*` {
		t.Errorf("snapshot expression = %q, should be untouched", snapshot[0].Expression)
	}
}

func TestPrepareRulesSortsByOrderNo(t *testing.T) {
	snapshot := []*rules.Rule{
		{Name: "c", Type: rules.TypeRegExp, OrderNo: 7},
		{Name: "a", Type: rules.TypeRegExp, OrderNo: 1},
		{Name: "b2", Type: rules.TypeRegExp, OrderNo: 3},
		{Name: "b1", Type: rules.TypeRegExp, OrderNo: 3},
	}

	prepared := prepareRules(snapshot, "jdoe")

	got := make([]string, len(prepared))
	for i, r := range prepared {
		got[i] = r.Name
	}
	want := []string{"a", "b2", "b1", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
