package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/liamcoop/passval/rules"
	"github.com/liamcoop/passval/validator"
)

type stubEngine struct {
	result *rules.ValidationResult
	err    error

	gotUserID   string
	gotPassword string
	gotContext  validator.RequestContext
}

func (e *stubEngine) Validate(ctx context.Context, userID, password string, rc validator.RequestContext) (*rules.ValidationResult, error) {
	e.gotUserID = userID
	e.gotPassword = password
	e.gotContext = rc
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func newTestServer(engine Validator) (*Server, *rules.InMemoryRegistry) {
	registry := rules.NewInMemoryRegistry()
	return New(registry, engine, nil), registry
}

func doRequest(t *testing.T, srv *Server, method, target, tenant string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if tenant != "" {
		req.Header.Set(validator.HeaderTenant, tenant)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(&stubEngine{})

	rec := doRequest(t, srv, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "healthy" {
		t.Errorf("status field = %q, want healthy", body["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(&stubEngine{})

	rec := doRequest(t, srv, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestValidatePasswordReturnsVerdict(t *testing.T) {
	engine := &stubEngine{
		result: &rules.ValidationResult{
			Result:   rules.ResultInvalid,
			Messages: []string{"password.length.invalid"},
		},
	}
	srv, _ := newTestServer(engine)

	req := httptest.NewRequest(http.MethodPost, "/password/validate",
		strings.NewReader(`{"password": "hunter2", "userId": "user-1"}`))
	req.Header.Set(validator.HeaderTenant, "diku")
	req.Header.Set(validator.HeaderToken, "token-1")
	req.Header.Set(validator.HeaderServiceURL, "http://backend.local")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	var result rules.ValidationResult
	decodeBody(t, rec, &result)
	if result.Result != rules.ResultInvalid {
		t.Errorf("result = %q, want invalid", result.Result)
	}
	if len(result.Messages) != 1 || result.Messages[0] != "password.length.invalid" {
		t.Errorf("messages = %v", result.Messages)
	}

	if engine.gotUserID != "user-1" || engine.gotPassword != "hunter2" {
		t.Errorf("engine got userID=%q password=%q", engine.gotUserID, engine.gotPassword)
	}
	want := validator.RequestContext{
		TenantID:   "diku",
		Token:      "token-1",
		ServiceURL: "http://backend.local",
	}
	if engine.gotContext != want {
		t.Errorf("request context = %+v, want %+v", engine.gotContext, want)
	}
}

func TestValidatePasswordRequiresTenant(t *testing.T) {
	srv, _ := newTestServer(&stubEngine{})

	rec := doRequest(t, srv, http.MethodPost, "/password/validate", "",
		`{"password": "hunter2", "userId": "user-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestValidatePasswordRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "empty password", body: `{"password": "", "userId": "user-1"}`},
		{name: "missing password", body: `{"userId": "user-1"}`},
		{name: "empty userId", body: `{"password": "hunter2", "userId": ""}`},
		{name: "not json", body: `not json at all`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(&stubEngine{})
			rec := doRequest(t, srv, http.MethodPost, "/password/validate", "diku", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestValidatePasswordEngineErrorIsOpaque(t *testing.T) {
	engine := &stubEngine{
		err: &validator.IdentityResolutionError{UserID: "user-1", Reason: validator.IdentityNotFound},
	}
	srv, _ := newTestServer(engine)

	rec := doRequest(t, srv, http.MethodPost, "/password/validate", "diku",
		`{"password": "hunter2", "userId": "user-1"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "Internal Server Error" {
		t.Errorf("error = %q, the cause must not leak to the client", body["error"])
	}
	if strings.Contains(rec.Body.String(), "user-1") {
		t.Errorf("response leaks error detail: %s", rec.Body.String())
	}
}

func TestCreateRule(t *testing.T) {
	srv, registry := newTestServer(&stubEngine{})

	rec := doRequest(t, srv, http.MethodPost, "/tenant/rules", "diku", `{
		"name": "minimum length",
		"type": "RegExp",
		"severity": "Strong",
		"state": "Enabled",
		"orderNo": 0,
		"expression": "^.{8,}$",
		"errMessageId": "password.length.invalid"
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body: %s", rec.Code, rec.Body.String())
	}

	var created rules.Rule
	decodeBody(t, rec, &created)
	if created.ID == "" {
		t.Error("created rule should carry its assigned ID")
	}

	stored, err := registry.Rule(context.Background(), "diku", created.ID)
	if err != nil {
		t.Fatalf("rule was not stored: %v", err)
	}
	if stored.Name != "minimum length" {
		t.Errorf("stored name = %q", stored.Name)
	}
}

func TestCreateRuleRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "regexp rule with soft severity",
			body: `{"name": "x", "type": "RegExp", "severity": "Soft", "state": "Enabled", "expression": ".*", "errMessageId": "m"}`,
		},
		{
			name: "missing errMessageId",
			body: `{"name": "x", "type": "RegExp", "severity": "Strong", "state": "Enabled", "expression": ".*"}`,
		},
		{
			name: "broken expression",
			body: `{"name": "x", "type": "RegExp", "severity": "Strong", "state": "Enabled", "expression": "[unclosed", "errMessageId": "m"}`,
		},
		{
			name: "not json",
			body: `nope`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(&stubEngine{})
			rec := doRequest(t, srv, http.MethodPost, "/tenant/rules", "diku", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetRule(t *testing.T) {
	srv, registry := newTestServer(&stubEngine{})
	rule := &rules.Rule{
		Name:         "minimum length",
		Type:         rules.TypeRegExp,
		Severity:     rules.SeverityStrong,
		State:        rules.StateEnabled,
		Expression:   `^.{8,}$`,
		ErrMessageID: "password.length.invalid",
	}
	if err := registry.Create(context.Background(), "diku", rule); err != nil {
		t.Fatalf("failed to seed rule: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/tenant/rules/"+rule.ID, "diku", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	var got rules.Rule
	decodeBody(t, rec, &got)
	if got.ID != rule.ID || got.Name != rule.Name {
		t.Errorf("rule = %+v", got)
	}
}

func TestGetRuleNotFound(t *testing.T) {
	srv, _ := newTestServer(&stubEngine{})

	rec := doRequest(t, srv, http.MethodGet, "/tenant/rules/missing-id", "diku", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var body map[string]string
	decodeBody(t, rec, &body)
	if !strings.Contains(body["error"], "missing-id") {
		t.Errorf("error = %q, should name the rule ID", body["error"])
	}
}

func TestUpdateRule(t *testing.T) {
	srv, registry := newTestServer(&stubEngine{})
	rule := &rules.Rule{
		Name:         "minimum length",
		Type:         rules.TypeRegExp,
		Severity:     rules.SeverityStrong,
		State:        rules.StateEnabled,
		Expression:   `^.{8,}$`,
		ErrMessageID: "password.length.invalid",
	}
	if err := registry.Create(context.Background(), "diku", rule); err != nil {
		t.Fatalf("failed to seed rule: %v", err)
	}

	body, err := json.Marshal(map[string]any{
		"ruleId":       rule.ID,
		"name":         "minimum length",
		"type":         "RegExp",
		"severity":     "Strong",
		"state":        "Disabled",
		"orderNo":      0,
		"expression":   `^.{10,}$`,
		"errMessageId": "password.length.invalid",
	})
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}

	rec := doRequest(t, srv, http.MethodPut, "/tenant/rules", "diku", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body: %s", rec.Code, rec.Body.String())
	}

	stored, err := registry.Rule(context.Background(), "diku", rule.ID)
	if err != nil {
		t.Fatalf("Rule() failed: %v", err)
	}
	if stored.State != rules.StateDisabled || stored.Expression != `^.{10,}$` {
		t.Errorf("stored rule = %+v", stored)
	}
}

func TestUpdateRuleRequiresID(t *testing.T) {
	srv, _ := newTestServer(&stubEngine{})

	rec := doRequest(t, srv, http.MethodPut, "/tenant/rules", "diku",
		`{"name": "x", "type": "RegExp", "severity": "Strong", "state": "Enabled", "expression": ".*", "errMessageId": "m"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body: %s", rec.Code, rec.Body.String())
	}
}

func TestUpdateRuleNotFound(t *testing.T) {
	srv, _ := newTestServer(&stubEngine{})

	rec := doRequest(t, srv, http.MethodPut, "/tenant/rules", "diku",
		`{"ruleId": "ghost", "name": "x", "type": "RegExp", "severity": "Strong", "state": "Enabled", "expression": ".*", "errMessageId": "m"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body: %s", rec.Code, rec.Body.String())
	}
}

func TestListRules(t *testing.T) {
	srv, registry := newTestServer(&stubEngine{})
	for _, state := range []rules.State{rules.StateEnabled, rules.StateDisabled, rules.StateEnabled} {
		rule := &rules.Rule{
			Name:         "rule",
			Type:         rules.TypeRegExp,
			Severity:     rules.SeverityStrong,
			State:        state,
			Expression:   `.*`,
			ErrMessageID: "m",
		}
		if err := registry.Create(context.Background(), "diku", rule); err != nil {
			t.Fatalf("failed to seed rule: %v", err)
		}
	}

	rec := doRequest(t, srv, http.MethodGet, "/tenant/rules", "diku", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var all rules.RuleCollection
	decodeBody(t, rec, &all)
	if len(all.Rules) != 3 {
		t.Errorf("rules = %d, want 3", len(all.Rules))
	}

	rec = doRequest(t, srv, http.MethodGet, "/tenant/rules?state=Enabled", "diku", "")
	var enabled rules.RuleCollection
	decodeBody(t, rec, &enabled)
	if len(enabled.Rules) != 2 {
		t.Errorf("enabled rules = %d, want 2", len(enabled.Rules))
	}

	rec = doRequest(t, srv, http.MethodGet, "/tenant/rules?limit=1&offset=1", "diku", "")
	var page rules.RuleCollection
	decodeBody(t, rec, &page)
	if len(page.Rules) != 1 {
		t.Errorf("page = %d rules, want 1", len(page.Rules))
	}
}

func TestListRulesRejectsUnknownState(t *testing.T) {
	srv, _ := newTestServer(&stubEngine{})

	rec := doRequest(t, srv, http.MethodGet, "/tenant/rules?state=Paused", "diku", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRuleEndpointsRequireTenant(t *testing.T) {
	srv, _ := newTestServer(&stubEngine{})

	targets := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/tenant/rules"},
		{http.MethodPost, "/tenant/rules"},
		{http.MethodPut, "/tenant/rules"},
		{http.MethodGet, "/tenant/rules/some-id"},
	}
	for _, tt := range targets {
		rec := doRequest(t, srv, tt.method, tt.target, "", `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s %s status = %d, want 400", tt.method, tt.target, rec.Code)
		}
	}
}

func TestRuleEndpointsIsolateTenants(t *testing.T) {
	srv, registry := newTestServer(&stubEngine{})
	rule := &rules.Rule{
		Name:         "rule",
		Type:         rules.TypeRegExp,
		Severity:     rules.SeverityStrong,
		State:        rules.StateEnabled,
		Expression:   `.*`,
		ErrMessageID: "m",
	}
	if err := registry.Create(context.Background(), "diku", rule); err != nil {
		t.Fatalf("failed to seed rule: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/tenant/rules/"+rule.ID, "other", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for another tenant", rec.Code)
	}
}

type failingRegistry struct {
	rules.Registry
}

func (f *failingRegistry) TenantRules(ctx context.Context, tenantID string, limit, offset int, state rules.State) (*rules.RuleCollection, error) {
	return nil, errors.New("connection refused")
}

func TestListRulesStoreFailure(t *testing.T) {
	srv := New(&failingRegistry{Registry: rules.NewInMemoryRegistry()}, &stubEngine{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/tenant/rules", "diku", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Errorf("response leaks store error: %s", rec.Body.String())
	}
}
