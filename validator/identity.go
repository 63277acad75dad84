package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Request headers forwarded to backend services.
const (
	HeaderTenant     = "X-Tenant"
	HeaderToken      = "X-Auth-Token"
	HeaderServiceURL = "X-Service-URL"
)

// RequestContext carries the per-request trust context needed to call backend
// services: the tenant, the caller's auth token, and the base URL under which
// the user service and programmatic rule endpoints live.
type RequestContext struct {
	TenantID   string
	Token      string
	ServiceURL string
}

// User is the resolved identity of the account whose password is validated.
type User struct {
	ID       string
	Username string
}

// UserSource resolves a user ID to the user's attributes.
type UserSource interface {
	Lookup(ctx context.Context, userID string, rc RequestContext) (*User, error)
}

// HTTPUserSource resolves users against the backend user service.
type HTTPUserSource struct {
	client *http.Client
}

// NewHTTPUserSource creates a user source using the given client.
func NewHTTPUserSource(client *http.Client) *HTTPUserSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPUserSource{client: client}
}

type userRecord struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// lookupResponse uses pointers so absent fields are distinguishable from
// empty ones.
type lookupResponse struct {
	TotalRecords *int          `json:"totalRecords"`
	Users        *[]userRecord `json:"users"`
}

// Lookup fetches the user by ID. Zero matches, multiple matches, a response
// missing the expected fields, and an unreachable service all fail with
// distinct reasons.
func (s *HTTPUserSource) Lookup(ctx context.Context, userID string, rc RequestContext) (*User, error) {
	lookupURL := fmt.Sprintf("%s/users?query=%s", rc.ServiceURL, url.QueryEscape("id=="+userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, &IdentityResolutionError{UserID: userID, Reason: IdentityUnavailable, Detail: err.Error()}
	}
	req.Header.Set(HeaderTenant, rc.TenantID)
	req.Header.Set(HeaderToken, rc.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &IdentityResolutionError{UserID: userID, Reason: IdentityUnavailable, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &IdentityResolutionError{
			UserID: userID,
			Reason: IdentityUnavailable,
			Detail: fmt.Sprintf("expected status 200, got %d: %s", resp.StatusCode, body),
		}
	}

	var lookup lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookup); err != nil {
		return nil, &IdentityResolutionError{UserID: userID, Reason: IdentityMalformed, Detail: err.Error()}
	}
	if lookup.TotalRecords == nil || lookup.Users == nil {
		return nil, &IdentityResolutionError{
			UserID: userID,
			Reason: IdentityMalformed,
			Detail: "missing field(s) totalRecords and/or users in user response",
		}
	}
	users := *lookup.Users
	// A record count that disagrees with the array is never trusted.
	if *lookup.TotalRecords != len(users) {
		return nil, &IdentityResolutionError{
			UserID: userID,
			Reason: IdentityMalformed,
			Detail: fmt.Sprintf("totalRecords is %d but users has %d entries", *lookup.TotalRecords, len(users)),
		}
	}

	switch {
	case len(users) == 0:
		return nil, &IdentityResolutionError{UserID: userID, Reason: IdentityNotFound}
	case len(users) > 1:
		return nil, &IdentityResolutionError{UserID: userID, Reason: IdentityAmbiguous}
	}

	if users[0].Username == "" {
		return nil, &IdentityResolutionError{
			UserID: userID,
			Reason: IdentityMalformed,
			Detail: "user record has no username",
		}
	}
	return &User{ID: users[0].ID, Username: users[0].Username}, nil
}
