package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/invitations"
	"github.com/aquaops/fieldserve/pkg/pending"
)

func stagePending(f *fixture, externalID, email string) {
	f.pending.staged[externalID] = &pending.User{
		ExternalID: externalID,
		Email:      email,
		Name:       "Jane Doe",
		PhotoURL:   "https://example.com/jane.png",
		CreatedAt:  time.Now().UTC(),
	}
}

func TestOAuthLogin_NotConfigured(t *testing.T) {
	f := newFixture(t)
	h := f.oauthHandlers()

	rr := httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest("GET", "/auth/google/login", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	h.Callback(rr, httptest.NewRequest("GET", "/auth/google/callback", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestCompleteRegistration_CreateOrganization(t *testing.T) {
	f := newFixture(t)
	h := f.oauthHandlers()
	stagePending(f, "google-123", "jane@example.com")

	body, _ := json.Marshal(map[string]string{
		"googleId":         "google-123",
		"action":           "create",
		"organizationName": "Jane's Plumbing",
	})
	req := httptest.NewRequest("POST", "/api/oauth/complete-registration", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.CompleteRegistration(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotNil(t, sessionCookie(t, rr))

	var resp struct {
		Success    bool                   `json:"success"`
		RedirectTo string                 `json:"redirectTo"`
		User       map[string]interface{} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RedirectTo)
	assert.Equal(t, "jane@example.com", resp.User["email"])

	// The staged record is consumed; a second submit must fail.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/oauth/complete-registration", bytes.NewReader(body))
	h.CompleteRegistration(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCompleteRegistration_JoinByInvitation(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(f, "Acme Plumbing")
	h := f.oauthHandlers()
	stagePending(f, "google-456", "tech@example.com")
	f.invites.byToken["invite-tok"] = &invitations.VerificationResult{
		InvitationID:   7,
		Email:          "tech@example.com",
		Role:           auth.RoleTechnician,
		OrganizationID: org.ID,
		ExpiresAt:      time.Now().Add(time.Hour),
	}

	body, _ := json.Marshal(map[string]string{
		"googleId":       "google-456",
		"action":         "join",
		"invitationCode": "invite-tok",
	})
	req := httptest.NewRequest("POST", "/api/oauth/complete-registration", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.CompleteRegistration(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []int64{7}, f.invites.accepted)

	created, err := f.users.GetUserByExternalID(req.Context(), "google-456")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleTechnician, created.Role)
	require.NotNil(t, created.OrganizationID)
	assert.Equal(t, org.ID, *created.OrganizationID)
}

func TestCompleteRegistration_Errors(t *testing.T) {
	f := newFixture(t)
	h := f.oauthHandlers()
	stagePending(f, "google-123", "jane@example.com")

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"missing googleId", map[string]string{"action": "create"}, http.StatusBadRequest},
		{
			"unknown pending",
			map[string]string{"googleId": "nope", "action": "create", "organizationName": "X"},
			http.StatusNotFound,
		},
		{
			"create without organization name",
			map[string]string{"googleId": "google-123", "action": "create"},
			http.StatusBadRequest,
		},
		{
			"unknown action",
			map[string]string{"googleId": "google-123", "action": "merge"},
			http.StatusBadRequest,
		},
		{
			"join with unknown invitation",
			map[string]string{"googleId": "google-123", "action": "join", "invitationCode": "nope"},
			http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest("POST", "/api/oauth/complete-registration", bytes.NewReader(body))
			rr := httptest.NewRecorder()
			h.CompleteRegistration(rr, req)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestGetPending(t *testing.T) {
	f := newFixture(t)
	h := f.oauthHandlers()
	stagePending(f, "google-123", "jane@example.com")

	req := httptest.NewRequest("GET", "/api/oauth/pending/google-123", nil)
	req = mux.SetURLVars(req, map[string]string{"googleId": "google-123"})
	rr := httptest.NewRecorder()
	h.GetPending(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		PendingUser map[string]string `json:"pendingUser"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "jane@example.com", resp.PendingUser["email"])
	assert.Equal(t, "Jane Doe", resp.PendingUser["name"])
}

func TestGetPending_NotFound(t *testing.T) {
	f := newFixture(t)
	h := f.oauthHandlers()

	req := httptest.NewRequest("GET", "/api/oauth/pending/nope", nil)
	req = mux.SetURLVars(req, map[string]string{"googleId": "nope"})
	rr := httptest.NewRecorder()
	h.GetPending(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOAuthVerifyInvitation(t *testing.T) {
	f := newFixture(t)
	h := f.oauthHandlers()
	f.invites.byToken["good"] = &invitations.VerificationResult{
		InvitationID:     1,
		Email:            "a@b.c",
		Role:             auth.RoleTechnician,
		OrganizationID:   1,
		OrganizationName: "Acme Plumbing",
		ExpiresAt:        time.Now().Add(time.Hour),
	}

	req := httptest.NewRequest("GET", "/api/oauth/verify-invitation/good", nil)
	req = mux.SetURLVars(req, map[string]string{"token": "good"})
	rr := httptest.NewRecorder()
	h.VerifyInvitation(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Acme Plumbing")
}
