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
	"github.com/aquaops/fieldserve/pkg/orgs"
)

func seedOrg(f *fixture, name string) *orgs.Organization {
	org := &orgs.Organization{Name: name, Active: true}
	f.orgs.CreateOrganization(nil, org) //nolint:errcheck
	return org
}

func TestCreateInvitation(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(f, "Acme Plumbing")
	h := f.invitationHandlers()

	body, _ := json.Marshal(map[string]interface{}{
		"email": "tech@example.com",
		"name":  "New Tech",
		"role":  "technician",
	})
	req := asUser(httptest.NewRequest("POST", "/api/invitations", bytes.NewReader(body)), orgAdmin(org.ID))
	rr := httptest.NewRecorder()
	h.CreateInvitation(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var resp struct {
		Success    bool `json:"success"`
		Invitation struct {
			ID     int64  `json:"id"`
			Email  string `json:"email"`
			Role   string `json:"role"`
			Status string `json:"status"`
		} `json:"invitation"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "tech@example.com", resp.Invitation.Email)
	assert.Equal(t, "technician", resp.Invitation.Role)
	assert.Equal(t, "pending", resp.Invitation.Status)

	// The token travels only in the email.
	assert.NotContains(t, rr.Body.String(), "tok-test")
	assert.Equal(t, []string{"tech@example.com"}, f.mailer.sent)
}

func TestCreateInvitation_Validation(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(f, "Acme Plumbing")
	h := f.invitationHandlers()

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"missing email", map[string]interface{}{"role": "technician"}, http.StatusBadRequest},
		{"unknown role", map[string]interface{}{"email": "a@b.c", "role": "superuser"}, http.StatusBadRequest},
		{
			"foreign organization",
			map[string]interface{}{"email": "a@b.c", "role": "technician", "organizationId": org.ID + 100},
			http.StatusForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.body)
			req := asUser(httptest.NewRequest("POST", "/api/invitations", bytes.NewReader(body)), orgAdmin(org.ID))
			rr := httptest.NewRecorder()
			h.CreateInvitation(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestCreateInvitation_MailFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(f, "Acme Plumbing")
	f.mailer.err = assert.AnError
	h := f.invitationHandlers()

	body, _ := json.Marshal(map[string]interface{}{"email": "a@b.c", "role": "technician"})
	req := asUser(httptest.NewRequest("POST", "/api/invitations", bytes.NewReader(body)), orgAdmin(org.ID))
	rr := httptest.NewRecorder()
	h.CreateInvitation(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestListInvitations(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(f, "Acme Plumbing")
	other := seedOrg(f, "Other Org")
	h := f.invitationHandlers()

	f.invites.Create(nil, &invitations.Invitation{ //nolint:errcheck
		Email: "one@example.com", Role: auth.RoleTechnician, OrganizationID: org.ID,
	}, time.Hour)
	f.invites.Create(nil, &invitations.Invitation{ //nolint:errcheck
		Email: "two@example.com", Role: auth.RoleTechnician, OrganizationID: other.ID,
	}, time.Hour)

	req := asUser(httptest.NewRequest("GET", "/api/invitations", nil), orgAdmin(org.ID))
	rr := httptest.NewRecorder()
	h.ListInvitations(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Invitations []invitationView `json:"invitations"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Invitations, 1)
	assert.Equal(t, "one@example.com", resp.Invitations[0].Email)
}

func TestCancelInvitation(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(f, "Acme Plumbing")
	h := f.invitationHandlers()

	inv := &invitations.Invitation{Email: "a@b.c", Role: auth.RoleTechnician, OrganizationID: org.ID}
	require.NoError(t, f.invites.Create(nil, inv, time.Hour))

	req := asUser(httptest.NewRequest("DELETE", "/api/invitations/1", nil), orgAdmin(org.ID))
	req = mux.SetURLVars(req, map[string]string{"id": "1"})
	rr := httptest.NewRecorder()
	h.CancelInvitation(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []int64{inv.ID}, f.invites.cancelled)
}

func TestCancelInvitation_Errors(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(f, "Acme Plumbing")
	other := seedOrg(f, "Other Org")
	h := f.invitationHandlers()

	foreign := &invitations.Invitation{Email: "a@b.c", Role: auth.RoleTechnician, OrganizationID: other.ID}
	require.NoError(t, f.invites.Create(nil, foreign, time.Hour))

	tests := []struct {
		name string
		id   string
		want int
	}{
		{"bad id", "nope", http.StatusBadRequest},
		{"unknown id", "99", http.StatusNotFound},
		{"foreign organization", "1", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := asUser(httptest.NewRequest("DELETE", "/api/invitations/"+tt.id, nil), orgAdmin(org.ID))
			req = mux.SetURLVars(req, map[string]string{"id": tt.id})
			rr := httptest.NewRecorder()
			h.CancelInvitation(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestVerifyInvitation(t *testing.T) {
	f := newFixture(t)
	h := f.invitationHandlers()
	f.invites.byToken["good"] = &invitations.VerificationResult{
		InvitationID:     1,
		Email:            "a@b.c",
		Role:             auth.RoleTechnician,
		OrganizationID:   1,
		OrganizationName: "Acme Plumbing",
		ExpiresAt:        time.Now().Add(time.Hour),
	}

	req := httptest.NewRequest("GET", "/api/invitations/verify?token=good", nil)
	rr := httptest.NewRecorder()
	h.VerifyInvitation(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Invitation verificationView `json:"invitation"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "Acme Plumbing", resp.Invitation.Organization)
	assert.Equal(t, "technician", resp.Invitation.Role)
}

func TestVerifyInvitation_Errors(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		verifyErr error
		want      int
	}{
		{"missing token", "", nil, http.StatusBadRequest},
		{"unknown token", "nope", nil, http.StatusNotFound},
		{"expired", "x", invitations.ErrExpired, http.StatusGone},
		{"already used", "x", invitations.ErrAlreadyUsed, http.StatusConflict},
		{"store failure", "x", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.invites.verifyErr = tt.verifyErr
			h := f.invitationHandlers()

			req := httptest.NewRequest("GET", "/api/invitations/verify?token="+tt.token, nil)
			rr := httptest.NewRecorder()
			h.VerifyInvitation(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestAcceptInvitation(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(f, "Acme Plumbing")
	h := f.invitationHandlers()
	f.invites.byToken["good"] = &invitations.VerificationResult{
		InvitationID:   1,
		Email:          "new@example.com",
		Name:           "New Tech",
		Role:           auth.RoleTechnician,
		OrganizationID: org.ID,
		ExpiresAt:      time.Now().Add(time.Hour),
	}

	body, _ := json.Marshal(map[string]string{"token": "good", "password": "hunter2hunter2"})
	req := httptest.NewRequest("POST", "/api/invitations/accept", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.AcceptInvitation(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotNil(t, sessionCookie(t, rr))
	assert.Equal(t, []int64{1}, f.invites.accepted)

	created, err := f.users.GetUserByEmail(req.Context(), "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleTechnician, created.Role)
}

func TestAcceptInvitation_Errors(t *testing.T) {
	f := newFixture(t)
	org := seedOrg(f, "Acme Plumbing")
	h := f.invitationHandlers()
	f.invites.byToken["good"] = &invitations.VerificationResult{
		InvitationID:   1,
		Email:          "new@example.com",
		Role:           auth.RoleTechnician,
		OrganizationID: org.ID,
		ExpiresAt:      time.Now().Add(time.Hour),
	}

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"missing token", map[string]string{"password": "hunter2hunter2"}, http.StatusBadRequest},
		{"short password", map[string]string{"token": "good", "password": "pw"}, http.StatusBadRequest},
		{"unknown token", map[string]string{"token": "nope", "password": "hunter2hunter2"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest("POST", "/api/invitations/accept", bytes.NewReader(body))
			rr := httptest.NewRecorder()
			h.AcceptInvitation(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}
