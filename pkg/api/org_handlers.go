package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/billing"
	"github.com/aquaops/fieldserve/pkg/gate"
	"github.com/aquaops/fieldserve/pkg/httputil"
	"github.com/aquaops/fieldserve/pkg/middleware"
	"github.com/aquaops/fieldserve/pkg/observability"
	"github.com/aquaops/fieldserve/pkg/orgs"
	"github.com/aquaops/fieldserve/pkg/rbac"
)

// OrgHandlers exposes organization details, member listings and the
// subscription sync surface used by operators
type OrgHandlers struct {
	orgs    orgs.Service
	subs    billing.Store
	gate    *gate.Gate
	checker *rbac.Checker
}

// NewOrgHandlers creates OrgHandlers. gate may be nil when gating is
// disabled; subscription changes then have no verdict cache to drop.
func NewOrgHandlers(orgService orgs.Service, subs billing.Store,
	subscriptionGate *gate.Gate, checker *rbac.Checker) *OrgHandlers {
	return &OrgHandlers{
		orgs:    orgService,
		subs:    subs,
		gate:    subscriptionGate,
		checker: checker,
	}
}

// RegisterRoutes registers the organization routes
func (h *OrgHandlers) RegisterRoutes(router *mux.Router) {
	viewMembers := rbac.RequirePermission(h.checker, rbac.CategoryUsers, rbac.FeatureViewUsers)

	router.Handle("/api/organizations/{org_id}",
		middleware.RequireAuth(http.HandlerFunc(h.GetOrganization))).Methods("GET")
	router.Handle("/api/organizations/{org_id}/members",
		middleware.RequireAuth(viewMembers(http.HandlerFunc(h.ListMembers)))).Methods("GET")
	router.Handle("/api/organizations/{org_id}/subscription",
		middleware.RequireAuth(http.HandlerFunc(h.UpsertSubscription))).Methods("PUT")
	router.Handle("/api/organizations/{org_id}/subscription/status",
		middleware.RequireAuth(http.HandlerFunc(h.UpdateSubscriptionStatus))).Methods("PUT")
	router.Handle("/api/organizations/{org_id}",
		middleware.RequireAuth(http.HandlerFunc(h.DeactivateOrganization))).Methods("DELETE")
}

// GetOrganization returns the caller's organization
func (h *OrgHandlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	org := middleware.OrgFromContext(r.Context())
	if org == nil {
		httputil.WriteNotFoundError(w, "organization not found")
		return
	}
	if !canAccessOrg(middleware.UserFromContext(r.Context()), org.ID) {
		httputil.WriteForbidden(w, "cannot access another organization")
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"organization": org})
}

// ListMembers lists the organization's members
func (h *OrgHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	org := middleware.OrgFromContext(r.Context())
	if org == nil {
		httputil.WriteNotFoundError(w, "organization not found")
		return
	}
	if !canAccessOrg(middleware.UserFromContext(r.Context()), org.ID) {
		httputil.WriteForbidden(w, "cannot access another organization")
		return
	}

	members, err := h.orgs.ListMembers(r.Context(), org.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list members")
		httputil.WriteInternalError(w, errors.New("failed to list members"))
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

type upsertSubscriptionRequest struct {
	SubscriptionID string     `json:"subscriptionId"`
	Status         string     `json:"status"`
	TrialEndsAt    *time.Time `json:"trialEndsAt,omitempty"`
}

// UpsertSubscription records a subscription for an organization and
// links it. Operator-only: this is how provider state reaches the gate
// when no webhook pipeline exists.
func (h *OrgHandlers) UpsertSubscription(w http.ResponseWriter, r *http.Request) {
	org, ok := h.requireSystemAdminOrg(w, r)
	if !ok {
		return
	}

	var req upsertSubscriptionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.SubscriptionID == "" {
		httputil.WriteValidationError(w, "subscriptionId is required")
		return
	}
	status := billing.SubscriptionStatus(req.Status)
	if !status.Valid() {
		httputil.WriteValidationError(w, "unknown subscription status: "+req.Status)
		return
	}

	sub := &billing.Subscription{
		ID:             req.SubscriptionID,
		OrganizationID: org.ID,
		Status:         status,
		TrialEndsAt:    req.TrialEndsAt,
	}
	if err := h.subs.Upsert(r.Context(), sub); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to upsert subscription")
		httputil.WriteInternalError(w, errors.New("failed to record subscription"))
		return
	}
	if err := h.orgs.SetSubscription(r.Context(), org.ID, req.SubscriptionID); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to link subscription")
		httputil.WriteInternalError(w, errors.New("failed to link subscription"))
		return
	}
	h.invalidateGate(org.ID)

	httputil.WriteSuccess(w, map[string]interface{}{"subscription": sub})
}

type updateSubscriptionStatusRequest struct {
	Status string `json:"status"`
}

// UpdateSubscriptionStatus changes the status of the organization's
// linked subscription
func (h *OrgHandlers) UpdateSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	org, ok := h.requireSystemAdminOrg(w, r)
	if !ok {
		return
	}
	if org.SubscriptionID == nil {
		httputil.WriteNotFoundError(w, "organization has no subscription")
		return
	}

	var req updateSubscriptionStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	status := billing.SubscriptionStatus(req.Status)
	if !status.Valid() {
		httputil.WriteValidationError(w, "unknown subscription status: "+req.Status)
		return
	}

	if err := h.subs.UpdateStatus(r.Context(), *org.SubscriptionID, status); err != nil {
		if errors.Is(err, billing.ErrSubscriptionNotFound) {
			httputil.WriteNotFoundError(w, "subscription not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("failed to update subscription status")
		httputil.WriteInternalError(w, errors.New("failed to update subscription"))
		return
	}
	h.invalidateGate(org.ID)

	httputil.WriteSuccessMessage(w, "subscription status updated")
}

// DeactivateOrganization soft-deletes a tenant
func (h *OrgHandlers) DeactivateOrganization(w http.ResponseWriter, r *http.Request) {
	org, ok := h.requireSystemAdminOrg(w, r)
	if !ok {
		return
	}

	if err := h.orgs.DeactivateOrganization(r.Context(), org.ID); err != nil {
		if errors.Is(err, orgs.ErrOrgNotFound) {
			httputil.WriteNotFoundError(w, "organization not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("failed to deactivate organization")
		httputil.WriteInternalError(w, errors.New("failed to deactivate organization"))
		return
	}
	h.invalidateGate(org.ID)

	httputil.WriteSuccessMessage(w, "organization deactivated")
}

// requireSystemAdminOrg resolves the path organization and requires a
// system admin caller
func (h *OrgHandlers) requireSystemAdminOrg(w http.ResponseWriter, r *http.Request) (*orgs.Organization, bool) {
	org := middleware.OrgFromContext(r.Context())
	if org == nil {
		httputil.WriteNotFoundError(w, "organization not found")
		return nil, false
	}
	user := middleware.UserFromContext(r.Context())
	if user == nil || user.Role != auth.RoleSystemAdmin {
		httputil.WriteForbidden(w, "operator access required")
		return nil, false
	}
	return org, true
}

func (h *OrgHandlers) invalidateGate(orgID int64) {
	if h.gate != nil {
		h.gate.Invalidate(orgID)
	}
}

// canAccessOrg limits reads to the caller's own organization, except
// for system admins
func canAccessOrg(user *auth.User, orgID int64) bool {
	if user == nil {
		return false
	}
	if user.Role == auth.RoleSystemAdmin {
		return true
	}
	return user.OrganizationID != nil && *user.OrganizationID == orgID
}
