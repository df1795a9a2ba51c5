package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/httputil"
	"github.com/aquaops/fieldserve/pkg/invitations"
	"github.com/aquaops/fieldserve/pkg/middleware"
	"github.com/aquaops/fieldserve/pkg/notify"
	"github.com/aquaops/fieldserve/pkg/observability"
	"github.com/aquaops/fieldserve/pkg/onboarding"
	"github.com/aquaops/fieldserve/pkg/orgs"
	"github.com/aquaops/fieldserve/pkg/rbac"
)

// InvitationHandlers handles invitation management and acceptance
type InvitationHandlers struct {
	invites      invitations.Store
	orgs         orgs.Service
	mailer       notify.Mailer
	orchestrator *onboarding.Orchestrator
	checker      *rbac.Checker
	metrics      *observability.Metrics
	config       HandlerConfig
}

// NewInvitationHandlers creates InvitationHandlers
func NewInvitationHandlers(invites invitations.Store, orgService orgs.Service,
	mailer notify.Mailer, orchestrator *onboarding.Orchestrator,
	checker *rbac.Checker, metrics *observability.Metrics, config HandlerConfig) *InvitationHandlers {
	return &InvitationHandlers{
		invites:      invites,
		orgs:         orgService,
		mailer:       mailer,
		orchestrator: orchestrator,
		checker:      checker,
		metrics:      metrics,
		config:       config,
	}
}

// RegisterRoutes registers invitation routes. The verify and accept
// endpoints are public; management requires the invite_users flag.
func (h *InvitationHandlers) RegisterRoutes(router *mux.Router) {
	manage := rbac.RequirePermission(h.checker, rbac.CategoryUsers, rbac.FeatureInviteUsers)

	router.Handle("/api/invitations",
		middleware.RequireAuth(manage(http.HandlerFunc(h.CreateInvitation)))).Methods("POST")
	router.Handle("/api/invitations",
		middleware.RequireAuth(manage(http.HandlerFunc(h.ListInvitations)))).Methods("GET")
	router.Handle("/api/invitations/{id}",
		middleware.RequireAuth(manage(http.HandlerFunc(h.CancelInvitation)))).Methods("DELETE")

	router.HandleFunc("/api/invitations/verify", h.VerifyInvitation).Methods("GET")
	router.HandleFunc("/api/invitations/accept", h.AcceptInvitation).Methods("POST")
}

type createInvitationRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	OrganizationID int64  `json:"organizationId"`
}

// CreateInvitation creates an invitation and emails its accept link
func (h *InvitationHandlers) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var req createInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteValidationError(w, "email is required")
		return
	}
	role := auth.Role(req.Role)
	if !role.Valid() {
		httputil.WriteValidationError(w, "unknown role: "+req.Role)
		return
	}

	orgID := req.OrganizationID
	if orgID == 0 && user.OrganizationID != nil {
		orgID = *user.OrganizationID
	}
	if !h.canManageOrg(user, orgID) {
		httputil.WriteForbidden(w, "cannot invite into another organization")
		return
	}

	org, err := h.orgs.GetOrganization(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, orgs.ErrOrgNotFound) {
			httputil.WriteNotFoundError(w, "organization not found")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("failed to load organization")
		httputil.WriteInternalError(w, errors.New("failed to create invitation"))
		return
	}

	inv := &invitations.Invitation{
		Email:          req.Email,
		Name:           req.Name,
		Role:           role,
		OrganizationID: orgID,
		CreatedBy:      user.ID,
	}
	if err := h.invites.Create(r.Context(), inv, h.config.InvitationTTL); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to create invitation")
		httputil.WriteInternalError(w, errors.New("failed to create invitation"))
		return
	}
	h.metrics.InvitationsCreatedTotal.Inc()

	// Email delivery is best effort; the link can be resent from the
	// invitations list.
	if err := h.mailer.SendInvitation(r.Context(), inv, org.Name); err != nil {
		observability.FromContext(r.Context()).WithError(err).
			WithField("invitation_id", inv.ID).Warn("failed to send invitation email")
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"invitation": viewInvitation(inv),
	})
}

// ListInvitations lists the caller's organization invitations
func (h *InvitationHandlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user.OrganizationID == nil {
		httputil.WriteSuccess(w, map[string]interface{}{"invitations": []invitationView{}})
		return
	}

	invs, err := h.invites.ListByOrganization(r.Context(), *user.OrganizationID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to list invitations")
		httputil.WriteInternalError(w, errors.New("failed to list invitations"))
		return
	}

	views := make([]invitationView, 0, len(invs))
	for _, inv := range invs {
		views = append(views, viewInvitation(inv))
	}
	httputil.WriteSuccess(w, map[string]interface{}{"invitations": views})
}

// CancelInvitation withdraws a pending invitation
func (h *InvitationHandlers) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid invitation id")
		return
	}

	inv, err := h.invites.Get(r.Context(), id)
	if err != nil {
		writeInvitationError(w, err)
		return
	}
	if !h.canManageOrg(user, inv.OrganizationID) {
		httputil.WriteForbidden(w, "cannot cancel another organization's invitation")
		return
	}

	if err := h.invites.Cancel(r.Context(), id); err != nil {
		writeInvitationError(w, err)
		return
	}
	httputil.WriteSuccessMessage(w, "invitation cancelled")
}

// VerifyInvitation resolves a token for the accept page
func (h *InvitationHandlers) VerifyInvitation(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.WriteValidationError(w, "token is required")
		return
	}
	verifyAndRespond(w, r, h.invites, h.metrics, token)
}

// verifyAndRespond is shared with the oauth-flavored verification route
func verifyAndRespond(w http.ResponseWriter, r *http.Request,
	invites invitations.Store, metrics *observability.Metrics, token string) {
	result, err := invites.Verify(r.Context(), token)
	if err != nil {
		metrics.InvitationVerifyTotal.WithLabelValues(verifyResultLabel(err)).Inc()
		writeInvitationError(w, err)
		return
	}
	metrics.InvitationVerifyTotal.WithLabelValues("valid").Inc()

	httputil.WriteSuccess(w, map[string]interface{}{
		"invitation": viewVerification(result),
	})
}

type acceptInvitationRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// AcceptInvitation creates a password account from an invitation
func (h *InvitationHandlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Token == "" {
		httputil.WriteValidationError(w, "token is required")
		return
	}

	result, err := h.orchestrator.AcceptInvitation(r.Context(), req.Token, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, onboarding.ErrValidation):
			httputil.WriteValidationError(w, err.Error())
		case errors.Is(err, auth.ErrDuplicateUser):
			httputil.WriteConflict(w, "an account with this email already exists")
		default:
			writeInvitationError(w, err)
		}
		return
	}

	if result.Session != nil {
		setSessionCookie(w, result.Session, h.config.SecureCookies, h.config.SessionTTL)
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"redirectTo": result.RedirectTo,
		"user":       result.User.Public(),
	})
}

// canManageOrg limits invitation management to the caller's own
// organization, except for system admins
func (h *InvitationHandlers) canManageOrg(user *auth.User, orgID int64) bool {
	if user.Role == auth.RoleSystemAdmin {
		return true
	}
	return user.OrganizationID != nil && *user.OrganizationID == orgID
}

// writeInvitationError maps invitation sentinels onto their HTTP codes
func writeInvitationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, invitations.ErrNotFound):
		httputil.WriteNotFoundError(w, "invitation not found")
	case errors.Is(err, invitations.ErrExpired):
		httputil.WriteGone(w, "invitation has expired")
	case errors.Is(err, invitations.ErrAlreadyUsed):
		httputil.WriteConflict(w, "invitation has already been used")
	default:
		httputil.WriteInternalError(w, errors.New("invitation lookup failed"))
	}
}

func verifyResultLabel(err error) string {
	switch {
	case errors.Is(err, invitations.ErrNotFound):
		return "not_found"
	case errors.Is(err, invitations.ErrExpired):
		return "expired"
	case errors.Is(err, invitations.ErrAlreadyUsed):
		return "already_used"
	default:
		return "error"
	}
}
