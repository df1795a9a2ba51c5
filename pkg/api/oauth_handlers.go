package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/httputil"
	"github.com/aquaops/fieldserve/pkg/invitations"
	"github.com/aquaops/fieldserve/pkg/oauth"
	"github.com/aquaops/fieldserve/pkg/observability"
	"github.com/aquaops/fieldserve/pkg/onboarding"
	"github.com/aquaops/fieldserve/pkg/pending"
)

// OAuthHandlers handles Google sign-in and registration completion
type OAuthHandlers struct {
	google       *oauth.Google
	pending      pending.Cache
	users        auth.UserStore
	sessions     *auth.SessionManager
	orchestrator *onboarding.Orchestrator
	invites      invitations.Store
	metrics      *observability.Metrics
	config       HandlerConfig
}

// NewOAuthHandlers creates OAuthHandlers. google may be nil when
// sign-in is not configured; the login routes then answer 503.
func NewOAuthHandlers(google *oauth.Google, pendingCache pending.Cache,
	users auth.UserStore, sessions *auth.SessionManager,
	orchestrator *onboarding.Orchestrator, invites invitations.Store,
	metrics *observability.Metrics, config HandlerConfig) *OAuthHandlers {
	return &OAuthHandlers{
		google:       google,
		pending:      pendingCache,
		users:        users,
		sessions:     sessions,
		orchestrator: orchestrator,
		invites:      invites,
		metrics:      metrics,
		config:       config,
	}
}

// RegisterRoutes registers the sign-in and registration routes, all
// public by design: their callers do not have a session yet.
func (h *OAuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/google/login", h.Login).Methods("GET")
	router.HandleFunc("/auth/google/callback", h.Callback).Methods("GET")

	router.HandleFunc("/api/oauth/complete-registration", h.CompleteRegistration).Methods("POST")
	router.HandleFunc("/api/oauth/pending/{googleId}", h.GetPending).Methods("GET")
	router.HandleFunc("/api/oauth/verify-invitation/{token}", h.VerifyInvitation).Methods("GET")
}

// Login starts the Google handshake
func (h *OAuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		httputil.WriteServiceUnavailable(w, "google sign-in is not configured")
		return
	}

	state, err := oauth.GenerateState()
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to generate oauth state")
		httputil.WriteInternalError(w, errors.New("failed to start sign-in"))
		return
	}

	oauth.SetStateCookie(w, state, h.config.SecureCookies)
	http.Redirect(w, r, h.google.AuthCodeURL(state), http.StatusFound)
}

// Callback finishes the handshake. An already-registered identity gets
// a session; a new one is staged for onboarding.
func (h *OAuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		httputil.WriteServiceUnavailable(w, "google sign-in is not configured")
		return
	}
	logger := observability.FromContext(r.Context())

	if err := oauth.VerifyState(r, r.URL.Query().Get("state")); err != nil {
		httputil.WriteBadRequest(w, "invalid oauth state")
		return
	}
	oauth.ClearStateCookie(w, h.config.SecureCookies)

	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "missing authorization code")
		return
	}

	profile, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		logger.WithError(err).Warn("oauth code exchange failed")
		httputil.WriteBadRequest(w, "sign-in failed")
		return
	}

	user, err := h.users.GetUserByExternalID(r.Context(), profile.ExternalID)
	switch {
	case err == nil:
		h.establishSession(w, r, user)
	case errors.Is(err, auth.ErrUserNotFound):
		h.stagePending(w, r, profile)
	default:
		logger.WithError(err).Error("failed to look up oauth identity")
		httputil.WriteInternalError(w, errors.New("sign-in failed"))
	}
}

// establishSession logs a returning user in and sends them to the app
func (h *OAuthHandlers) establishSession(w http.ResponseWriter, r *http.Request, user *auth.User) {
	if !user.Active {
		httputil.WriteForbidden(w, "account is deactivated")
		return
	}

	session, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to create session")
		httputil.WriteInternalError(w, errors.New("sign-in failed"))
		return
	}

	setSessionCookie(w, session, h.config.SecureCookies, h.config.SessionTTL)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// stagePending parks a first-time identity and sends it to onboarding
func (h *OAuthHandlers) stagePending(w http.ResponseWriter, r *http.Request, profile *oauth.Profile) {
	staged := &pending.User{
		ExternalID: profile.ExternalID,
		Email:      profile.Email,
		Name:       profile.Name,
		PhotoURL:   profile.PhotoURL,
	}
	if err := h.pending.Store(r.Context(), staged); err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to stage pending user")
		httputil.WriteInternalError(w, errors.New("sign-in failed"))
		return
	}

	http.Redirect(w, r, "/onboarding?googleId="+profile.ExternalID, http.StatusFound)
}

type completeRegistrationRequest struct {
	GoogleID         string `json:"googleId"`
	Action           string `json:"action"`
	OrganizationName string `json:"organizationName,omitempty"`
	OrganizationType string `json:"organizationType,omitempty"`
	InvitationCode   string `json:"invitationCode,omitempty"`
}

// CompleteRegistration finishes onboarding for a staged identity
func (h *OAuthHandlers) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	var req completeRegistrationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.GoogleID == "" {
		httputil.WriteValidationError(w, "googleId is required")
		return
	}

	result, err := h.orchestrator.CompleteRegistration(r.Context(), &onboarding.Request{
		ExternalID:       req.GoogleID,
		Action:           onboarding.Action(req.Action),
		OrganizationName: req.OrganizationName,
		OrganizationType: req.OrganizationType,
		InvitationToken:  req.InvitationCode,
	})
	if err != nil {
		h.writeRegistrationError(w, r, err)
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

// GetPending returns the non-sensitive projection of a staged identity
// for the onboarding UI
func (h *OAuthHandlers) GetPending(w http.ResponseWriter, r *http.Request) {
	googleID := mux.Vars(r)["googleId"]

	staged, err := h.pending.Get(r.Context(), googleID)
	if err != nil {
		if errors.Is(err, pending.ErrPendingNotFound) {
			httputil.WriteNotFoundError(w, "no pending registration")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("failed to load pending user")
		httputil.WriteInternalError(w, errors.New("failed to load pending registration"))
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"pendingUser": map[string]interface{}{
			"email":    staged.Email,
			"name":     staged.Name,
			"photoUrl": staged.PhotoURL,
		},
	})
}

// VerifyInvitation is the oauth-flow flavor of invitation verification
func (h *OAuthHandlers) VerifyInvitation(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	verifyAndRespond(w, r, h.invites, h.metrics, token)
}

// writeRegistrationError maps orchestrator failures onto HTTP codes
func (h *OAuthHandlers) writeRegistrationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pending.ErrPendingNotFound):
		httputil.WriteNotFoundError(w, "no pending registration; please sign in again")
	case errors.Is(err, onboarding.ErrValidation):
		httputil.WriteValidationError(w, err.Error())
	case errors.Is(err, auth.ErrDuplicateUser):
		httputil.WriteConflict(w, "an account with this email already exists")
	case errors.Is(err, invitations.ErrNotFound),
		errors.Is(err, invitations.ErrExpired),
		errors.Is(err, invitations.ErrAlreadyUsed):
		writeInvitationError(w, err)
	default:
		logger := observability.FromContext(r.Context()).WithError(err)
		if errors.Is(err, onboarding.ErrInconsistent) {
			logger.Error("registration left inconsistent state")
		} else {
			logger.Error("registration failed")
		}
		httputil.WriteInternalError(w, errors.New("registration failed"))
	}
}
