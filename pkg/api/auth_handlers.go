package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/httputil"
	"github.com/aquaops/fieldserve/pkg/middleware"
	"github.com/aquaops/fieldserve/pkg/observability"
	"github.com/aquaops/fieldserve/pkg/rbac"
)

// AuthHandlers handles password login, logout and identity queries
type AuthHandlers struct {
	users    auth.UserStore
	sessions *auth.SessionManager
	checker  *rbac.Checker
	config   HandlerConfig
}

// NewAuthHandlers creates AuthHandlers
func NewAuthHandlers(users auth.UserStore, sessions *auth.SessionManager,
	checker *rbac.Checker, config HandlerConfig) *AuthHandlers {
	return &AuthHandlers{
		users:    users,
		sessions: sessions,
		checker:  checker,
		config:   config,
	}
}

// RegisterRoutes registers the auth routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/auth/login", h.Login).Methods("POST")
	router.HandleFunc("/api/auth/logout", h.Logout).Methods("POST")
	router.Handle("/api/me", middleware.RequireAuth(http.HandlerFunc(h.Me))).Methods("GET")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates a password account and installs a session cookie.
// Wrong email and wrong password answer with the same message so the
// endpoint does not confirm which accounts exist.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteValidationError(w, "email and password are required")
		return
	}

	user, err := h.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			httputil.WriteUnauthorized(w, "invalid email or password")
			return
		}
		observability.FromContext(r.Context()).WithError(err).Error("failed to look up user")
		httputil.WriteInternalError(w, errors.New("login failed"))
		return
	}

	if user.PasswordHash == "" || auth.CheckPassword(user.PasswordHash, req.Password) != nil {
		httputil.WriteUnauthorized(w, "invalid email or password")
		return
	}
	if !user.Active {
		httputil.WriteForbidden(w, "account is deactivated")
		return
	}

	session, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		observability.FromContext(r.Context()).WithError(err).Error("failed to create session")
		httputil.WriteInternalError(w, errors.New("login failed"))
		return
	}

	setSessionCookie(w, session, h.config.SecureCookies, h.config.SessionTTL)
	httputil.WriteSuccess(w, map[string]interface{}{
		"user": user.Public(),
	})
}

// Logout destroys the caller's session, if any, and clears the cookie
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("failed to destroy session")
		}
	}
	clearSessionCookie(w, h.config.SecureCookies)
	httputil.WriteSuccessMessage(w, "logged out")
}

// Me returns the caller's profile plus the full capability set for
// their role, so clients can decide which UI to show without a round
// trip per feature.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	grants := h.checker.Grants(user.Role)
	permissions := make(map[string]map[string]bool, len(grants))
	for category, flags := range grants {
		features := make(map[string]bool, len(flags))
		for feature, allowed := range flags {
			features[string(feature)] = allowed
		}
		permissions[string(category)] = features
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user":        user.Public(),
		"permissions": permissions,
	})
}
