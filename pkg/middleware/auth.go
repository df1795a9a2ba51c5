package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/contextkeys"
	"github.com/aquaops/fieldserve/pkg/httputil"
	"github.com/aquaops/fieldserve/pkg/observability"
)

// SessionMiddleware resolves the session cookie into a user
type SessionMiddleware struct {
	sessions *auth.SessionManager
	users    auth.UserStore
}

// NewSessionMiddleware creates a SessionMiddleware
func NewSessionMiddleware(sessions *auth.SessionManager, users auth.UserStore) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions, users: users}
}

// Handler attaches the authenticated user to the request context. It
// never rejects: anonymous requests, stale cookies and deactivated
// users all pass through without a user, and RequireAuth or the
// subscription gate decides what that means.
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(auth.SessionCookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		session, err := m.sessions.Get(r.Context(), cookie.Value)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.users.GetUserByID(r.Context(), session.UserID)
		if err != nil || !user.Active {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), contextkeys.UserKey, user)
		ctx = context.WithValue(ctx, contextkeys.SessionKey, session)
		ctx = observability.WithUserID(ctx, strconv.FormatInt(user.ID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests that carry no authenticated user
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromContext returns the authenticated user, or nil
func UserFromContext(ctx context.Context) *auth.User {
	user, _ := ctx.Value(contextkeys.UserKey).(*auth.User)
	return user
}

// SessionFromContext returns the resolved session, or nil
func SessionFromContext(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(contextkeys.SessionKey).(*auth.Session)
	return session
}
