package rbac

import (
	"net/http"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/contextkeys"
	"github.com/aquaops/fieldserve/pkg/httputil"
)

// UserFromContext extracts the authenticated user placed by the session
// middleware, or nil when the request is anonymous.
func UserFromContext(r *http.Request) *auth.User {
	user, _ := r.Context().Value(contextkeys.UserKey).(*auth.User)
	return user
}

// RequirePermission gates a handler behind a matrix flag. Anonymous
// requests get 401; authenticated requests without the flag get 403.
func RequirePermission(checker *Checker, category ResourceCategory, feature Feature) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r)
			if user == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			if !checker.CanPerform(user.Role, category, feature) {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole gates a handler to an explicit set of roles. Used for the
// few endpoints where a capability flag is the wrong shape, like
// system-admin-only operations.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	allowed := make(map[auth.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromContext(r)
			if user == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			if !allowed[user.Role] {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
