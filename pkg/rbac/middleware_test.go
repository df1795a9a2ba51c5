package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/contextkeys"
)

func requestWithUser(user *auth.User) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	if user != nil {
		ctx := context.WithValue(req.Context(), contextkeys.UserKey, user)
		req = req.WithContext(ctx)
	}
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequirePermission(t *testing.T) {
	checker := NewChecker(DefaultMatrix())
	handler := RequirePermission(checker, CategoryUsers, FeatureInviteUsers)(okHandler())

	t.Run("anonymous gets 401", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestWithUser(nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("role without flag gets 403", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestWithUser(&auth.User{Role: auth.RoleTechnician}))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("role with flag passes", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestWithUser(&auth.User{Role: auth.RoleManager}))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("unknown role fails closed", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestWithUser(&auth.User{Role: auth.Role("superuser")}))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(auth.RoleSystemAdmin)(okHandler())

	t.Run("anonymous gets 401", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestWithUser(nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong role gets 403", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestWithUser(&auth.User{Role: auth.RoleOrgAdmin}))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("matching role passes", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestWithUser(&auth.User{Role: auth.RoleSystemAdmin}))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
