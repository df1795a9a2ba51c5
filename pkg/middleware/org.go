package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aquaops/fieldserve/pkg/contextkeys"
	"github.com/aquaops/fieldserve/pkg/httputil"
	"github.com/aquaops/fieldserve/pkg/orgs"
)

// OrgContextMiddleware resolves the request's organization and places
// it on the context. A path naming {org_id} or {org_slug} wins;
// otherwise the authenticated user's own organization is used. Requests
// with no resolvable organization pass through without one.
func OrgContextMiddleware(orgService orgs.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vars := mux.Vars(r)

			if orgIDStr, ok := vars["org_id"]; ok {
				orgID, err := strconv.ParseInt(orgIDStr, 10, 64)
				if err != nil {
					httputil.WriteBadRequest(w, "invalid organization id")
					return
				}
				serveWithOrg(w, r, next, func(ctx context.Context) (*orgs.Organization, error) {
					return orgService.GetOrganization(ctx, orgID)
				})
				return
			}

			if slug, ok := vars["org_slug"]; ok {
				serveWithOrg(w, r, next, func(ctx context.Context) (*orgs.Organization, error) {
					return orgService.GetOrganizationBySlug(ctx, slug)
				})
				return
			}

			if user := UserFromContext(r.Context()); user != nil && user.OrganizationID != nil {
				orgID := *user.OrganizationID
				org, err := orgService.GetOrganization(r.Context(), orgID)
				if err == nil {
					ctx := context.WithValue(r.Context(), contextkeys.OrgKey, org)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func serveWithOrg(w http.ResponseWriter, r *http.Request, next http.Handler,
	lookup func(context.Context) (*orgs.Organization, error)) {
	org, err := lookup(r.Context())
	if err != nil {
		httputil.WriteNotFoundError(w, "organization not found")
		return
	}
	ctx := context.WithValue(r.Context(), contextkeys.OrgKey, org)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// OrgFromContext returns the resolved organization, or nil
func OrgFromContext(ctx context.Context) *orgs.Organization {
	org, _ := ctx.Value(contextkeys.OrgKey).(*orgs.Organization)
	return org
}
