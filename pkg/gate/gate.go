package gate

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/billing"
	"github.com/aquaops/fieldserve/pkg/contextkeys"
	"github.com/aquaops/fieldserve/pkg/observability"
	"github.com/aquaops/fieldserve/pkg/orgs"
)

// PricingPath is where denied requests are redirected
const PricingPath = "/pricing"

// Reason explains a gate denial. It is appended to the pricing page URL
// so the page can show the right message.
type Reason string

// Denial reasons
const (
	ReasonNoOrganization       Reason = "no-organization"
	ReasonNoSubscription       Reason = "no-subscription"
	ReasonInvalidSubscription  Reason = "invalid-subscription"
	ReasonInactiveSubscription Reason = "inactive-subscription"
	ReasonTrialEnded           Reason = "trial-ended"
)

// Config tunes the gate. Allow-lists are configuration, not business
// logic; they come from the deployment, not from code.
type Config struct {
	// AllowedPathPrefixes always pass. Must include the billing flow
	// itself or a lapsed tenant can never reach the page that fixes
	// their subscription.
	AllowedPathPrefixes []string
	// ExemptRoles bypass the gate unconditionally.
	ExemptRoles []auth.Role
	// ExemptEmails is the operational backdoor for support and ops
	// accounts.
	ExemptEmails []string
	// CacheSize and CacheTTL bound the entitlement cache. Defaults are
	// applied when zero.
	CacheSize int
	CacheTTL  time.Duration
}

// DefaultConfig returns a gate configuration with the standard
// allow-list and exemptions
func DefaultConfig() Config {
	return Config{
		AllowedPathPrefixes: []string{
			PricingPath,
			"/login",
			"/logout",
			"/auth/",
			"/api/oauth/",
			"/api/invitations/verify",
			"/api/invitations/accept",
			"/static/",
			"/health",
			"/metrics",
		},
		ExemptRoles: []auth.Role{auth.RoleSystemAdmin},
		CacheSize:   1024,
		CacheTTL:    time.Minute,
	}
}

// decision is a cached entitlement verdict for one organization
type decision struct {
	allowed bool
	reason  Reason
}

// Gate evaluates subscription entitlement per request
type Gate struct {
	mu      sync.RWMutex
	config  Config
	orgs    orgs.Service
	subs    billing.Store
	cache   *expirable.LRU[int64, decision]
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// New creates a Gate
func New(config Config, orgService orgs.Service, subs billing.Store,
	logger *observability.Logger, metrics *observability.Metrics) *Gate {
	if config.CacheSize <= 0 {
		config.CacheSize = 1024
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = time.Minute
	}
	return &Gate{
		config:  config,
		orgs:    orgService,
		subs:    subs,
		cache:   expirable.NewLRU[int64, decision](config.CacheSize, nil, config.CacheTTL),
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Invalidate drops the cached verdict for an organization. Called when
// a subscription changes so the gate notices without waiting out the
// TTL.
func (g *Gate) Invalidate(orgID int64) {
	g.cache.Remove(orgID)
}

// UpdateRules swaps the allow-lists at runtime, for config hot reload
func (g *Gate) UpdateRules(pathPrefixes []string, roles []auth.Role, emails []string) {
	g.mu.Lock()
	g.config.AllowedPathPrefixes = pathPrefixes
	g.config.ExemptRoles = roles
	g.config.ExemptEmails = emails
	g.mu.Unlock()
}

// Middleware wraps a handler with the entitlement check
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.pathAllowed(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		user, ok := r.Context().Value(contextkeys.UserKey).(*auth.User)
		if !ok || user == nil {
			// Identity is someone else's job.
			next.ServeHTTP(w, r)
			return
		}

		if g.exempt(user) {
			g.metrics.GateDecisionsTotal.WithLabelValues("allow", "exempt").Inc()
			next.ServeHTTP(w, r)
			return
		}

		if user.OrganizationID == nil {
			g.redirect(w, r, ReasonNoOrganization)
			return
		}

		verdict, err := g.entitlement(r, *user.OrganizationID)
		if err != nil {
			// Fail open. Locking every tenant out over a transient
			// fault is worse than letting a lapsed one through.
			g.logger.WithError(err).WithFields(map[string]interface{}{
				"path":            r.URL.Path,
				"user_id":         user.ID,
				"organization_id": *user.OrganizationID,
			}).Error("entitlement evaluation failed, allowing request")
			g.metrics.GateFailOpenTotal.Inc()
			g.metrics.GateDecisionsTotal.WithLabelValues("fail_open", "error").Inc()
			next.ServeHTTP(w, r)
			return
		}

		if !verdict.allowed {
			g.redirect(w, r, verdict.reason)
			return
		}

		g.metrics.GateDecisionsTotal.WithLabelValues("allow", "entitled").Inc()
		next.ServeHTTP(w, r)
	})
}

func (g *Gate) pathAllowed(path string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, prefix := range g.config.AllowedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (g *Gate) exempt(user *auth.User) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, role := range g.config.ExemptRoles {
		if user.Role == role {
			return true
		}
	}
	for _, email := range g.config.ExemptEmails {
		if user.Email == email {
			return true
		}
	}
	return false
}

// entitlement resolves the cached verdict for an organization,
// evaluating on a miss
func (g *Gate) entitlement(r *http.Request, orgID int64) (decision, error) {
	if verdict, ok := g.cache.Get(orgID); ok {
		g.metrics.GateCacheHitsTotal.Inc()
		return verdict, nil
	}
	g.metrics.GateCacheMissesTotal.Inc()

	verdict, err := g.evaluate(r, orgID)
	if err != nil {
		return decision{}, err
	}

	g.cache.Add(orgID, verdict)
	return verdict, nil
}

// evaluate walks the entitlement chain for an organization
func (g *Gate) evaluate(r *http.Request, orgID int64) (decision, error) {
	ctx := r.Context()

	org, err := g.orgs.GetOrganization(ctx, orgID)
	if errors.Is(err, orgs.ErrOrgNotFound) {
		return decision{reason: ReasonNoOrganization}, nil
	}
	if err != nil {
		return decision{}, fmt.Errorf("failed to resolve organization: %w", err)
	}

	if org.SubscriptionID == nil || *org.SubscriptionID == "" {
		return decision{reason: ReasonNoSubscription}, nil
	}

	sub, err := g.subs.GetByOrganization(ctx, orgID)
	if errors.Is(err, billing.ErrSubscriptionNotFound) {
		// The organization points at a subscription that does not
		// exist. Treat dangling data as not entitled, not as an error.
		return decision{reason: ReasonInvalidSubscription}, nil
	}
	if err != nil {
		return decision{}, fmt.Errorf("failed to resolve subscription: %w", err)
	}

	switch sub.Status {
	case billing.StatusActive:
		return decision{allowed: true}, nil
	case billing.StatusTrialing:
		if sub.TrialEndsAt == nil || !g.now().Before(*sub.TrialEndsAt) {
			return decision{reason: ReasonTrialEnded}, nil
		}
		return decision{allowed: true}, nil
	default:
		return decision{reason: ReasonInactiveSubscription}, nil
	}
}

func (g *Gate) redirect(w http.ResponseWriter, r *http.Request, reason Reason) {
	g.metrics.GateDecisionsTotal.WithLabelValues("redirect", string(reason)).Inc()
	observability.FromContext(r.Context()).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"reason": string(reason),
	}).Info("request redirected by subscription gate")

	location := PricingPath + "?error=" + url.QueryEscape(string(reason))
	http.Redirect(w, r, location, http.StatusFound)
}
