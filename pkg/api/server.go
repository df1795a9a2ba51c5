package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/billing"
	"github.com/aquaops/fieldserve/pkg/gate"
	"github.com/aquaops/fieldserve/pkg/httputil"
	"github.com/aquaops/fieldserve/pkg/invitations"
	"github.com/aquaops/fieldserve/pkg/middleware"
	"github.com/aquaops/fieldserve/pkg/notify"
	"github.com/aquaops/fieldserve/pkg/oauth"
	"github.com/aquaops/fieldserve/pkg/observability"
	"github.com/aquaops/fieldserve/pkg/onboarding"
	"github.com/aquaops/fieldserve/pkg/orgs"
	"github.com/aquaops/fieldserve/pkg/pending"
	"github.com/aquaops/fieldserve/pkg/rbac"
)

// HandlerConfig carries the per-request knobs shared by all handler groups
type HandlerConfig struct {
	InvitationTTL time.Duration
	SessionTTL    time.Duration
	SecureCookies bool
}

// Deps bundles everything the server needs. google may be nil when
// sign-in is not configured, gate may be nil to disable subscription
// gating, healthChecker and registry may be nil in tests.
type Deps struct {
	Users         auth.UserStore
	Sessions      *auth.SessionManager
	Orgs          orgs.Service
	Subscriptions billing.Store
	Invitations   invitations.Store
	Pending       pending.Cache
	Orchestrator  *onboarding.Orchestrator
	Google        *oauth.Google
	Mailer        notify.Mailer
	Checker       *rbac.Checker
	Gate          *gate.Gate
	Logger        *observability.Logger
	Metrics       *observability.Metrics
	Registry      *prometheus.Registry
	HealthChecker *observability.HealthChecker
	Config        HandlerConfig
}

// Server is the HTTP front of the service. It owns the router, the
// middleware chain and the handler groups.
type Server struct {
	router       *mux.Router
	deps         Deps
	loginLimiter *middleware.RateLimiter
	tokenLimiter *middleware.RateLimiter
}

// NewServer assembles the router and all handler groups
func NewServer(deps Deps) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		deps:         deps,
		loginLimiter: middleware.NewRateLimiter(middleware.LoginRateLimitConfig()),
		tokenLimiter: middleware.NewRateLimiter(middleware.TokenEndpointRateLimitConfig()),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware installs the chain. Order matters: request identity
// and recovery first, then metrics, then rate limits, then session
// resolution, then the subscription gate.
func (s *Server) setupMiddleware() {
	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.LoggerMiddleware(s.deps.Logger))
	s.router.Use(httputil.RecoveryMiddleware(s.deps.Logger))
	s.router.Use(httputil.LoggingMiddleware(s.deps.Logger))
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics))
	}
	s.router.Use(s.rateLimitSensitiveRoutes)

	sessionMW := middleware.NewSessionMiddleware(s.deps.Sessions, s.deps.Users)
	s.router.Use(sessionMW.Handler)
	s.router.Use(middleware.OrgContextMiddleware(s.deps.Orgs))

	if s.deps.Gate != nil {
		s.router.Use(s.deps.Gate.Middleware)
	}
}

func (s *Server) setupRoutes() {
	NewAuthHandlers(s.deps.Users, s.deps.Sessions, s.deps.Checker, s.deps.Config).
		RegisterRoutes(s.router)
	NewInvitationHandlers(s.deps.Invitations, s.deps.Orgs, s.deps.Mailer,
		s.deps.Orchestrator, s.deps.Checker, s.deps.Metrics, s.deps.Config).
		RegisterRoutes(s.router)
	NewOAuthHandlers(s.deps.Google, s.deps.Pending, s.deps.Users, s.deps.Sessions,
		s.deps.Orchestrator, s.deps.Invitations, s.deps.Metrics, s.deps.Config).
		RegisterRoutes(s.router)
	NewOrgHandlers(s.deps.Orgs, s.deps.Subscriptions, s.deps.Gate, s.deps.Checker).
		RegisterRoutes(s.router)

	if s.deps.HealthChecker != nil {
		s.router.HandleFunc("/health", s.deps.HealthChecker.Readiness).Methods("GET")
		s.router.HandleFunc("/health/live", s.deps.HealthChecker.Liveness).Methods("GET")
		s.router.HandleFunc("/health/ready", s.deps.HealthChecker.Readiness).Methods("GET")
	}
	if s.deps.Registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// rateLimitSensitiveRoutes throttles credential and token guessing.
// Login endpoints get the tight login budget; the public invitation
// token endpoints get the token budget. Everything else passes through.
func (s *Server) rateLimitSensitiveRoutes(next http.Handler) http.Handler {
	loginLimited := s.loginLimiter.Handler(next)
	tokenLimited := s.tokenLimiter.Handler(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case path == "/api/auth/login" || path == "/auth/google/login":
			loginLimited.ServeHTTP(w, r)
		case path == "/api/invitations/verify" || path == "/api/invitations/accept" ||
			strings.HasPrefix(path, "/api/oauth/verify-invitation/"):
			tokenLimited.ServeHTTP(w, r)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router for extra registrations
func (s *Server) Router() *mux.Router {
	return s.router
}

// Close stops the background rate limiter sweeps
func (s *Server) Close() {
	s.loginLimiter.Stop()
	s.tokenLimiter.Stop()
}
