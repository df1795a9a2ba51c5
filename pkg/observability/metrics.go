package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Subscription gate metrics
	GateDecisionsTotal  *prometheus.CounterVec
	GateFailOpenTotal   prometheus.Counter
	GateCacheHitsTotal  prometheus.Counter
	GateCacheMissesTotal prometheus.Counter

	// Onboarding metrics
	RegistrationsTotal *prometheus.CounterVec

	// Invitation metrics
	InvitationsCreatedTotal   prometheus.Counter
	InvitationVerifyTotal     *prometheus.CounterVec
	InvitationsSweptTotal     prometheus.Counter
	PendingUsersSweptTotal    prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldserve_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldserve_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		GateDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldserve_gate_decisions_total",
				Help: "Subscription gate decisions by outcome and redirect reason",
			},
			[]string{"outcome", "reason"},
		),
		GateFailOpenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldserve_gate_fail_open_total",
				Help: "Requests allowed because gate evaluation failed",
			},
		),
		GateCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldserve_gate_cache_hits_total",
				Help: "Entitlement cache hits in the subscription gate",
			},
		),
		GateCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldserve_gate_cache_misses_total",
				Help: "Entitlement cache misses in the subscription gate",
			},
		),

		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldserve_registrations_total",
				Help: "Completed registration attempts by intent and result",
			},
			[]string{"intent", "result"},
		),

		InvitationsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldserve_invitations_created_total",
				Help: "Invitations created",
			},
		),
		InvitationVerifyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldserve_invitation_verify_total",
				Help: "Invitation verification attempts by result",
			},
			[]string{"result"},
		),
		InvitationsSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldserve_invitations_swept_total",
				Help: "Invitations marked expired by the scheduled sweep",
			},
		),
		PendingUsersSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldserve_pending_users_swept_total",
				Help: "Pending OAuth users removed by the scheduled sweep",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldserve_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fieldserve_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GateDecisionsTotal,
		m.GateFailOpenTotal,
		m.GateCacheHitsTotal,
		m.GateCacheMissesTotal,
		m.RegistrationsTotal,
		m.InvitationsCreatedTotal,
		m.InvitationVerifyTotal,
		m.InvitationsSweptTotal,
		m.PendingUsersSweptTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
