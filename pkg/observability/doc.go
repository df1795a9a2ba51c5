// Package observability provides structured logging, Prometheus metrics,
// health probes, panic recovery, and graceful shutdown for the FieldServe
// service.
//
// Logging is JSON-structured with request-scoped context (request id, user
// id) carried through context.Context. Metrics cover the HTTP surface and
// the business events this service cares about: subscription-gate
// decisions, onboarding outcomes, and invitation verifications.
//
// Health probes distinguish liveness (process up) from readiness
// (PostgreSQL and Redis reachable), matching Kubernetes probe semantics.
package observability
