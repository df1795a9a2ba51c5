// Package middleware provides the request-scoped plumbing between the
// router and the handlers.
//
// SessionMiddleware resolves the session cookie into a user and places
// it on the request context; it never rejects, so public pages and the
// subscription gate can run behind it. RequireAuth is the hard check
// for API routes. OrgContextMiddleware resolves the tenant, and
// RateLimiter slows down credential and token guessing on the
// unauthenticated endpoints.
package middleware
