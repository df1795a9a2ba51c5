// Package gate enforces subscription entitlement on protected routes.
//
// The gate is middleware, not a route. It sits ahead of the app's page
// and API handlers and answers one question per request: may this
// user's organization still use the product? A denied request is
// redirected to the pricing page with a reason code rather than given a
// JSON error, because the gate guards page navigation.
//
// The gate adjudicates entitlement only, never identity. Anonymous
// requests pass through untouched, billing paths are always reachable
// so a lapsed tenant can fix their subscription, and evaluation
// failures fail open: a database outage must not lock every tenant out.
// Fail-open events are logged at error level and counted, since they
// mask real entitlement problems.
package gate
