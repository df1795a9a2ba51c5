// Package pending stages OAuth users between authentication and
// onboarding.
//
// A user who signs in with Google but has no account yet is parked here
// while the frontend walks them through choosing an organization. The
// staging record lives in Redis under pending_oauth:<external id> with
// a short TTL; abandoning the flow simply lets the record expire, and
// re-authenticating overwrites it and restarts the clock. Nothing
// durable exists until onboarding completes.
package pending
