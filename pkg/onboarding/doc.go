// Package onboarding turns authenticated-but-unregistered people into
// members of an organization.
//
// Two flows converge here. An OAuth user staged in the pending cache
// completes registration by either founding a new organization (they
// become its org_admin) or joining an existing one through an
// invitation, which dictates their role. A password user accepts an
// invitation directly, choosing a password instead of arriving through
// OAuth.
//
// Ordering is the point of this package: durable records are created
// first, the invitation is consumed after them, and the pending record
// and session come last. A failure partway through rolls back what was
// created, so a user can always retry from a clean slate.
package onboarding
