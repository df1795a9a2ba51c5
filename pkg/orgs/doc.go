// Package orgs manages organizations (tenants).
//
// Every piece of business data is scoped to one organization. This
// package owns the organization record: creation with deterministic,
// collision-safe slugs, a trial window for new tenants, the pointer to
// the tenant's subscription, and member listing.
//
// Organizations are normally deactivated, never deleted. The hard
// DeleteOrganization exists only as the compensating action for a failed
// onboarding attempt, before any business data references the tenant.
package orgs
