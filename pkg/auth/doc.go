// Package auth provides user accounts, roles, passwords, and sessions.
//
// # Roles
//
// Roles are a closed enumeration. There is no implicit hierarchy: each
// role's capabilities are declared independently in pkg/rbac.
//
//	auth.RoleOrgAdmin.Valid() // true
//	auth.Role("superuser").Valid() // false
//
// # Users
//
// A user belongs to exactly one organization. OAuth users carry an
// external identity id and no password; password users carry a bcrypt
// hash and no external id.
//
// # Sessions
//
// SessionManager issues opaque session tokens backed by Redis with a
// server-enforced TTL, so any instance can resolve a session.
package auth
