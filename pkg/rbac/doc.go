// Package rbac provides role-based permission evaluation.
//
// # Permission Matrix
//
// The matrix is a static mapping Role -> ResourceCategory -> Feature -> bool,
// complete for every declared role and feature. Evaluation is a pure lookup:
//
//	checker := rbac.NewChecker(rbac.DefaultMatrix())
//	checker.CanPerform(auth.RoleManager, rbac.CategoryClients, rbac.FeatureEditClients)
//
// Unknown roles, categories, and features all resolve to false (fail-closed);
// evaluation never panics. Visibility is gated by each category's explicit
// view_* feature:
//
//	checker.CanView(auth.RoleTechnician, rbac.CategorySchedule)
//
// # Overrides
//
// A deployment may flip individual flags in memory via SetOverride. Overrides
// are not persisted; they exist so operators can adjust capabilities without a
// rebuild.
package rbac
