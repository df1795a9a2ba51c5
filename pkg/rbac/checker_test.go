package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aquaops/fieldserve/pkg/auth"
)

func TestDefaultMatrix_Complete(t *testing.T) {
	matrix := DefaultMatrix()

	for _, role := range auth.AllRoles {
		grants, ok := matrix[role]
		assert.True(t, ok, "role %s missing from matrix", role)

		for category, features := range CategoryFeatures {
			flags, ok := grants[category]
			assert.True(t, ok, "role %s missing category %s", role, category)

			for _, feature := range features {
				_, ok := flags[feature]
				assert.True(t, ok, "role %s category %s missing feature %s", role, category, feature)
			}
		}
	}
}

func TestChecker_CanPerform(t *testing.T) {
	checker := NewChecker(DefaultMatrix())

	tests := []struct {
		name     string
		role     auth.Role
		category ResourceCategory
		feature  Feature
		want     bool
	}{
		{"org_admin manages users", auth.RoleOrgAdmin, CategoryUsers, FeatureManageUsers, true},
		{"org_admin manages billing", auth.RoleOrgAdmin, CategoryBilling, FeatureManageBilling, true},
		{"system_admin edits settings", auth.RoleSystemAdmin, CategorySettings, FeatureEditSettings, true},
		{"legacy admin manages users", auth.RoleAdmin, CategoryUsers, FeatureManageUsers, true},
		{"manager edits clients", auth.RoleManager, CategoryClients, FeatureEditClients, true},
		{"manager cannot delete clients", auth.RoleManager, CategoryClients, FeatureDeleteClients, false},
		{"manager cannot manage billing", auth.RoleManager, CategoryBilling, FeatureManageBilling, false},
		{"manager invites users", auth.RoleManager, CategoryUsers, FeatureInviteUsers, true},
		{"office staff sends invoices", auth.RoleOfficeStaff, CategoryInvoicing, FeatureSendInvoices, true},
		{"office staff cannot edit settings", auth.RoleOfficeStaff, CategorySettings, FeatureEditSettings, false},
		{"technician edits maintenance", auth.RoleTechnician, CategoryMaintenance, FeatureEditMaintenance, true},
		{"technician cannot edit clients", auth.RoleTechnician, CategoryClients, FeatureEditClients, false},
		{"client views invoices", auth.RoleClient, CategoryInvoicing, FeatureViewInvoices, true},
		{"client cannot view users", auth.RoleClient, CategoryUsers, FeatureViewUsers, false},
		{"vendor views schedule", auth.RoleVendor, CategorySchedule, FeatureViewSchedule, true},
		{"vendor cannot view invoices", auth.RoleVendor, CategoryInvoicing, FeatureViewInvoices, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checker.CanPerform(tt.role, tt.category, tt.feature))
		})
	}
}

func TestChecker_FailClosed(t *testing.T) {
	checker := NewChecker(DefaultMatrix())

	t.Run("unknown role denied everywhere", func(t *testing.T) {
		for category, features := range CategoryFeatures {
			for _, feature := range features {
				assert.False(t, checker.CanPerform(auth.Role("superuser"), category, feature))
			}
			assert.False(t, checker.CanView(auth.Role("superuser"), category))
		}
	})

	t.Run("unknown category denied", func(t *testing.T) {
		assert.False(t, checker.CanPerform(auth.RoleOrgAdmin, ResourceCategory("payroll"), FeatureViewClients))
		assert.False(t, checker.CanView(auth.RoleOrgAdmin, ResourceCategory("payroll")))
	})

	t.Run("unknown feature denied", func(t *testing.T) {
		assert.False(t, checker.CanPerform(auth.RoleOrgAdmin, CategoryClients, Feature("export_clients")))
	})

	t.Run("unset flags default false", func(t *testing.T) {
		// Every flag not explicitly granted to technician is false
		grants := checker.Grants(auth.RoleTechnician)
		granted := map[Feature]bool{
			FeatureViewClients:     true,
			FeatureViewProjects:    true,
			FeatureViewMaintenance: true,
			FeatureEditMaintenance: true,
			FeatureViewSchedule:    true,
		}
		for category, flags := range grants {
			for feature, allowed := range flags {
				assert.Equal(t, granted[feature], allowed,
					"technician %s/%s", category, feature)
			}
		}
	})
}

func TestChecker_CanView(t *testing.T) {
	checker := NewChecker(DefaultMatrix())

	assert.True(t, checker.CanView(auth.RoleTechnician, CategorySchedule))
	assert.False(t, checker.CanView(auth.RoleTechnician, CategoryBilling))
	assert.True(t, checker.CanView(auth.RoleClient, CategoryInvoicing))
	assert.False(t, checker.CanView(auth.RoleVendor, CategoryClients))
}

func TestChecker_SetOverride(t *testing.T) {
	t.Run("grants a declared flag", func(t *testing.T) {
		checker := NewChecker(DefaultMatrix())

		assert.False(t, checker.CanPerform(auth.RoleTechnician, CategoryClients, FeatureEditClients))
		checker.SetOverride(auth.RoleTechnician, CategoryClients, FeatureEditClients, true)
		assert.True(t, checker.CanPerform(auth.RoleTechnician, CategoryClients, FeatureEditClients))
	})

	t.Run("revokes a declared flag", func(t *testing.T) {
		checker := NewChecker(DefaultMatrix())

		checker.SetOverride(auth.RoleManager, CategoryInvoicing, FeatureSendInvoices, false)
		assert.False(t, checker.CanPerform(auth.RoleManager, CategoryInvoicing, FeatureSendInvoices))
	})

	t.Run("ignores undeclared feature", func(t *testing.T) {
		checker := NewChecker(DefaultMatrix())

		checker.SetOverride(auth.RoleManager, CategoryClients, Feature("export_clients"), true)
		assert.False(t, checker.CanPerform(auth.RoleManager, CategoryClients, Feature("export_clients")))
	})

	t.Run("ignores invalid role", func(t *testing.T) {
		checker := NewChecker(DefaultMatrix())

		checker.SetOverride(auth.Role("superuser"), CategoryClients, FeatureViewClients, true)
		assert.False(t, checker.CanPerform(auth.Role("superuser"), CategoryClients, FeatureViewClients))
	})
}

func TestNewChecker_NilMatrix(t *testing.T) {
	checker := NewChecker(nil)
	assert.True(t, checker.CanPerform(auth.RoleOrgAdmin, CategoryUsers, FeatureManageUsers))
}
