package rbac

import "github.com/aquaops/fieldserve/pkg/auth"

// ResourceCategory groups features by the resource they guard
type ResourceCategory string

const (
	CategoryClients     ResourceCategory = "clients"
	CategoryProjects    ResourceCategory = "projects"
	CategoryMaintenance ResourceCategory = "maintenance"
	CategoryInvoicing   ResourceCategory = "invoicing"
	CategorySchedule    ResourceCategory = "scheduling"
	CategoryBilling     ResourceCategory = "billing"
	CategorySettings    ResourceCategory = "settings"
	CategoryUsers       ResourceCategory = "users"
	CategoryReports     ResourceCategory = "reports"
)

// Feature is a fine-grained capability flag
type Feature string

const (
	FeatureViewClients   Feature = "view_clients"
	FeatureEditClients   Feature = "edit_clients"
	FeatureDeleteClients Feature = "delete_clients"

	FeatureViewProjects   Feature = "view_projects"
	FeatureEditProjects   Feature = "edit_projects"
	FeatureDeleteProjects Feature = "delete_projects"

	FeatureViewMaintenance Feature = "view_maintenance"
	FeatureEditMaintenance Feature = "edit_maintenance"

	FeatureViewInvoices Feature = "view_invoices"
	FeatureEditInvoices Feature = "edit_invoices"
	FeatureSendInvoices Feature = "send_invoices"

	FeatureViewSchedule   Feature = "view_schedule"
	FeatureManageSchedule Feature = "manage_schedule"

	FeatureViewBilling   Feature = "view_billing"
	FeatureManageBilling Feature = "manage_billing"

	FeatureViewSettings Feature = "view_settings"
	FeatureEditSettings Feature = "edit_settings"

	FeatureViewUsers   Feature = "view_users"
	FeatureManageUsers Feature = "manage_users"
	FeatureInviteUsers Feature = "invite_users"

	FeatureViewReports Feature = "view_reports"
)

// CategoryFeatures declares every feature under each category. The matrix
// is built from this table, so every role carries an explicit flag for
// every declared feature.
var CategoryFeatures = map[ResourceCategory][]Feature{
	CategoryClients:     {FeatureViewClients, FeatureEditClients, FeatureDeleteClients},
	CategoryProjects:    {FeatureViewProjects, FeatureEditProjects, FeatureDeleteProjects},
	CategoryMaintenance: {FeatureViewMaintenance, FeatureEditMaintenance},
	CategoryInvoicing:   {FeatureViewInvoices, FeatureEditInvoices, FeatureSendInvoices},
	CategorySchedule:    {FeatureViewSchedule, FeatureManageSchedule},
	CategoryBilling:     {FeatureViewBilling, FeatureManageBilling},
	CategorySettings:    {FeatureViewSettings, FeatureEditSettings},
	CategoryUsers:       {FeatureViewUsers, FeatureManageUsers, FeatureInviteUsers},
	CategoryReports:     {FeatureViewReports},
}

// ViewFeature returns the feature gating visibility of a category
func ViewFeature(category ResourceCategory) (Feature, bool) {
	switch category {
	case CategoryClients:
		return FeatureViewClients, true
	case CategoryProjects:
		return FeatureViewProjects, true
	case CategoryMaintenance:
		return FeatureViewMaintenance, true
	case CategoryInvoicing:
		return FeatureViewInvoices, true
	case CategorySchedule:
		return FeatureViewSchedule, true
	case CategoryBilling:
		return FeatureViewBilling, true
	case CategorySettings:
		return FeatureViewSettings, true
	case CategoryUsers:
		return FeatureViewUsers, true
	case CategoryReports:
		return FeatureViewReports, true
	default:
		return "", false
	}
}

// Matrix maps Role -> ResourceCategory -> Feature -> allowed
type Matrix map[auth.Role]map[ResourceCategory]map[Feature]bool

// emptyGrants returns a complete all-false flag set for one role
func emptyGrants() map[ResourceCategory]map[Feature]bool {
	grants := make(map[ResourceCategory]map[Feature]bool, len(CategoryFeatures))
	for category, features := range CategoryFeatures {
		flags := make(map[Feature]bool, len(features))
		for _, feature := range features {
			flags[feature] = false
		}
		grants[category] = flags
	}
	return grants
}

// allGrants returns a complete all-true flag set for one role
func allGrants() map[ResourceCategory]map[Feature]bool {
	grants := emptyGrants()
	for _, flags := range grants {
		for feature := range flags {
			flags[feature] = true
		}
	}
	return grants
}

// grant flips the listed features to true in a role's flag set
func grant(grants map[ResourceCategory]map[Feature]bool, features ...Feature) map[ResourceCategory]map[Feature]bool {
	for _, feature := range features {
		for category, flags := range grants {
			if _, declared := flags[feature]; declared {
				grants[category][feature] = true
			}
		}
	}
	return grants
}

// DefaultMatrix returns the authoritative permission table. Every role has
// an explicit flag for every declared feature; absence never decides.
func DefaultMatrix() Matrix {
	return Matrix{
		auth.RoleSystemAdmin: allGrants(),
		auth.RoleOrgAdmin:    allGrants(),
		// Legacy alias kept at full org access until remaining accounts
		// are migrated to org_admin
		auth.RoleAdmin: allGrants(),

		auth.RoleManager: grant(emptyGrants(),
			FeatureViewClients, FeatureEditClients,
			FeatureViewProjects, FeatureEditProjects,
			FeatureViewMaintenance, FeatureEditMaintenance,
			FeatureViewInvoices, FeatureEditInvoices, FeatureSendInvoices,
			FeatureViewSchedule, FeatureManageSchedule,
			FeatureViewSettings,
			FeatureViewUsers, FeatureInviteUsers,
			FeatureViewReports,
		),

		auth.RoleOfficeStaff: grant(emptyGrants(),
			FeatureViewClients, FeatureEditClients,
			FeatureViewProjects,
			FeatureViewMaintenance,
			FeatureViewInvoices, FeatureEditInvoices, FeatureSendInvoices,
			FeatureViewSchedule,
			FeatureViewUsers,
			FeatureViewReports,
		),

		auth.RoleTechnician: grant(emptyGrants(),
			FeatureViewClients,
			FeatureViewProjects,
			FeatureViewMaintenance, FeatureEditMaintenance,
			FeatureViewSchedule,
		),

		auth.RoleClient: grant(emptyGrants(),
			FeatureViewProjects,
			FeatureViewMaintenance,
			FeatureViewInvoices,
		),

		auth.RoleVendor: grant(emptyGrants(),
			FeatureViewProjects,
			FeatureViewSchedule,
		),
	}
}
