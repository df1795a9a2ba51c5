package auth

import "time"

// Role is an organization-level role. Ordering implies no privilege
// hierarchy; capabilities per role are declared in pkg/rbac.
type Role string

const (
	RoleSystemAdmin Role = "system_admin"
	RoleOrgAdmin    Role = "org_admin"
	RoleManager     Role = "manager"
	RoleOfficeStaff Role = "office_staff"
	RoleTechnician  Role = "technician"
	RoleClient      Role = "client"
	RoleVendor      Role = "vendor"
	// RoleAdmin is a legacy alias still present in older accounts
	RoleAdmin Role = "admin"
)

// AllRoles lists every declared role
var AllRoles = []Role{
	RoleSystemAdmin,
	RoleOrgAdmin,
	RoleManager,
	RoleOfficeStaff,
	RoleTechnician,
	RoleClient,
	RoleVendor,
	RoleAdmin,
}

// Valid reports whether the role is one of the declared values
func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// AuthProvider identifies how an account authenticates
type AuthProvider string

const (
	ProviderLocal  AuthProvider = "local"
	ProviderGoogle AuthProvider = "google"
)

// User is a provisioned account bound to one organization
type User struct {
	ID             int64        `json:"id"`
	Username       string       `json:"username"`
	Email          string       `json:"email"`
	Name           string       `json:"name"`
	Role           Role         `json:"role"`
	OrganizationID *int64       `json:"organization_id,omitempty"`
	AuthProvider   AuthProvider `json:"auth_provider"`
	ExternalID     *string      `json:"external_id,omitempty"`
	PasswordHash   string       `json:"-"`
	PhotoURL       string       `json:"photo_url,omitempty"`
	Active         bool         `json:"active"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Public returns the projection of the user safe to hand to clients
func (u *User) Public() map[string]interface{} {
	return map[string]interface{}{
		"id":              u.ID,
		"username":        u.Username,
		"email":           u.Email,
		"name":            u.Name,
		"role":            u.Role,
		"organization_id": u.OrganizationID,
		"photo_url":       u.PhotoURL,
	}
}
