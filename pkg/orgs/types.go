package orgs

import (
	"errors"
	"time"

	"github.com/aquaops/fieldserve/pkg/auth"
)

// ErrOrgNotFound is returned when no organization matches the lookup
var ErrOrgNotFound = errors.New("organization not found")

// DefaultTrialPeriod is the trial window granted to a new organization
const DefaultTrialPeriod = 14 * 24 * time.Hour

// OrganizationType describes the line of business, free-form but
// captured at signup for reporting
type OrganizationType string

// Organization is a tenant
type Organization struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	Type           OrganizationType `json:"type,omitempty"`
	Slug           string           `json:"slug"`
	SubscriptionID *string          `json:"subscription_id,omitempty"`
	TrialEndsAt    *time.Time       `json:"trial_ends_at,omitempty"`
	Active         bool             `json:"active"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Member is a user's membership projection for org member listings
type Member struct {
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     auth.Role `json:"role"`
	Active   bool      `json:"active"`
	JoinedAt time.Time `json:"joined_at"`
}
