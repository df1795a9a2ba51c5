package invitations

import (
	"errors"
	"time"

	"github.com/aquaops/fieldserve/pkg/auth"
)

// Sentinel errors for invitation lookups. Handlers map these to the
// distinct API outcomes so an invitee is told why a link stopped
// working.
var (
	// ErrNotFound means no invitation matches, or it was cancelled.
	ErrNotFound = errors.New("invitation not found")
	// ErrExpired means the invitation exists but its TTL has passed.
	ErrExpired = errors.New("invitation expired")
	// ErrAlreadyUsed means the invitation was already accepted.
	ErrAlreadyUsed = errors.New("invitation already used")
)

// DefaultTTL is how long an invitation stays valid after creation
const DefaultTTL = 7 * 24 * time.Hour

// Status is the lifecycle state of an invitation
type Status string

// Invitation lifecycle states
const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Invitation is a single-use, role-carrying invite into an organization
type Invitation struct {
	ID             int64     `json:"id"`
	Token          string    `json:"-"`
	Email          string    `json:"email"`
	Name           string    `json:"name,omitempty"`
	Role           auth.Role `json:"role"`
	OrganizationID int64     `json:"organization_id"`
	Status         Status    `json:"status"`
	CreatedBy      int64     `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// VerificationResult is what a valid token resolves to. It carries the
// organization's display name so the accept page can show where the
// invitee is about to land.
type VerificationResult struct {
	InvitationID     int64     `json:"invitation_id"`
	OrganizationID   int64     `json:"organization_id"`
	OrganizationName string    `json:"organization_name"`
	Role             auth.Role `json:"role"`
	Email            string    `json:"email"`
	Name             string    `json:"name,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
}
