package billing

import (
	"errors"
	"time"
)

// ErrSubscriptionNotFound is returned when an organization has no
// subscription record
var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionStatus mirrors the payment provider's lifecycle states
type SubscriptionStatus string

// Subscription lifecycle states
const (
	StatusActive   SubscriptionStatus = "active"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Valid reports whether the status is one we recognize
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusPastDue, StatusCanceled:
		return true
	}
	return false
}

// Subscription is the locally stored mirror of a payment provider
// subscription. ID is the provider's identifier.
type Subscription struct {
	ID             string             `json:"id"`
	OrganizationID int64              `json:"organization_id"`
	Status         SubscriptionStatus `json:"status"`
	TrialEndsAt    *time.Time         `json:"trial_ends_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Entitled reports whether this subscription grants product access
// right now. Trialing counts only while the trial window is open; a
// trialing subscription with no recorded end date does not.
func (s *Subscription) Entitled(now time.Time) bool {
	switch s.Status {
	case StatusActive:
		return true
	case StatusTrialing:
		return s.TrialEndsAt != nil && now.Before(*s.TrialEndsAt)
	}
	return false
}
