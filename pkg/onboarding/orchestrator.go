package onboarding

import (
	"context"
	"errors"
	"fmt"

	"github.com/aquaops/fieldserve/pkg/auth"
	"github.com/aquaops/fieldserve/pkg/invitations"
	"github.com/aquaops/fieldserve/pkg/observability"
	"github.com/aquaops/fieldserve/pkg/orgs"
	"github.com/aquaops/fieldserve/pkg/pending"
)

// ErrInconsistent is returned when a registration failed partway
// through and the compensating cleanup also failed, leaving a record
// behind that needs operator attention.
var ErrInconsistent = errors.New("registration left inconsistent state")

// ErrValidation is wrapped by input validation failures so handlers can
// map them to 400s
var ErrValidation = errors.New("invalid registration request")

// Action selects the registration flow
type Action string

// Registration actions
const (
	ActionCreate Action = "create"
	ActionJoin   Action = "join"
)

// Request is a complete-registration submission from a pending OAuth
// user
type Request struct {
	ExternalID       string
	Action           Action
	OrganizationName string
	OrganizationType string
	InvitationToken  string
}

// Result is a finished registration: the durable user and a live
// session
type Result struct {
	User       *auth.User
	Session    *auth.Session
	RedirectTo string
}

// SessionCreator issues sessions for freshly registered users
type SessionCreator interface {
	Create(ctx context.Context, userID int64) (*auth.Session, error)
}

// Orchestrator drives registration across the pending cache, the
// invitation store, organizations and users
type Orchestrator struct {
	pending  pending.Cache
	invites  invitations.Store
	orgs     orgs.Service
	users    auth.UserStore
	sessions SessionCreator
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(
	pendingCache pending.Cache,
	invites invitations.Store,
	orgService orgs.Service,
	users auth.UserStore,
	sessions SessionCreator,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Orchestrator {
	return &Orchestrator{
		pending:  pendingCache,
		invites:  invites,
		orgs:     orgService,
		users:    users,
		sessions: sessions,
		logger:   logger,
		metrics:  metrics,
	}
}

// CompleteRegistration finishes onboarding for a staged OAuth user. The
// pending record must still exist; a double submit or an expired record
// returns pending.ErrPendingNotFound.
func (o *Orchestrator) CompleteRegistration(ctx context.Context, req *Request) (*Result, error) {
	staged, err := o.pending.Get(ctx, req.ExternalID)
	if err != nil {
		return nil, err
	}

	var result *Result
	switch req.Action {
	case ActionCreate:
		result, err = o.createOrganizationFlow(ctx, staged, req)
	case ActionJoin:
		result, err = o.joinOrganizationFlow(ctx, staged, req.InvitationToken)
	default:
		return nil, fmt.Errorf("%w: unknown action %q", ErrValidation, req.Action)
	}
	if err != nil {
		o.metrics.RegistrationsTotal.WithLabelValues(string(req.Action), "failure").Inc()
		return nil, err
	}

	// The durable records exist; everything past this point must not
	// fail the registration.
	if err := o.pending.Remove(ctx, req.ExternalID); err != nil {
		o.logger.WithError(err).WithField("external_id", req.ExternalID).
			Warn("failed to remove pending user after registration")
	}

	session, err := o.sessions.Create(ctx, result.User.ID)
	if err != nil {
		// The account is real even if the session is not; the user can
		// sign in again.
		o.logger.WithError(err).WithField("user_id", result.User.ID).
			Error("failed to create session after registration")
	} else {
		result.Session = session
	}

	o.metrics.RegistrationsTotal.WithLabelValues(string(req.Action), "success").Inc()
	return result, nil
}

// createOrganizationFlow founds a new organization with the staged user
// as its org_admin
func (o *Orchestrator) createOrganizationFlow(ctx context.Context, staged *pending.User, req *Request) (*Result, error) {
	if req.OrganizationName == "" {
		return nil, fmt.Errorf("%w: organization name is required", ErrValidation)
	}

	org := &orgs.Organization{
		Name: req.OrganizationName,
		Type: orgs.OrganizationType(req.OrganizationType),
	}
	if err := o.orgs.CreateOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	user, err := o.createOAuthUser(ctx, staged, auth.RoleOrgAdmin, org.ID)
	if err != nil {
		if delErr := o.orgs.DeleteOrganization(ctx, org.ID); delErr != nil {
			o.logger.WithError(delErr).WithField("organization_id", org.ID).
				Error("failed to roll back organization after user creation failure")
			return nil, fmt.Errorf("%w: organization %d orphaned: %v", ErrInconsistent, org.ID, err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	o.logger.WithFields(map[string]interface{}{
		"user_id":         user.ID,
		"organization_id": org.ID,
	}).Info("registered user with new organization")

	return &Result{User: user, RedirectTo: "/dashboard"}, nil
}

// joinOrganizationFlow adds the staged user to the organization an
// invitation names, with the role the inviter chose
func (o *Orchestrator) joinOrganizationFlow(ctx context.Context, staged *pending.User, token string) (*Result, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: invitation code is required", ErrValidation)
	}

	verified, err := o.invites.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := o.createOAuthUser(ctx, staged, verified.Role, verified.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := o.consumeInvitation(ctx, verified.InvitationID, user); err != nil {
		return nil, err
	}

	o.logger.WithFields(map[string]interface{}{
		"user_id":         user.ID,
		"organization_id": verified.OrganizationID,
		"invitation_id":   verified.InvitationID,
	}).Info("registered user via invitation")

	return &Result{User: user, RedirectTo: "/dashboard"}, nil
}

// AcceptInvitation registers a password user from an invitation. The
// invitation supplies email, name, role and organization; the user
// supplies only the password.
func (o *Orchestrator) AcceptInvitation(ctx context.Context, token, password string) (*Result, error) {
	verified, err := o.invites.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	username, err := auth.DeriveUsername(ctx, o.users, verified.Email)
	if err != nil {
		return nil, err
	}

	orgID := verified.OrganizationID
	user := &auth.User{
		Username:       username,
		Email:          verified.Email,
		Name:           verified.Name,
		Role:           verified.Role,
		OrganizationID: &orgID,
		AuthProvider:   auth.ProviderLocal,
		PasswordHash:   hash,
		Active:         true,
	}
	if err := o.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := o.consumeInvitation(ctx, verified.InvitationID, user); err != nil {
		return nil, err
	}

	result := &Result{User: user, RedirectTo: "/dashboard"}
	session, err := o.sessions.Create(ctx, user.ID)
	if err != nil {
		o.logger.WithError(err).WithField("user_id", user.ID).
			Error("failed to create session after invitation accept")
	} else {
		result.Session = session
	}

	o.logger.WithFields(map[string]interface{}{
		"user_id":       user.ID,
		"invitation_id": verified.InvitationID,
	}).Info("invitation accepted with password")

	return result, nil
}

// consumeInvitation marks the invitation accepted after the user
// exists. Losing the conditional update means another accept got there
// first, so the user created here is rolled back.
func (o *Orchestrator) consumeInvitation(ctx context.Context, invitationID int64, user *auth.User) error {
	err := o.invites.MarkAccepted(ctx, invitationID)
	if err == nil {
		return nil
	}

	if delErr := o.users.DeleteUser(ctx, user.ID); delErr != nil {
		o.logger.WithError(delErr).WithFields(map[string]interface{}{
			"user_id":       user.ID,
			"invitation_id": invitationID,
		}).Error("failed to roll back user after losing invitation race")
		return fmt.Errorf("%w: user %d orphaned: %v", ErrInconsistent, user.ID, err)
	}

	return err
}

// createOAuthUser materializes a staged OAuth profile as a durable user
func (o *Orchestrator) createOAuthUser(ctx context.Context, staged *pending.User, role auth.Role, orgID int64) (*auth.User, error) {
	username, err := auth.DeriveUsername(ctx, o.users, staged.Email)
	if err != nil {
		return nil, err
	}

	externalID := staged.ExternalID
	user := &auth.User{
		Username:       username,
		Email:          staged.Email,
		Name:           staged.Name,
		Role:           role,
		OrganizationID: &orgID,
		AuthProvider:   auth.ProviderGoogle,
		ExternalID:     &externalID,
		PhotoURL:       staged.PhotoURL,
		Active:         true,
	}
	if err := o.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
