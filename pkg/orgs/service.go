package orgs

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Service manages organization records
type Service interface {
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	SetSubscription(ctx context.Context, orgID int64, subscriptionID string) error
	DeactivateOrganization(ctx context.Context, id int64) error
	DeleteOrganization(ctx context.Context, id int64) error
	ListMembers(ctx context.Context, orgID int64) ([]*Member, error)
}

// PostgresService implements the Service interface using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

const orgColumns = `id, name, type, slug, subscription_id, trial_ends_at, active, created_at, updated_at`

// CreateOrganization creates a new organization. The slug is derived
// from the name if not provided, with a numeric suffix on collision, and
// a new tenant starts a trial window.
func (s *PostgresService) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.Slug == "" {
		slug, err := s.uniqueSlug(ctx, org.Name)
		if err != nil {
			return err
		}
		org.Slug = slug
	}

	if org.TrialEndsAt == nil {
		trialEnd := time.Now().UTC().Add(DefaultTrialPeriod)
		org.TrialEndsAt = &trialEnd
	}
	org.Active = true

	query := `
		INSERT INTO organizations (name, type, slug, subscription_id, trial_ends_at, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		org.Name, org.Type, org.Slug, org.SubscriptionID, org.TrialEndsAt, org.Active).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	return nil
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	return s.scanOrg(s.db.QueryRowContext(ctx, query, id))
}

// GetOrganizationBySlug retrieves an organization by slug
func (s *PostgresService) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	query := `SELECT ` + orgColumns + ` FROM organizations WHERE slug = $1`
	return s.scanOrg(s.db.QueryRowContext(ctx, query, slug))
}

// SetSubscription points the organization at its subscription record
func (s *PostgresService) SetSubscription(ctx context.Context, orgID int64, subscriptionID string) error {
	query := `UPDATE organizations SET subscription_id = $1, updated_at = NOW() WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, subscriptionID, orgID)
	if err != nil {
		return fmt.Errorf("failed to set subscription: %w", err)
	}
	return requireRowAffected(result)
}

// DeactivateOrganization soft deletes an organization
func (s *PostgresService) DeactivateOrganization(ctx context.Context, id int64) error {
	query := `UPDATE organizations SET active = false, updated_at = NOW() WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate organization: %w", err)
	}
	return requireRowAffected(result)
}

// DeleteOrganization hard deletes an organization. Compensating action
// for failed onboarding only; normal removal is DeactivateOrganization.
func (s *PostgresService) DeleteOrganization(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return requireRowAffected(result)
}

// ListMembers lists the users belonging to an organization
func (s *PostgresService) ListMembers(ctx context.Context, orgID int64) ([]*Member, error) {
	query := `
		SELECT id, username, email, name, role, active, created_at
		FROM users
		WHERE organization_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		member := &Member{}
		if err := rows.Scan(
			&member.UserID, &member.Username, &member.Email, &member.Name,
			&member.Role, &member.Active, &member.JoinedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

func (s *PostgresService) scanOrg(row *sql.Row) (*Organization, error) {
	org := &Organization{}
	err := row.Scan(
		&org.ID, &org.Name, &org.Type, &org.Slug, &org.SubscriptionID,
		&org.TrialEndsAt, &org.Active, &org.CreatedAt, &org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// uniqueSlug derives a slug from the name and resolves collisions with a
// numeric suffix
func (s *PostgresService) uniqueSlug(ctx context.Context, name string) (string, error) {
	base, err := GenerateSlug(name)
	if err != nil {
		return "", err
	}

	candidate := base
	for suffix := 2; ; suffix++ {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM organizations WHERE slug = $1)`, candidate).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("failed to check slug: %w", err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, suffix)
	}
}

// GenerateSlug lowercases the name and collapses runs of non-alphanumeric
// characters into single hyphens. An empty result falls back to a random
// slug so every organization gets a usable URL.
func GenerateSlug(name string) (string, error) {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		random := make([]byte, 4)
		if _, err := rand.Read(random); err != nil {
			return "", fmt.Errorf("failed to generate fallback slug: %w", err)
		}
		slug = "org-" + hex.EncodeToString(random)
	}

	return slug, nil
}

func requireRowAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOrgNotFound
	}
	return nil
}
