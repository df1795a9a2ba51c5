package billing

import (
	"context"
	"database/sql"
	"fmt"
)

// Store manages subscription persistence
type Store interface {
	Upsert(ctx context.Context, sub *Subscription) error
	GetByOrganization(ctx context.Context, orgID int64) (*Subscription, error)
	UpdateStatus(ctx context.Context, id string, status SubscriptionStatus) error
}

// PostgresStore implements the Store interface using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const subscriptionColumns = `id, organization_id, status, trial_ends_at, created_at, updated_at`

// Upsert inserts or replaces the subscription mirror. Provider webhooks
// replay out of order, so the whole record is written each time.
func (s *PostgresStore) Upsert(ctx context.Context, sub *Subscription) error {
	if !sub.Status.Valid() {
		return fmt.Errorf("invalid subscription status: %s", sub.Status)
	}

	query := `
		INSERT INTO subscriptions (id, organization_id, status, trial_ends_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, trial_ends_at = EXCLUDED.trial_ends_at, updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		sub.ID, sub.OrganizationID, sub.Status, sub.TrialEndsAt).
		Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	return nil
}

// GetByOrganization retrieves an organization's subscription
func (s *PostgresStore) GetByOrganization(ctx context.Context, orgID int64) (*Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE organization_id = $1`
	sub := &Subscription{}
	err := s.db.QueryRowContext(ctx, query, orgID).Scan(
		&sub.ID, &sub.OrganizationID, &sub.Status, &sub.TrialEndsAt,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// UpdateStatus changes a subscription's lifecycle state
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status SubscriptionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid subscription status: %s", status)
	}

	query := `UPDATE subscriptions SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}
