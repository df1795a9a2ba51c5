package invitations

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Store manages invitation persistence
type Store interface {
	Create(ctx context.Context, inv *Invitation, ttl time.Duration) error
	Get(ctx context.Context, id int64) (*Invitation, error)
	Verify(ctx context.Context, token string) (*VerificationResult, error)
	MarkAccepted(ctx context.Context, id int64) error
	Cancel(ctx context.Context, id int64) error
	ListByOrganization(ctx context.Context, orgID int64) ([]*Invitation, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

// PostgresStore implements the Store interface using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const invitationColumns = `id, token, email, name, role, organization_id, status, created_by, created_at, expires_at`

// Create generates a fresh token and persists the invitation. A zero
// ttl falls back to DefaultTTL.
func (s *PostgresStore) Create(ctx context.Context, inv *Invitation, ttl time.Duration) error {
	if !inv.Role.Valid() {
		return fmt.Errorf("invalid role: %s", inv.Role)
	}

	token, err := generateToken()
	if err != nil {
		return err
	}
	inv.Token = token

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	inv.Status = StatusPending
	inv.ExpiresAt = time.Now().UTC().Add(ttl)

	query := `
		INSERT INTO invitations (token, email, name, role, organization_id, status, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err = s.db.QueryRowContext(ctx, query,
		inv.Token, inv.Email, inv.Name, inv.Role, inv.OrganizationID,
		inv.Status, inv.CreatedBy, inv.ExpiresAt).
		Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	return nil
}

// Get retrieves an invitation by ID
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1`
	inv := &Invitation{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&inv.ID, &inv.Token, &inv.Email, &inv.Name, &inv.Role,
		&inv.OrganizationID, &inv.Status, &inv.CreatedBy, &inv.CreatedAt, &inv.ExpiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// Verify resolves a token to the invitation it names. A token past its
// expiry is marked expired on the way out, so the stored status
// eventually catches up with the wall clock even without the sweeper.
func (s *PostgresStore) Verify(ctx context.Context, token string) (*VerificationResult, error) {
	query := `
		SELECT i.id, i.email, i.name, i.role, i.organization_id, i.status, i.expires_at, o.name
		FROM invitations i
		JOIN organizations o ON o.id = i.organization_id
		WHERE i.token = $1
	`
	var (
		result VerificationResult
		status Status
	)
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&result.InvitationID, &result.Email, &result.Name, &result.Role,
		&result.OrganizationID, &status, &result.ExpiresAt, &result.OrganizationName,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to verify invitation: %w", err)
	}

	switch status {
	case StatusCancelled:
		// A cancelled invitation is indistinguishable from one that
		// never existed.
		return nil, ErrNotFound
	case StatusAccepted:
		return nil, ErrAlreadyUsed
	case StatusExpired:
		return nil, ErrExpired
	}

	if time.Now().After(result.ExpiresAt) {
		s.markExpired(ctx, result.InvitationID)
		return nil, ErrExpired
	}

	return &result, nil
}

// MarkAccepted transitions an invitation from pending to accepted. The
// conditional update makes the transition atomic: exactly one caller
// wins, every other concurrent caller sees ErrAlreadyUsed.
func (s *PostgresStore) MarkAccepted(ctx context.Context, id int64) error {
	query := `UPDATE invitations SET status = $1 WHERE id = $2 AND status = $3`
	result, err := s.db.ExecContext(ctx, query, StatusAccepted, id, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		inv, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		switch inv.Status {
		case StatusExpired:
			return ErrExpired
		case StatusCancelled:
			return ErrNotFound
		default:
			return ErrAlreadyUsed
		}
	}

	return nil
}

// Cancel withdraws a pending invitation
func (s *PostgresStore) Cancel(ctx context.Context, id int64) error {
	query := `UPDATE invitations SET status = $1 WHERE id = $2 AND status = $3`
	result, err := s.db.ExecContext(ctx, query, StatusCancelled, id, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel invitation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ListByOrganization lists an organization's invitations, newest first
func (s *PostgresStore) ListByOrganization(ctx context.Context, orgID int64) ([]*Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE organization_id = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv := &Invitation{}
		if err := rows.Scan(
			&inv.ID, &inv.Token, &inv.Email, &inv.Name, &inv.Role,
			&inv.OrganizationID, &inv.Status, &inv.CreatedBy, &inv.CreatedAt, &inv.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}

	return invitations, rows.Err()
}

// CleanupExpired marks every overdue pending invitation as expired and
// reports how many were swept
func (s *PostgresStore) CleanupExpired(ctx context.Context) (int64, error) {
	query := `UPDATE invitations SET status = $1 WHERE status = $2 AND expires_at < NOW()`
	result, err := s.db.ExecContext(ctx, query, StatusExpired, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up invitations: %w", err)
	}

	swept, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return swept, nil
}

// markExpired is best effort; the sweeper catches anything it misses
func (s *PostgresStore) markExpired(ctx context.Context, id int64) {
	query := `UPDATE invitations SET status = $1 WHERE id = $2 AND status = $3`
	s.db.ExecContext(ctx, query, StatusExpired, id, StatusPending) //nolint:errcheck
}

// generateToken returns 32 random bytes encoded as hex
func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
