package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ErrUserNotFound is returned when no user matches the lookup
var ErrUserNotFound = errors.New("user not found")

// ErrDuplicateUser is returned when a unique constraint (email, username,
// external id) rejects the insert
var ErrDuplicateUser = errors.New("user already exists")

// UserStore persists user accounts
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*User, error)
	DeleteUser(ctx context.Context, id int64) error
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// PostgresUserStore implements UserStore using PostgreSQL
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore creates a new PostgresUserStore
func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

const userColumns = `id, username, email, name, role, organization_id, auth_provider, external_id, password_hash, photo_url, active, created_at, updated_at`

// CreateUser inserts a new user and fills in the generated fields
func (s *PostgresUserStore) CreateUser(ctx context.Context, user *User) error {
	if !user.Role.Valid() {
		return fmt.Errorf("invalid role: %s", user.Role)
	}

	query := `
		INSERT INTO users (username, email, name, role, organization_id, auth_provider, external_id, password_hash, photo_url, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.Name, user.Role, user.OrganizationID,
		user.AuthProvider, user.ExternalID, nullIfEmpty(user.PasswordHash),
		user.PhotoURL, user.Active).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by id
func (s *PostgresUserStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by email
func (s *PostgresUserStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// GetUserByExternalID retrieves a user by external identity id
func (s *PostgresUserStore) GetUserByExternalID(ctx context.Context, externalID string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	return s.scanUser(s.db.QueryRowContext(ctx, query, externalID))
}

// DeleteUser hard deletes a user. Used by onboarding compensation only;
// normal deactivation flips active instead.
func (s *PostgresUserStore) DeleteUser(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// UsernameExists reports whether a username is already taken
func (s *PostgresUserStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return exists, nil
}

func (s *PostgresUserStore) scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var passwordHash sql.NullString
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.Name, &user.Role,
		&user.OrganizationID, &user.AuthProvider, &user.ExternalID,
		&passwordHash, &user.PhotoURL, &user.Active,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.PasswordHash = passwordHash.String
	return user, nil
}

// DeriveUsername produces a username from an email local part, appending
// a random suffix when the candidate is taken.
func DeriveUsername(ctx context.Context, store UserStore, email string) (string, error) {
	base := strings.ToLower(strings.SplitN(email, "@", 2)[0])
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			return r
		}
		return -1
	}, base)
	if base == "" {
		base = "user"
	}

	taken, err := store.UsernameExists(ctx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}

	for attempt := 0; attempt < 5; attempt++ {
		suffix, err := randomSuffix(3)
		if err != nil {
			return "", err
		}
		candidate := base + "-" + suffix
		taken, err := store.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	// 6 hex bytes of entropy makes a collision here vanishingly unlikely
	suffix, err := randomSuffix(6)
	if err != nil {
		return "", err
	}
	return base + "-" + suffix, nil
}

func randomSuffix(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate suffix: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// isUniqueViolation detects Postgres unique constraint errors (23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
