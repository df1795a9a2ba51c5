package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the session token
const SessionCookieName = "fieldserve_session"

// ErrSessionNotFound is returned when a session token is unknown or expired
var ErrSessionNotFound = errors.New("session not found")

// Session is the server-side session record
type Session struct {
	Token     string    `json:"token"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionManager issues and resolves opaque session tokens backed by
// Redis, so sessions survive restarts and are visible to every instance.
type SessionManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionManager creates a session manager with the given TTL
func NewSessionManager(client *redis.Client, ttl time.Duration) *SessionManager {
	if ttl == 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionManager{client: client, ttl: ttl}
}

func sessionKey(token string) string {
	return "session:" + token
}

// Create issues a new session for the user and returns its token
func (m *SessionManager) Create(ctx context.Context, userID int64) (*Session, error) {
	session := &Session{
		Token:     uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := m.client.Set(ctx, sessionKey(session.Token), data, m.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

// Get resolves a session token. Unknown and expired tokens both return
// ErrSessionNotFound.
func (m *SessionManager) Get(ctx context.Context, token string) (*Session, error) {
	data, err := m.client.Get(ctx, sessionKey(token)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// Destroy removes a session. Destroying an unknown token is a no-op.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if err := m.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}
