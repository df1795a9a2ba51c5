package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrPendingNotFound is returned when no staging record exists for the
// external ID, either because the user never authenticated or because
// the record expired.
var ErrPendingNotFound = errors.New("pending user not found")

// DefaultTTL is how long a staged user survives without completing
// onboarding
const DefaultTTL = 30 * time.Minute

// User is the profile captured from the identity provider, held until
// onboarding completes
type User struct {
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	PhotoURL   string    `json:"photo_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Cache stages pending OAuth users
type Cache interface {
	Store(ctx context.Context, user *User) error
	Get(ctx context.Context, externalID string) (*User, error)
	Remove(ctx context.Context, externalID string) error
}

// RedisCache implements the Cache interface over Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new RedisCache. A zero ttl falls back to
// DefaultTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func pendingKey(externalID string) string {
	return fmt.Sprintf("pending_oauth:%s", externalID)
}

// Store stages a pending user. Re-authentication overwrites the
// existing record and restarts its TTL.
func (c *RedisCache) Store(ctx context.Context, user *User) error {
	if user.ExternalID == "" {
		return fmt.Errorf("pending user missing external ID")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal pending user: %w", err)
	}

	if err := c.client.Set(ctx, pendingKey(user.ExternalID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store pending user: %w", err)
	}
	return nil
}

// Get retrieves a staged user. An expired record is indistinguishable
// from one that never existed.
func (c *RedisCache) Get(ctx context.Context, externalID string) (*User, error) {
	data, err := c.client.Get(ctx, pendingKey(externalID)).Result()
	if err == redis.Nil {
		return nil, ErrPendingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending user: %w", err)
	}

	var user User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		// Corrupt data is unrecoverable; drop it so the user can
		// re-authenticate cleanly.
		c.client.Del(ctx, pendingKey(externalID))
		return nil, fmt.Errorf("failed to unmarshal pending user: %w", err)
	}

	return &user, nil
}

// Remove deletes a staged user. Removing an absent record is a no-op.
func (c *RedisCache) Remove(ctx context.Context, externalID string) error {
	if err := c.client.Del(ctx, pendingKey(externalID)).Err(); err != nil {
		return fmt.Errorf("failed to remove pending user: %w", err)
	}
	return nil
}

// Count reports how many users are currently staged, for operational
// visibility
func (c *RedisCache) Count(ctx context.Context) (int64, error) {
	var count int64
	iter := c.client.Scan(ctx, 0, pendingKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan pending users: %w", err)
	}
	return count, nil
}

// Sweep removes staged users older than the TTL. Redis expiry already
// handles the normal case; the sweep catches records whose key lost its
// TTL, which happens after a RESTORE or a careless manual edit.
func (c *RedisCache) Sweep(ctx context.Context) (int64, error) {
	var removed int64
	cutoff := time.Now().UTC().Add(-c.ttl)

	iter := c.client.Scan(ctx, 0, pendingKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := c.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var user User
		if err := json.Unmarshal([]byte(data), &user); err != nil {
			c.client.Del(ctx, key)
			removed++
			continue
		}
		if user.CreatedAt.Before(cutoff) {
			c.client.Del(ctx, key)
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan pending users: %w", err)
	}
	return removed, nil
}
