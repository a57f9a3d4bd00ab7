package ports

import (
	"context"
	"time"
)

// Store is the durable key/value storage backing the session and OAuth2 state
type Store interface {
	// Set stores value under key; a zero ttl means no expiry
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns core.ErrNotFound when the key is absent or expired
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}
