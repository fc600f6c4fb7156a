package repository

import (
	"context"
	"time"
)

// LockRepository provides expiring named locks used to keep one crawl per website in flight.
// Every lock holds the token of its owner; only that owner can release it.
type LockRepository interface {
	// Acquire takes the lock for token and reports false if it is already held.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Take hands the lock to token whether or not it is held.
	Take(ctx context.Context, key, token string, ttl time.Duration) error
	// Release frees the lock if token still owns it and reports whether it did.
	Release(ctx context.Context, key, token string) (bool, error)
}
