// Package cache provides key/value storage with optional expiry.
//
// It backs two things: permanent registry-visibility answers and the
// publish ledger. [FileCache] is the default and keeps entries under the
// user cache directory; [RedisCache] shares state between machines, for
// example CI runners resuming each other's publish runs; [NullCache]
// disables caching.
package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// Cache stores opaque values by key. A ttl of zero means no expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// DefaultDir returns $XDG_CACHE_HOME/cratestack, falling back to
// ~/.cache/cratestack.
func DefaultDir() (string, error) {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "cratestack"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", "cratestack"), nil
}
