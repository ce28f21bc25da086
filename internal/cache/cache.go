// Package cache provides an expiring key/value store used to avoid repeat
// calls to external location providers. Two backends are available: an
// in-process map and Redis. Cached values are derived, re-derivable data,
// never the source of truth, so callers treat any cache error as a miss and
// proceed to live resolution.
package cache

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

// Cache is the expiring key/value contract.
//
// Get never returns an expired entry; a miss is indistinguishable from a key
// that was never set. Set always upserts with a fresh expiry; concurrent sets
// to the same key race and the last write wins. Delete is idempotent.
// ClearExpired is safe to run concurrently with any other operation and never
// removes an unexpired entry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	ClearExpired(ctx context.Context) (int, error)
	Close() error
}

// Key builds the stable cache key {purpose}_{context}_{base64(subject)}.
// The same logical input always yields the same key so repeated resolutions
// hit the cache.
func Key(purpose, keyContext, subject string) string {
	return fmt.Sprintf("%s_%s_%s", purpose, keyContext,
		base64.RawURLEncoding.EncodeToString([]byte(subject)))
}
