// Package cache stores analysis results keyed by content fingerprint.
//
// The byte-level [Cache] interface has several backends: [FileCache] (the
// default, one JSON envelope per key under the state directory),
// [RedisCache], [MemoryCache] (an in-process ristretto L1), [Tiered] and
// [NullCache]. [Results] is the typed layer the orchestrator uses: it maps a
// fingerprint to a finding set and treats anything it cannot decode as a
// miss.
//
// Entries never expire on their own. A fingerprint changes whenever the
// analyzed content, the focus or the analyzer version changes, so a stale
// entry is simply never looked up again.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store.
type Cache interface {
	// Get returns the value for key. A missing key is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry and returns how many were removed.
	Clear(ctx context.Context) (int, error)

	// Stats reports the number of entries and their aggregate size.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Stats summarizes cache contents.
type Stats struct {
	Backend string `json:"backend"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
	// Location is the directory or address backing the cache, if any.
	Location string `json:"location,omitempty"`
}
