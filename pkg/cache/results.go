package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackscan/pkg/findings"
	"github.com/matzehuels/stackscan/pkg/observability"
)

// resultEntry is the envelope stored for one fingerprint.
type resultEntry struct {
	Fingerprint string        `json:"fingerprint"`
	ProducedAt  time.Time     `json:"produced_at"`
	Set         *findings.Set `json:"set"`
}

// Results maps content fingerprints to finding sets on top of a [Cache].
type Results struct {
	cache   Cache
	backend string
	logger  *log.Logger
}

// NewResults wraps c. A nil logger uses log.Default().
func NewResults(c Cache, logger *log.Logger) *Results {
	if logger == nil {
		logger = log.Default()
	}
	return &Results{cache: c, backend: backendName(c), logger: logger}
}

// Cache returns the underlying byte cache.
func (r *Results) Cache() Cache { return r.cache }

// Lookup returns the finding set stored under fingerprint. Only an exact,
// decodable entry is a hit; backend failures and corrupt entries are
// logged at debug level and reported as misses.
func (r *Results) Lookup(ctx context.Context, fingerprint string) (*findings.Set, bool) {
	key := ResultKey(fingerprint)
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		var corrupt *CorruptionError
		if errors.As(err, &corrupt) {
			r.corrupt(ctx, key, err)
			return nil, false
		}
		r.logger.Debug("cache lookup failed", "fingerprint", short(fingerprint), "err", err)
		observability.Cache().OnCacheMiss(ctx, r.backend)
		return nil, false
	}
	if !ok {
		observability.Cache().OnCacheMiss(ctx, r.backend)
		return nil, false
	}

	var entry resultEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		r.corrupt(ctx, key, &CorruptionError{Key: key, Err: err})
		return nil, false
	}
	if entry.Fingerprint != fingerprint || entry.Set == nil {
		r.corrupt(ctx, key, &CorruptionError{Key: key, Err: fmt.Errorf("envelope does not match fingerprint")})
		return nil, false
	}

	observability.Cache().OnCacheHit(ctx, r.backend)
	set := entry.Set
	set.Fingerprint = fingerprint
	set.Source = findings.SourceCache
	if set.Findings == nil {
		set.Findings = []findings.Finding{}
	}
	return set, true
}

// Store records set under fingerprint with no expiry.
func (r *Results) Store(ctx context.Context, fingerprint string, set *findings.Set) error {
	data, err := json.Marshal(resultEntry{
		Fingerprint: fingerprint,
		ProducedAt:  time.Now().UTC(),
		Set:         set,
	})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := r.cache.Set(ctx, ResultKey(fingerprint), data, 0); err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	observability.Cache().OnCacheSet(ctx, r.backend, len(data))
	return nil
}

func (r *Results) corrupt(ctx context.Context, key string, err error) {
	r.logger.Debug("ignoring corrupt cache entry", "key", key, "err", err)
	observability.Cache().OnCacheCorrupt(ctx, r.backend)
	observability.Cache().OnCacheMiss(ctx, r.backend)
	_ = r.cache.Delete(ctx, key)
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func backendName(c Cache) string {
	switch c.(type) {
	case *FileCache:
		return "file"
	case *RedisCache:
		return "redis"
	case *MemoryCache:
		return "memory"
	case *Tiered:
		return "tiered"
	case *NullCache:
		return "none"
	default:
		return "custom"
	}
}
