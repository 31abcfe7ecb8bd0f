package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultMemoryMaxBytes bounds the in-process cache when no size is
// configured.
const DefaultMemoryMaxBytes = 64 << 20

// MemoryCache is an in-process cache backed by ristretto. It is mainly used
// as the L1 of a [Tiered] cache in long-running processes such as the HTTP
// server. Ristretto may reject or evict entries at any time; a rejected
// write is not an error.
type MemoryCache struct {
	c *ristretto.Cache[string, []byte]

	// ristretto does not enumerate keys, so Stats and Clear work from this
	// shadow index. Evicted keys are pruned lazily.
	mu   sync.Mutex
	keys map[string]int64
}

// NewMemoryCache creates a ristretto-backed cache. maxCostBytes is the
// maximum total size of cached values in bytes.
func NewMemoryCache(maxCostBytes int64) (*MemoryCache, error) {
	if maxCostBytes <= 0 {
		maxCostBytes = DefaultMemoryMaxBytes
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{c: c, keys: make(map[string]int64)}, nil
}

// Get retrieves a value from the cache.
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, found := m.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value. The write is applied before Set returns so a
// following Get observes it.
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(value))
	var accepted bool
	if ttl > 0 {
		accepted = m.c.SetWithTTL(key, value, cost, ttl)
	} else {
		accepted = m.c.Set(key, value, cost)
	}
	m.c.Wait()
	if accepted {
		m.mu.Lock()
		m.keys[key] = cost
		m.mu.Unlock()
	}
	return nil
}

// Delete removes a value from the cache.
func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.c.Del(key)
	m.mu.Lock()
	delete(m.keys, key)
	m.mu.Unlock()
	return nil
}

// Clear drops every entry.
func (m *MemoryCache) Clear(ctx context.Context) (int, error) {
	st, _ := m.Stats(ctx)
	m.c.Clear()
	m.mu.Lock()
	m.keys = make(map[string]int64)
	m.mu.Unlock()
	return st.Entries, nil
}

// Stats reports the live entries.
func (m *MemoryCache) Stats(context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{Backend: "memory"}
	for key, cost := range m.keys {
		if _, ok := m.c.Get(key); !ok {
			delete(m.keys, key)
			continue
		}
		st.Entries++
		st.Bytes += cost
	}
	return st, nil
}

// Close shuts down the cache and releases resources.
func (m *MemoryCache) Close() error {
	m.c.Close()
	return nil
}

var _ Cache = (*MemoryCache)(nil)
