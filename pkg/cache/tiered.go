package cache

import (
	"context"
	"errors"
	"time"
)

// Tiered combines an L1 (in-process) and L2 (shared) cache.
// Get checks L1 first, then L2, backfilling L1 on an L2 hit.
// Set, Delete and Clear operate on both levels.
type Tiered struct {
	l1       Cache
	l2       Cache
	l1Expire time.Duration
}

// NewTiered creates a tiered cache. l1Expire controls how long L2 backfill
// entries live in L1; zero keeps them until evicted.
func NewTiered(l1, l2 Cache, l1Expire time.Duration) *Tiered {
	return &Tiered{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get checks L1, then L2. On L2 hit, backfills L1.
func (c *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found, err := c.l1.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.l2.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		_ = c.l1.Set(ctx, key, val, c.l1Expire)
		return val, true, nil
	}
	return nil, false, nil
}

// Set writes to both L1 and L2.
func (c *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.l1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.l2.Set(ctx, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *Tiered) Delete(ctx context.Context, key string) error {
	if err := c.l1.Delete(ctx, key); err != nil {
		return err
	}
	return c.l2.Delete(ctx, key)
}

// Clear empties both levels and reports the L2 count, which is
// authoritative.
func (c *Tiered) Clear(ctx context.Context) (int, error) {
	if _, err := c.l1.Clear(ctx); err != nil {
		return 0, err
	}
	return c.l2.Clear(ctx)
}

// Stats reports L2, the level that outlives the process.
func (c *Tiered) Stats(ctx context.Context) (Stats, error) {
	st, err := c.l2.Stats(ctx)
	if err != nil {
		return st, err
	}
	st.Backend = "tiered+" + st.Backend
	return st, nil
}

// Close closes both levels.
func (c *Tiered) Close() error {
	return errors.Join(c.l1.Close(), c.l2.Close())
}

var _ Cache = (*Tiered)(nil)
