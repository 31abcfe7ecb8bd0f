package orchestrator

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// spawnPool caps concurrent cache lookups and spawns within a level.
// A nil pool runs everything immediately.
type spawnPool struct {
	sem *semaphore.Weighted
}

// newSpawnPool returns nil for limit <= 0, meaning unbounded.
func newSpawnPool(limit int) *spawnPool {
	if limit <= 0 {
		return nil
	}
	return &spawnPool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot. It returns ctx.Err()
// if ctx ends while waiting for a slot.
func (p *spawnPool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
