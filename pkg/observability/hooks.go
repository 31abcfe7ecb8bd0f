// Package observability provides hooks for metrics and tracing.
//
// Libraries emit events through the registered hooks; the binary decides what
// receives them. Nothing in the analysis path imports a metrics backend, so a
// run without hooks costs a few interface calls on no-op receivers.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    m := prommetrics.New(prometheus.NewRegistry())
//	    observability.SetAgentHooks(m)
//	    observability.SetCacheHooks(m)
//	    observability.SetSchedulerHooks(m)
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Scheduler().OnLevelStart(ctx, level, len(resources))
//	// ... spawn and wait ...
//	observability.Scheduler().OnLevelComplete(ctx, level, time.Since(start))
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Scheduler Hooks
// =============================================================================

// SchedulerHooks receives events from level-by-level execution.
type SchedulerHooks interface {
	// OnLevelStart is called before the resources of a level are dispatched.
	OnLevelStart(ctx context.Context, level, size int)

	// OnLevelComplete is called once every resource of a level is terminal
	// or satisfied from cache.
	OnLevelComplete(ctx context.Context, level int, duration time.Duration)

	// OnCycle records a run refused because of a dependency cycle.
	OnCycle(ctx context.Context, members []string)
}

// =============================================================================
// Agent Hooks
// =============================================================================

// AgentHooks receives agent lifecycle events.
type AgentHooks interface {
	// OnSpawn records a successfully started agent.
	OnSpawn(ctx context.Context, resource, focus string)

	// OnSpawnError records an agent whose process could not be started.
	OnSpawnError(ctx context.Context, resource, focus string, err error)

	// OnTerminal records an agent reaching a terminal status. duration is
	// measured from start to the observed end.
	OnTerminal(ctx context.Context, resource, focus, status string, duration time.Duration)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, backend string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, backend string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, backend string, size int)

	// OnCacheCorrupt records an unreadable entry that was treated as a miss.
	OnCacheCorrupt(ctx context.Context, backend string)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopSchedulerHooks is a no-op implementation of SchedulerHooks.
type NoopSchedulerHooks struct{}

func (NoopSchedulerHooks) OnLevelStart(context.Context, int, int)              {}
func (NoopSchedulerHooks) OnLevelComplete(context.Context, int, time.Duration) {}
func (NoopSchedulerHooks) OnCycle(context.Context, []string)                   {}

// NoopAgentHooks is a no-op implementation of AgentHooks.
type NoopAgentHooks struct{}

func (NoopAgentHooks) OnSpawn(context.Context, string, string)                           {}
func (NoopAgentHooks) OnSpawnError(context.Context, string, string, error)               {}
func (NoopAgentHooks) OnTerminal(context.Context, string, string, string, time.Duration) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}
func (NoopCacheHooks) OnCacheCorrupt(context.Context, string)  {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	schedulerHooks SchedulerHooks = NoopSchedulerHooks{}
	agentHooks     AgentHooks     = NoopAgentHooks{}
	cacheHooks     CacheHooks     = NoopCacheHooks{}
	hooksMu        sync.RWMutex
)

// SetSchedulerHooks registers custom scheduler hooks.
// This should be called once at application startup before any run.
func SetSchedulerHooks(h SchedulerHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		schedulerHooks = h
	}
}

// SetAgentHooks registers custom agent hooks.
func SetAgentHooks(h AgentHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		agentHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// Scheduler returns the registered scheduler hooks.
func Scheduler() SchedulerHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return schedulerHooks
}

// Agent returns the registered agent hooks.
func Agent() AgentHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return agentHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	schedulerHooks = NoopSchedulerHooks{}
	agentHooks = NoopAgentHooks{}
	cacheHooks = NoopCacheHooks{}
}
