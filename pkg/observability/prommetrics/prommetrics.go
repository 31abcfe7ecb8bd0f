// Package prommetrics implements the observability hooks with Prometheus
// collectors.
package prommetrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/stackscan/pkg/observability"
)

const namespace = "stackscan"

// Metrics holds the collectors. It satisfies every hook interface in
// package observability.
type Metrics struct {
	levels        *prometheus.CounterVec
	levelDuration *prometheus.HistogramVec
	cycles        prometheus.Counter

	spawns        *prometheus.CounterVec
	spawnErrors   *prometheus.CounterVec
	terminal      *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec

	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	cacheWrites   *prometheus.CounterVec
	cacheBytes    *prometheus.CounterVec
	cacheCorrupts *prometheus.CounterVec
}

var (
	_ observability.SchedulerHooks = (*Metrics)(nil)
	_ observability.AgentHooks     = (*Metrics)(nil)
	_ observability.CacheHooks     = (*Metrics)(nil)
)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		levels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "levels_started_total",
			Help: "Scheduling levels dispatched, by level index.",
		}, []string{"level"}),
		levelDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "level_duration_seconds",
			Help:    "Time from dispatch until every resource of a level was terminal.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"level"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "cycles_total",
			Help: "Runs refused because of a dependency cycle.",
		}),
		spawns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "spawned_total",
			Help: "Agents started.",
		}, []string{"focus"}),
		spawnErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "spawn_errors_total",
			Help: "Agents whose process could not be started.",
		}, []string{"focus"}),
		terminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "agent", Name: "terminal_total",
			Help: "Agents observed in a terminal status.",
		}, []string{"focus", "status"}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "agent", Name: "duration_seconds",
			Help:    "Agent run time from start to observed end.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"focus", "status"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Result cache hits.",
		}, []string{"backend"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Result cache misses.",
		}, []string{"backend"}),
		cacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "writes_total",
			Help: "Result cache writes.",
		}, []string{"backend"}),
		cacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "written_bytes_total",
			Help: "Bytes written to the result cache.",
		}, []string{"backend"}),
		cacheCorrupts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "corrupt_total",
			Help: "Unreadable cache entries treated as misses.",
		}, []string{"backend"}),
	}

	reg.MustRegister(
		m.levels, m.levelDuration, m.cycles,
		m.spawns, m.spawnErrors, m.terminal, m.agentDuration,
		m.cacheHits, m.cacheMisses, m.cacheWrites, m.cacheBytes, m.cacheCorrupts,
	)
	return m
}

// Install registers m as the process-wide scheduler, agent and cache hooks.
func (m *Metrics) Install() {
	observability.SetSchedulerHooks(m)
	observability.SetAgentHooks(m)
	observability.SetCacheHooks(m)
}

func (m *Metrics) OnLevelStart(_ context.Context, level, _ int) {
	m.levels.WithLabelValues(strconv.Itoa(level)).Inc()
}

func (m *Metrics) OnLevelComplete(_ context.Context, level int, d time.Duration) {
	m.levelDuration.WithLabelValues(strconv.Itoa(level)).Observe(d.Seconds())
}

func (m *Metrics) OnCycle(context.Context, []string) { m.cycles.Inc() }

func (m *Metrics) OnSpawn(_ context.Context, _, focus string) {
	m.spawns.WithLabelValues(focus).Inc()
}

func (m *Metrics) OnSpawnError(_ context.Context, _, focus string, _ error) {
	m.spawnErrors.WithLabelValues(focus).Inc()
}

func (m *Metrics) OnTerminal(_ context.Context, _, focus, status string, d time.Duration) {
	m.terminal.WithLabelValues(focus, status).Inc()
	m.agentDuration.WithLabelValues(focus, status).Observe(d.Seconds())
}

func (m *Metrics) OnCacheHit(_ context.Context, backend string) {
	m.cacheHits.WithLabelValues(backend).Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, backend string) {
	m.cacheMisses.WithLabelValues(backend).Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, backend string, size int) {
	m.cacheWrites.WithLabelValues(backend).Inc()
	m.cacheBytes.WithLabelValues(backend).Add(float64(size))
}

func (m *Metrics) OnCacheCorrupt(_ context.Context, backend string) {
	m.cacheCorrupts.WithLabelValues(backend).Inc()
}
