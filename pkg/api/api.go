// Package api serves a read-only HTTP view of a state directory.
//
// Every handler reads through the orchestrator, so each request reconciles
// the agents it reports on, exactly like the CLI does. Nothing is ever
// spawned or cancelled over HTTP.
//
//	GET /healthz
//	GET /status
//	GET /agents
//	GET /agents/{id}
//	GET /findings?resource=&min_severity=
//	GET /cache
//	GET /graph
//	GET /metrics
//
// Errors are JSON objects of the form {"code": "...", "message": "..."}.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/cache"
	"github.com/matzehuels/stackscan/pkg/findings"
	"github.com/matzehuels/stackscan/pkg/graph"
	"github.com/matzehuels/stackscan/pkg/orchestrator"
)

// Service is the read side of the orchestrator.
type Service interface {
	Status(ctx context.Context, includeAgents bool) (*orchestrator.StatusReport, error)
	Agent(ctx context.Context, id string) (*agent.Record, error)
	Findings(ctx context.Context, q orchestrator.FindingsQuery) (*findings.Report, error)
	CacheStatus(ctx context.Context) (cache.Stats, error)
	Graph(ctx context.Context) (*graph.Artifact, error)
}

var _ Service = (*orchestrator.Orchestrator)(nil)

// Options configures the handler.
type Options struct {
	Logger *log.Logger
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	// RequestTimeout bounds each request. Zero means 30s.
	RequestTimeout time.Duration
}

type handlers struct {
	svc    Service
	logger *log.Logger
}

// NewHandler returns the API router.
func NewHandler(svc Service, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	h := &handlers{svc: svc, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(opts.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(opts.RequestTimeout))

	r.Get("/healthz", h.health)
	r.Get("/status", h.status)
	r.Get("/agents", h.listAgents)
	r.Get("/agents/{id}", h.getAgent)
	r.Get("/findings", h.findings)
	r.Get("/cache", h.cache)
	r.Get("/graph", h.graph)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "the API is read-only")
	})
	return r
}
