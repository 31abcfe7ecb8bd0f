package orchestrator

import (
	"context"
	stderrors "errors"
	"os"
	"time"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/cache"
	"github.com/matzehuels/stackscan/pkg/errors"
	"github.com/matzehuels/stackscan/pkg/findings"
	"github.com/matzehuels/stackscan/pkg/graph"
	"github.com/matzehuels/stackscan/pkg/schedule"
)

// WaitRequest selects agents to wait for.
type WaitRequest struct {
	IDs []string
	// All waits for every agent that is non-terminal at call time. It is
	// implied when IDs is empty.
	All bool
	// Timeout bounds the wait; zero waits until every target is terminal.
	Timeout time.Duration
}

// Wait blocks until the selected agents are terminal or the timeout
// expires. A timeout is not an error: the result carries TimedOut and the
// agents still running.
func (o *Orchestrator) Wait(ctx context.Context, req WaitRequest) (*agent.WaitResult, error) {
	ids := req.IDs
	if req.All {
		ids = nil
	}
	return o.agents.Wait(ctx, agent.WaitRequest{IDs: ids, Timeout: req.Timeout})
}

// ResourceStatus summarizes one configured resource.
type ResourceStatus struct {
	Name string `json:"name"`
	Path string `json:"path"`
	// Findings is the size of the published finding set, or -1 when there
	// is none.
	Findings  int          `json:"findings"`
	Source    string       `json:"source,omitempty"`
	LastAgent string       `json:"last_agent,omitempty"`
	Status    agent.Status `json:"status,omitempty"`
}

// StatusReport is a point-in-time view of the state directory.
type StatusReport struct {
	StateDir  string               `json:"state_dir"`
	Resources []ResourceStatus     `json:"resources"`
	Counts    map[agent.Status]int `json:"counts"`
	Agents    []*agent.Record      `json:"agents,omitempty"`
	Cache     *cache.Stats         `json:"cache,omitempty"`
}

// Running returns the number of non-terminal agents.
func (s *StatusReport) Running() int {
	return s.Counts[agent.StatusPending] + s.Counts[agent.StatusRunning]
}

// Status reconciles every agent and reports per-resource state. Agent
// records are included when includeAgents is set.
func (o *Orchestrator) Status(ctx context.Context, includeAgents bool) (*StatusReport, error) {
	recs, err := o.agents.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		StateDir: o.cfg.StateDir,
		Counts:   make(map[agent.Status]int),
	}
	latest := make(map[string]*agent.Record)
	for _, rec := range recs {
		report.Counts[rec.Status]++
		// List is ordered by start time, so the last one seen wins.
		latest[rec.Resource] = rec
	}
	if includeAgents {
		report.Agents = recs
	}

	for _, r := range o.cfg.Resources {
		rs := ResourceStatus{Name: r.Name, Path: r.Path, Findings: -1}
		set, err := findings.ReadFile(findings.SetPath(o.findingsDir(), r.Name))
		switch {
		case err == nil && set != nil:
			rs.Findings = len(set.Findings)
			rs.Source = set.Source
		case err != nil && !stderrors.Is(err, os.ErrNotExist):
			o.logger.Warn("unreadable finding set", "resource", r.Name, "err", err)
		}
		if rec, ok := latest[r.Name]; ok {
			rs.LastAgent = rec.ID
			rs.Status = rec.Status
		}
		report.Resources = append(report.Resources, rs)
	}

	if o.results != nil {
		if stats, err := o.results.Cache().Stats(ctx); err == nil {
			report.Cache = &stats
		} else {
			o.logger.Debug("cache stats unavailable", "err", err)
		}
	}
	return report, nil
}

// Agent returns one reconciled agent record.
func (o *Orchestrator) Agent(ctx context.Context, id string) (*agent.Record, error) {
	return o.agents.Get(ctx, id)
}

// Cancel stops a running agent. Cancelling a terminal agent is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*agent.Record, error) {
	return o.agents.Cancel(ctx, id)
}

// Logs returns the captured output paths of an agent.
func (o *Orchestrator) Logs(ctx context.Context, id string) (agent.LogPaths, error) {
	return o.agents.Logs(ctx, id)
}

// Prune removes terminal agent records older than olderThan.
func (o *Orchestrator) Prune(ctx context.Context, olderThan time.Duration) ([]string, error) {
	return o.agents.Prune(ctx, olderThan)
}

// FindingsQuery filters aggregated findings.
type FindingsQuery struct {
	Resource    string
	MinSeverity findings.Severity
}

// Findings reconciles every agent, so finished agents publish their sets,
// then aggregates every published finding set. A resource filter must name
// a configured resource.
func (o *Orchestrator) Findings(ctx context.Context, q FindingsQuery) (*findings.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Resource != "" {
		if _, err := o.resource(q.Resource); err != nil {
			return nil, err
		}
	}
	if _, err := o.agents.List(ctx); err != nil {
		return nil, err
	}
	return findings.Aggregate(o.findingsDir(), findings.Filter{
		Resource:    q.Resource,
		MinSeverity: q.MinSeverity,
	}, o.logger)
}

// CacheStatus reports the result cache.
func (o *Orchestrator) CacheStatus(ctx context.Context) (cache.Stats, error) {
	if o.results == nil {
		return cache.NewNullCache().Stats(ctx)
	}
	return o.results.Cache().Stats(ctx)
}

// CacheClear removes every cached result and returns how many were removed.
// Published finding sets are left alone.
func (o *Orchestrator) CacheClear(ctx context.Context) (int, error) {
	if o.results == nil {
		return 0, nil
	}
	n, err := o.results.Cache().Clear(ctx)
	if err != nil {
		return n, errors.Wrap(errors.ErrCodeInternal, err, "clear cache")
	}
	o.logger.Info("cache cleared", "entries", n)
	return n, nil
}

// Graph plans the configured resources and returns the resulting artifact.
// A cycle is reported in the artifact, not as an error. Nothing is written
// to the state directory.
func (o *Orchestrator) Graph(ctx context.Context) (*graph.Artifact, error) {
	plan, err := o.Plan(ctx, PlanOptions{})
	var cycErr *schedule.CircularDependencyError
	if err != nil && !stderrors.As(err, &cycErr) {
		return nil, err
	}
	return plan.Artifact, nil
}
