package orchestrator

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/errors"
	"github.com/matzehuels/stackscan/pkg/findings"
	"github.com/matzehuels/stackscan/pkg/observability"
	"github.com/matzehuels/stackscan/pkg/schedule"
)

// AnalyzeRequest starts the analysis of one resource.
type AnalyzeRequest struct {
	Resource string
	Focus    agent.Focus
	// Background returns right after the spawn instead of waiting for the
	// agent to finish.
	Background bool
	// ID overrides the generated agent id.
	ID string
	// Timeout bounds the agent. Zero uses the configured default.
	Timeout time.Duration
}

// AnalyzeResult reports a single-resource analysis.
type AnalyzeResult struct {
	Resource    string        `json:"resource"`
	Focus       agent.Focus   `json:"focus"`
	Cached      bool          `json:"cached"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Agent       *agent.Record `json:"agent,omitempty"`
	Findings    *findings.Set `json:"findings,omitempty"`
}

// Analyze analyzes one resource, ignoring the dependency graph. A cache hit
// publishes the cached findings and spawns nothing. Otherwise the previous
// finding set is removed and an agent is spawned; unless Background is set
// Analyze waits for it and returns the terminal record.
func (o *Orchestrator) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	r, err := o.resource(req.Resource)
	if err != nil {
		return nil, err
	}
	focus, err := agent.ParseFocus(string(req.Focus))
	if err != nil {
		return nil, err
	}
	if req.ID != "" {
		if err := errors.ValidateAgentID(req.ID); err != nil {
			return nil, err
		}
	}

	st, err := o.dispatch(ctx, r, focus, req.ID, req.Timeout)
	if st == nil {
		return nil, err
	}
	res := &AnalyzeResult{
		Resource:    r.Name,
		Focus:       focus,
		Cached:      st.cached != nil,
		Fingerprint: st.fingerprint,
		Agent:       st.agent,
		Findings:    st.cached,
	}
	if err != nil || res.Cached || req.Background {
		return res, err
	}

	if _, err := o.agents.Wait(ctx, agent.WaitRequest{IDs: []string{st.agent.ID}}); err != nil {
		return res, err
	}
	rec, err := o.agents.Get(ctx, st.agent.ID)
	if err != nil {
		return res, err
	}
	res.Agent = rec
	if rec.Status == agent.StatusCompleted {
		if set, err := findings.ReadFile(findings.SetPath(o.findingsDir(), r.Name)); err == nil {
			res.Findings = set
		}
	}
	return res, nil
}

// AnalyzeAllRequest configures a run over every configured resource.
type AnalyzeAllRequest struct {
	Focus agent.Focus
	// RespectDeps schedules by dependency level. When false every resource
	// runs in a single level and cycles are not an error.
	RespectDeps bool
	// DepsOnly restricts the run to resources something else depends on.
	DepsOnly bool
	// Timeout bounds each agent. Zero uses the configured default.
	Timeout time.Duration
	// LevelTimeout bounds the wait for each level. Zero waits until every
	// agent of the level is terminal.
	LevelTimeout time.Duration
	// ProceedOnTimeout starts the next level even when LevelTimeout expired.
	// The late agents keep running.
	ProceedOnTimeout bool
}

// Outcome values of a ResourceOutcome that are not agent statuses.
const (
	OutcomeCached  = "cached"
	OutcomeSkipped = "skipped"
)

// ResourceOutcome is what happened to one resource during a run.
type ResourceOutcome struct {
	Resource string `json:"resource"`
	Level    int    `json:"level"`
	// Status is an agent status, OutcomeCached or OutcomeSkipped.
	Status   string `json:"status"`
	AgentID  string `json:"agent_id,omitempty"`
	Findings int    `json:"findings"`
	Error    string `json:"error,omitempty"`
}

// RunResult reports an AnalyzeAll run. Outcomes are in level order, sorted
// by name within a level.
type RunResult struct {
	Focus      agent.Focus       `json:"focus"`
	Levels     [][]string        `json:"levels"`
	Cycle      []string          `json:"cycle,omitempty"`
	Outcomes   []ResourceOutcome `json:"outcomes"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Counts returns the number of outcomes per status.
func (r *RunResult) Counts() map[string]int {
	m := make(map[string]int)
	for _, oc := range r.Outcomes {
		m[oc.Status]++
	}
	return m
}

// AnalyzeAll plans the configured resources and analyzes them level by
// level. Level k is dispatched only after every agent of level k-1 is
// terminal. Failed agents do not stop their dependents.
//
// A dependency cycle aborts the run before anything is spawned. A level
// that exceeds LevelTimeout without ProceedOnTimeout stops the run with an
// AGENT_TIMEOUT error naming the unfinished resources. Cancelling ctx
// cancels the non-terminal agents of the current level; the partial result
// is returned with the context error.
func (o *Orchestrator) AnalyzeAll(ctx context.Context, req AnalyzeAllRequest) (*RunResult, error) {
	focus, err := agent.ParseFocus(string(req.Focus))
	if err != nil {
		return nil, err
	}
	result := &RunResult{Focus: focus, StartedAt: time.Now().UTC()}
	defer func() { result.FinishedAt = time.Now().UTC() }()

	plan, err := o.Plan(ctx, PlanOptions{Persist: true})
	var cycErr *schedule.CircularDependencyError
	switch {
	case err == nil:
	case stderrors.As(err, &cycErr) && req.RespectDeps:
		result.Cycle = cycErr.Cycle
		observability.Scheduler().OnCycle(ctx, cycErr.Cycle)
		o.logger.Error("dependency cycle, nothing spawned", "cycle", strings.Join(cycErr.Cycle, " -> "))
		return result, err
	case stderrors.As(err, &cycErr):
		result.Cycle = cycErr.Cycle
	default:
		return nil, err
	}

	levels := plan.Levels
	if !req.RespectDeps {
		levels = schedule.Single(plan.Graph.Names())
	}
	if req.DepsOnly {
		levels = dependedUpon(levels, plan.Graph.Dependents)
	}
	result.Levels = schedule.Strings(levels)

	for i, level := range levels {
		outcomes, err := o.runLevel(ctx, i, level, focus, req)
		result.Outcomes = append(result.Outcomes, outcomes...)
		if err != nil {
			return result, err
		}
	}

	o.logger.Info("run complete", "resources", len(result.Outcomes), "levels", len(levels))
	return result, nil
}

// dependedUpon drops every resource without dependents and then any level
// left empty.
func dependedUpon(levels []schedule.Level, dependents func(string) []string) []schedule.Level {
	var out []schedule.Level
	for _, level := range levels {
		var kept schedule.Level
		for _, name := range level {
			if len(dependents(name)) > 0 {
				kept = append(kept, name)
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

// runLevel dispatches every resource of one level and waits for its agents.
func (o *Orchestrator) runLevel(ctx context.Context, idx int, level schedule.Level, focus agent.Focus, req AnalyzeAllRequest) ([]ResourceOutcome, error) {
	hooks := observability.Scheduler()
	hooks.OnLevelStart(ctx, idx, len(level))
	start := time.Now()
	o.logger.Info("starting level", "level", idx, "resources", strings.Join(level, ", "))

	outcomes := make([]ResourceOutcome, len(level))
	var (
		mu  sync.Mutex
		ids []string
	)

	// A plain group: one failed spawn must not cancel its siblings.
	var g errgroup.Group
	for i, name := range level {
		outcomes[i] = ResourceOutcome{Resource: name, Level: idx, Status: OutcomeSkipped}
		r := o.resources[name]
		g.Go(func() error {
			err := o.pool.Run(ctx, func() error {
				st, err := o.dispatch(ctx, r, focus, "", req.Timeout)
				oc := &outcomes[i]
				switch {
				case st == nil:
					oc.Status = string(agent.StatusFailed)
					oc.Error = err.Error()
				case st.cached != nil:
					oc.Status = OutcomeCached
					oc.Findings = len(st.cached.Findings)
				default:
					oc.AgentID = st.agent.ID
					oc.Status = string(st.agent.Status)
					if err != nil {
						oc.Error = err.Error()
					}
					if !st.agent.Status.Terminal() {
						mu.Lock()
						ids = append(ids, st.agent.ID)
						mu.Unlock()
					}
				}
				if err != nil {
					o.logger.Warn("dispatch failed", "resource", name, "err", err)
				}
				return nil
			})
			if err != nil {
				outcomes[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(ids) > 0 {
		res, err := o.agents.Wait(ctx, agent.WaitRequest{IDs: ids, Timeout: req.LevelTimeout})
		if res != nil {
			o.applyRecords(outcomes, res.Terminal)
			o.applyRecords(outcomes, res.NonTerminal)
		}
		if err != nil {
			o.cancelAll(ids)
			o.refresh(outcomes, ids)
			return outcomes, err
		}
		if res.TimedOut && !req.ProceedOnTimeout {
			names := make([]string, len(res.NonTerminal))
			for i, rec := range res.NonTerminal {
				names[i] = rec.Resource
			}
			return outcomes, errors.New(errors.ErrCodeAgentTimeout,
				"level %d timed out after %s; still running: %s", idx, req.LevelTimeout, strings.Join(names, ", "))
		}
		if res.TimedOut {
			o.logger.Warn("level timed out, proceeding", "level", idx, "running", len(res.NonTerminal))
		}
	}
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}

	hooks.OnLevelComplete(ctx, idx, time.Since(start))
	return outcomes, nil
}

// applyRecords copies agent state into the matching outcomes.
func (o *Orchestrator) applyRecords(outcomes []ResourceOutcome, recs []*agent.Record) {
	for _, rec := range recs {
		for i := range outcomes {
			if outcomes[i].AgentID != rec.ID {
				continue
			}
			outcomes[i].Status = string(rec.Status)
			outcomes[i].Error = rec.Error
			if rec.Status == agent.StatusCompleted {
				if set, err := findings.ReadFile(findings.SetPath(o.findingsDir(), rec.Resource)); err == nil {
					outcomes[i].Findings = len(set.Findings)
				}
			}
		}
	}
}

// cancelAll cancels agents after the run context ended, so it uses a fresh
// context bounded by a short timeout.
func (o *Orchestrator) cancelAll(ids []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, id := range ids {
		if _, err := o.agents.Cancel(ctx, id); err != nil {
			o.logger.Warn("cancel failed", "agent", id, "err", err)
		}
	}
}

func (o *Orchestrator) refresh(outcomes []ResourceOutcome, ids []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	recs := make([]*agent.Record, 0, len(ids))
	for _, id := range ids {
		if rec, err := o.agents.Get(ctx, id); err == nil {
			recs = append(recs, rec)
		}
	}
	o.applyRecords(outcomes, recs)
}
