package orchestrator

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/cache"
	"github.com/matzehuels/stackscan/pkg/findings"
)

// NewPublisher returns the agent completion hook: it validates the staged
// findings file, publishes it as the resource's finding set and stores it
// in the result cache under the agent's fingerprint. A findings file that
// does not parse makes the agent fail.
//
// An agent whose resource has since been analyzed again, by a later agent
// in store or by a later cache hit, is cached but not published. results
// and store may be nil.
func NewPublisher(findingsDir string, results *cache.Results, store agent.Store, logger *log.Logger) agent.Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return func(ctx context.Context, rec *agent.Record) error {
		data, err := os.ReadFile(rec.Findings)
		if err != nil {
			return err
		}
		set, err := findings.ParseSet(data, rec.Resource)
		if err != nil {
			return &findings.ParseError{Path: rec.Findings, Err: err}
		}

		set.Resource = rec.Resource
		set.Focus = string(rec.Focus)
		set.AgentID = rec.ID
		set.Source = findings.SourceAgent
		set.Fingerprint = rec.Fingerprint
		set.RequestedAt = rec.StartedAt
		set.GeneratedAt = time.Now().UTC()

		if results != nil && rec.Fingerprint != "" {
			if err := results.Store(ctx, rec.Fingerprint, set); err != nil {
				logger.Warn("could not cache findings", "resource", rec.Resource, "err", err)
			}
		}

		if by := supersededBy(ctx, findingsDir, store, rec); by != "" {
			logger.Info("findings superseded, not published",
				"resource", rec.Resource, "agent", rec.ID, "by", by)
			return nil
		}
		if err := findings.WriteSet(findingsDir, set); err != nil {
			return err
		}
		logger.Debug("findings published", "resource", rec.Resource, "count", len(set.Findings))
		return nil
	}
}

// supersededBy names the later analysis of rec's resource, or returns "".
// The published set is checked first so that cache hits, which leave no
// agent record, count too.
func supersededBy(ctx context.Context, findingsDir string, store agent.Store, rec *agent.Record) string {
	if cur, err := findings.ReadFile(findings.SetPath(findingsDir, rec.Resource)); err == nil &&
		cur.AgentID != rec.ID && cur.RequestedAt.After(rec.StartedAt) {
		if cur.AgentID != "" {
			return cur.AgentID
		}
		return cur.Source
	}
	if store == nil {
		return ""
	}
	recs, err := store.List(ctx)
	if err != nil {
		return ""
	}
	for _, other := range recs {
		if other.Resource == rec.Resource && other.ID != rec.ID && other.StartedAt.After(rec.StartedAt) {
			return other.ID
		}
	}
	return ""
}
