package orchestrator

import (
	"context"
	stderrors "errors"
	"path/filepath"

	"github.com/matzehuels/stackscan/pkg/graph"
	"github.com/matzehuels/stackscan/pkg/manifest"
	"github.com/matzehuels/stackscan/pkg/schedule"
)

// Plan is the dependency analysis of the configured resources.
type Plan struct {
	Resources []Resource
	Graph     *graph.DependencyGraph
	// Levels is nil when the graph has a cycle.
	Levels   []schedule.Level
	Artifact *graph.Artifact
}

// PlanOptions controls side effects of [Orchestrator.Plan].
type PlanOptions struct {
	// Persist writes the graph artifact to the state directory.
	Persist bool
}

// Plan extracts manifests, builds the dependency graph and computes its
// levels. With opts.Persist the graph artifact is written to the state
// directory, cycle or not. A cycle returns the plan together with a
// *schedule.CircularDependencyError.
func (o *Orchestrator) Plan(ctx context.Context, opts PlanOptions) (*Plan, error) {
	dirs := make([]string, len(o.cfg.Resources))
	for i, r := range o.cfg.Resources {
		dirs[i] = r.Path
	}
	exts, err := manifest.ExtractAll(ctx, dirs, o.cfg.Parsers, o.logger)
	if err != nil {
		return nil, err
	}

	p := &Plan{Resources: make([]Resource, len(o.cfg.Resources))}
	inputs := make([]graph.Input, len(o.cfg.Resources))
	for i, r := range o.cfg.Resources {
		ext := exts[i]
		r.Identity = ext.Identity
		r.Dependencies = ext.Dependencies
		p.Resources[i] = r
		inputs[i] = graph.Input{
			Name:         r.Name,
			Path:         r.Path,
			Identity:     ext.Identity,
			Identities:   ext.Identities,
			Dependencies: ext.Dependencies,
			Ecosystems:   ext.Ecosystems,
		}
	}

	p.Graph = graph.Build(inputs, o.logger)
	levels, schedErr := schedule.Levels(p.Graph.DAG())

	var cycle []string
	var cycErr *schedule.CircularDependencyError
	if stderrors.As(schedErr, &cycErr) {
		cycle = cycErr.Cycle
		if len(cycle) == 0 {
			cycle = cycErr.Remaining
		}
	} else if schedErr != nil {
		return nil, schedErr
	}

	p.Levels = levels
	p.Artifact = graph.NewArtifact(p.Graph, schedule.Strings(levels), cycle)
	if opts.Persist {
		if err := graph.WriteArtifact(filepath.Join(o.cfg.StateDir, graph.ArtifactFile), p.Artifact); err != nil {
			o.logger.Warn("could not write graph artifact", "err", err)
		}
	}

	o.logger.Debug("planned run", "resources", len(p.Resources), "edges", len(p.Artifact.Edges), "levels", len(levels))
	return p, schedErr
}
