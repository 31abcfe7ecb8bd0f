package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/cache"
	"github.com/matzehuels/stackscan/pkg/errors"
	"github.com/matzehuels/stackscan/pkg/findings"
	"github.com/matzehuels/stackscan/pkg/fingerprint"
	"github.com/matzehuels/stackscan/pkg/manifest"
	"github.com/matzehuels/stackscan/pkg/manifest/ecosystems"
)

// Subdirectories of the state directory.
const (
	AgentsDirName   = "agents"
	FindingsDirName = "findings"
)

// AgentsDir returns the agent store root below state.
func AgentsDir(state string) string { return filepath.Join(state, AgentsDirName) }

// FindingsDir returns the finding-set directory below state.
func FindingsDir(state string) string { return filepath.Join(state, FindingsDirName) }

// Resource is a unit of analysis. Identity and Dependencies are filled in
// from its manifests on every planned run; values passed in are ignored.
type Resource struct {
	Name         string   `json:"name"`
	Path         string   `json:"path"`
	Identity     string   `json:"identity,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Config configures an Orchestrator.
type Config struct {
	StateDir  string
	Resources []Resource

	// AnalyzerVersion is mixed into every fingerprint together with the
	// command template of the focus, so changing either invalidates cached
	// results.
	AnalyzerVersion string
	Commands        agent.Commands

	// MaxParallelSpawns caps concurrent cache lookups and spawns within a
	// level. Zero means unbounded.
	MaxParallelSpawns int

	// Parsers defaults to ecosystems.Default().
	Parsers []manifest.Parser
}

// Orchestrator ties the manifest parser, graph builder, scheduler, agent
// manager, cache and aggregator together.
type Orchestrator struct {
	cfg       Config
	agents    *agent.Manager
	results   *cache.Results
	logger    *log.Logger
	pool      *spawnPool
	resources map[string]Resource
}

// New validates cfg and returns an orchestrator. results may be nil, which
// disables caching.
func New(cfg Config, agents *agent.Manager, results *cache.Results, logger *log.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.StateDir == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "state directory is required")
	}
	if agents == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "agent manager is required")
	}
	if cfg.Parsers == nil {
		cfg.Parsers = ecosystems.Default()
	}

	cfg.Resources = slices.Clone(cfg.Resources)
	byName := make(map[string]Resource, len(cfg.Resources))
	for i, r := range cfg.Resources {
		if err := errors.ValidateResourceName(r.Name); err != nil {
			return nil, err
		}
		if _, dup := byName[r.Name]; dup {
			return nil, errors.New(errors.ErrCodeInvalidInput, "duplicate resource %q", r.Name)
		}
		if r.Path == "" {
			return nil, errors.New(errors.ErrCodeInvalidPath, "resource %q has no path", r.Name)
		}
		abs, err := filepath.Abs(r.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", r.Path, err)
		}
		r.Path = abs
		cfg.Resources[i] = r
		byName[r.Name] = r
	}

	return &Orchestrator{
		cfg:       cfg,
		agents:    agents,
		results:   results,
		logger:    logger,
		pool:      newSpawnPool(cfg.MaxParallelSpawns),
		resources: byName,
	}, nil
}

// Resources returns the configured resources in configuration order.
func (o *Orchestrator) Resources() []Resource {
	return slices.Clone(o.cfg.Resources)
}

// Agents returns the agent manager.
func (o *Orchestrator) Agents() *agent.Manager { return o.agents }

// StateDir returns the state directory.
func (o *Orchestrator) StateDir() string { return o.cfg.StateDir }

func (o *Orchestrator) findingsDir() string { return FindingsDir(o.cfg.StateDir) }

func (o *Orchestrator) resource(name string) (Resource, error) {
	r, ok := o.resources[name]
	if !ok {
		return Resource{}, errors.New(errors.ErrCodeNotFound, "unknown resource %q", name)
	}
	return r, nil
}

// fingerprint returns "" when the resource cannot be fingerprinted; the
// resource is then analyzed without consulting the cache.
func (o *Orchestrator) fingerprint(r Resource, focus agent.Focus) string {
	if o.results == nil {
		return ""
	}
	version := o.cfg.AnalyzerVersion + "\x00" + o.cfg.Commands.Template(focus)
	fp, err := fingerprint.Compute(r.Path, string(focus), version, fingerprint.Options{
		Exclude: []string{o.cfg.StateDir},
	})
	if err != nil {
		o.logger.Warn("cannot fingerprint resource, cache bypassed", "resource", r.Name, "err", err)
		return ""
	}
	return fp
}

// started is the outcome of dispatching one resource: either a cache hit
// already published, or a spawned (possibly failed) agent.
type started struct {
	fingerprint string
	cached      *findings.Set
	agent       *agent.Record
}

// dispatch serves r from cache or spawns an agent for it. A spawn failure
// returns the failed record together with the error.
func (o *Orchestrator) dispatch(ctx context.Context, r Resource, focus agent.Focus, id string, timeout time.Duration) (*started, error) {
	st := &started{fingerprint: o.fingerprint(r, focus)}

	if st.fingerprint != "" {
		if set, ok := o.results.Lookup(ctx, st.fingerprint); ok {
			set.Resource = r.Name
			set.Focus = string(focus)
			set.GeneratedAt = time.Now().UTC()
			set.RequestedAt = set.GeneratedAt
			if err := findings.WriteSet(o.findingsDir(), set); err != nil {
				return nil, err
			}
			o.logger.Info("served from cache", "resource", r.Name, "findings", len(set.Findings))
			st.cached = set
			return st, nil
		}
	}

	if err := findings.RemoveSet(o.findingsDir(), r.Name); err != nil {
		return nil, err
	}
	if id == "" {
		id = agent.NewID(r.Name, focus)
	}
	rec, err := o.agents.Spawn(ctx, agent.SpawnRequest{
		ID:           id,
		Resource:     r.Name,
		ResourcePath: r.Path,
		Focus:        focus,
		Timeout:      timeout,
		Fingerprint:  st.fingerprint,
	})
	if rec == nil {
		return nil, err
	}
	st.agent = rec
	return st, err
}
