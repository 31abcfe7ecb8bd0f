// Package cli implements the stackscan command-line interface.
package cli

import (
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackscan/pkg/agent"
	"github.com/matzehuels/stackscan/pkg/buildinfo"
	"github.com/matzehuels/stackscan/pkg/cache"
	"github.com/matzehuels/stackscan/pkg/config"
	"github.com/matzehuels/stackscan/pkg/orchestrator"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for display.
const appName = "stackscan"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configDir string
	noCache   bool
	logFormat string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "stackscan analyzes many resources in dependency order",
		Long: `stackscan discovers the dependencies between a set of resources from their
manifests, then runs one analysis agent per resource, level by level, so that
every resource is analyzed after everything it depends on. Results are cached
by content fingerprint and aggregated into a single findings report.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseLogFormat(c.logFormat)
			if err != nil {
				return err
			}
			c.Logger.SetFormatter(f)
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configDir, "config-dir", "", "stackscan directory (default ./.stackscan, then ~/.stackscan)")
	root.PersistentFlags().BoolVar(&c.noCache, "no-cache", false, "disable the result cache")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "text", "log format: text, json, logfmt")

	root.AddCommand(c.analyzeCommand())
	root.AddCommand(c.analyzeAllCommand())
	root.AddCommand(c.waitCommand())
	root.AddCommand(c.statusCommand())
	root.AddCommand(c.cancelCommand())
	root.AddCommand(c.logsCommand())
	root.AddCommand(c.pruneCommand())
	root.AddCommand(c.findingsCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.agentCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Environment
// =============================================================================

// env is everything a command needs to talk to a state directory.
type env struct {
	cfg     *config.Config
	cache   cache.Cache
	results *cache.Results
	orch    *orchestrator.Orchestrator
}

// Close releases the cache backend.
func (e *env) Close() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}

// envOptions tunes openEnv.
type envOptions struct {
	// l1 fronts the cache with an in-process memory tier.
	l1 bool
}

// openEnv loads configuration and wires the cache, agent manager and
// orchestrator.
func (c *CLI) openEnv(ctx context.Context, opts envOptions) (*env, error) {
	cfg, err := config.Load(c.configDir)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("loaded config", "dir", cfg.Dir, "state", cfg.StateDir)

	resources, err := cfg.ResourceList()
	if err != nil {
		return nil, err
	}

	backend := cfg.Cache.Backend
	if c.noCache {
		backend = cache.BackendNone
	}
	cc, err := cache.Open(ctx, cache.Options{
		Backend:        backend,
		Dir:            cfg.Cache.Dir,
		RedisURL:       cfg.Cache.RedisURL,
		MemoryMaxBytes: cfg.Cache.MemoryMaxBytes,
		L1:             opts.l1 && backend != cache.BackendNone && backend != cache.BackendMemory,
	})
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, cache: cc}
	if backend != cache.BackendNone {
		e.results = cache.NewResults(cc, c.Logger)
	}

	store, err := agent.NewFileStore(orchestrator.AgentsDir(cfg.StateDir), c.Logger)
	if err != nil {
		return nil, errors.Join(err, e.Close())
	}
	launcher, err := agent.NewExecLauncher()
	if err != nil {
		return nil, errors.Join(err, e.Close())
	}
	commands := agent.Commands{Default: cfg.Agent.Command, ByFocus: cfg.Agent.FocusCommands}
	mgr := agent.NewManager(store, launcher, agent.Config{
		Commands:       commands,
		DefaultTimeout: cfg.Agent.DefaultTimeout,
		PollInterval:   cfg.Agent.PollInterval,
	},
		agent.WithLogger(c.Logger),
		agent.WithPublisher(orchestrator.NewPublisher(orchestrator.FindingsDir(cfg.StateDir), e.results, store, c.Logger)),
	)

	orchResources := make([]orchestrator.Resource, len(resources))
	for i, r := range resources {
		orchResources[i] = orchestrator.Resource{Name: r.Name, Path: r.Path}
	}
	e.orch, err = orchestrator.New(orchestrator.Config{
		StateDir:          cfg.StateDir,
		Resources:         orchResources,
		AnalyzerVersion:   cfg.Agent.Version,
		Commands:          commands,
		MaxParallelSpawns: cfg.Orchestrator.MaxParallelSpawns,
	}, mgr, e.results, c.Logger)
	if err != nil {
		return nil, errors.Join(err, e.Close())
	}
	return e, nil
}

// withEnv opens the environment, runs fn and closes it.
func (c *CLI) withEnv(ctx context.Context, opts envOptions, fn func(*env) error) error {
	e, err := c.openEnv(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			c.Logger.Warn("closing cache", "err", err)
		}
	}()
	return fn(e)
}
