// Package config loads stackscan settings.
//
// Settings come from config.toml in the .stackscan directory (see
// [Target]), overridden by STACKSCAN_* environment variables, with defaults
// from [Default]. Nested keys map to variables by replacing dots with
// underscores: agent.command is STACKSCAN_AGENT_COMMAND.
//
// Relative paths in the file are resolved against the directory that
// contains .stackscan, so a checked-in config works from any clone.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	stackerrors "github.com/matzehuels/stackscan/pkg/errors"
)

// Config is the decoded configuration.
type Config struct {
	// Dir is the resolved .stackscan directory. It is not read from the file.
	Dir string `mapstructure:"-"`

	StateDir     string             `mapstructure:"state_dir"`
	ResourcesDir string             `mapstructure:"resources_dir"`
	Resources    []ResourceConfig   `mapstructure:"resources"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Server       ServerConfig       `mapstructure:"server"`
	Export       ExportConfig       `mapstructure:"export"`
}

// ResourceConfig declares one resource explicitly.
type ResourceConfig struct {
	Name string `mapstructure:"name"`
	Path string `mapstructure:"path"`
}

// AgentConfig configures worker processes.
type AgentConfig struct {
	// Command is the worker command template; see agent.Commands.
	Command       string            `mapstructure:"command"`
	FocusCommands map[string]string `mapstructure:"focus_commands"`
	// Version identifies the analyzer set and is mixed into fingerprints.
	Version        string        `mapstructure:"version"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// CacheConfig selects the result cache backend.
type CacheConfig struct {
	Backend        string `mapstructure:"backend"`
	Dir            string `mapstructure:"dir"`
	RedisURL       string `mapstructure:"redis_url"`
	MemoryMaxBytes int64  `mapstructure:"memory_max_bytes"`
}

// OrchestratorConfig bounds run-level behavior.
type OrchestratorConfig struct {
	// MaxParallelSpawns caps concurrent spawns within a level; 0 is
	// unbounded.
	MaxParallelSpawns int `mapstructure:"max_parallel_spawns"`
}

// ServerConfig configures "stackscan serve".
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// ExportConfig configures findings export.
type ExportConfig struct {
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		ResourcesDir: "",
		Agent: AgentConfig{
			Version:        "1",
			PollInterval:   500 * time.Millisecond,
			DefaultTimeout: 30 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:        "file",
			MemoryMaxBytes: 64 << 20,
		},
		Server: ServerConfig{Listen: "127.0.0.1:7420"},
		Export: ExportConfig{MongoDatabase: "stackscan"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("state_dir", d.StateDir)
	v.SetDefault("resources_dir", d.ResourcesDir)

	v.SetDefault("agent.command", d.Agent.Command)
	v.SetDefault("agent.version", d.Agent.Version)
	v.SetDefault("agent.poll_interval", d.Agent.PollInterval)
	v.SetDefault("agent.default_timeout", d.Agent.DefaultTimeout)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.redis_url", d.Cache.RedisURL)
	v.SetDefault("cache.memory_max_bytes", d.Cache.MemoryMaxBytes)

	v.SetDefault("orchestrator.max_parallel_spawns", d.Orchestrator.MaxParallelSpawns)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("export.mongo_uri", d.Export.MongoURI)
	v.SetDefault("export.mongo_database", d.Export.MongoDatabase)
}

// InitViper returns a viper instance reading config.toml from dir with
// defaults and STACKSCAN_* environment overrides registered.
func InitViper(dir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("STACKSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// Load resolves the .stackscan directory (see [Target]), reads and
// validates the configuration and resolves its paths.
func Load(overrideDir string) (*Config, error) {
	dir, err := Target(overrideDir)
	if err != nil {
		return nil, err
	}
	v, err := InitViper(dir)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Dir = dir
	cfg.resolvePaths(filepath.Dir(dir))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	if c.StateDir == "" {
		c.StateDir = c.Dir
	}
	c.StateDir = abs(c.StateDir)
	c.ResourcesDir = abs(c.ResourcesDir)
	if c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(c.StateDir, "cache")
	}
	c.Cache.Dir = abs(c.Cache.Dir)
	for i := range c.Resources {
		c.Resources[i].Path = abs(c.Resources[i].Path)
	}
}

var cacheBackends = []string{"file", "redis", "memory", "none"}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if !slices.Contains(cacheBackends, c.Cache.Backend) {
		return stackerrors.New(stackerrors.ErrCodeInvalidInput,
			"cache.backend %q is not one of %s", c.Cache.Backend, strings.Join(cacheBackends, ", "))
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		return stackerrors.New(stackerrors.ErrCodeInvalidInput, "cache.backend redis needs cache.redis_url")
	}
	if c.Orchestrator.MaxParallelSpawns < 0 {
		return stackerrors.New(stackerrors.ErrCodeInvalidInput, "orchestrator.max_parallel_spawns must be >= 0")
	}
	if c.Agent.PollInterval <= 0 {
		return stackerrors.New(stackerrors.ErrCodeInvalidInput, "agent.poll_interval must be positive")
	}
	for _, r := range c.Resources {
		if err := stackerrors.ValidateResourceName(r.Name); err != nil {
			return err
		}
		if r.Path == "" {
			return stackerrors.New(stackerrors.ErrCodeInvalidInput, "resource %q has no path", r.Name)
		}
	}
	return nil
}

// ResourceList returns the explicitly declared resources followed by every
// non-hidden subdirectory of ResourcesDir not already declared by name.
func (c *Config) ResourceList() ([]ResourceConfig, error) {
	out := slices.Clone(c.Resources)
	seen := make(map[string]bool, len(out))
	for _, r := range out {
		seen[r.Name] = true
	}
	if c.ResourcesDir == "" {
		return out, nil
	}

	entries, err := os.ReadDir(c.ResourcesDir)
	if err != nil {
		return nil, fmt.Errorf("read resources_dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || seen[name] {
			continue
		}
		if filepath.Join(c.ResourcesDir, name) == c.StateDir {
			continue
		}
		seen[name] = true
		out = append(out, ResourceConfig{Name: name, Path: filepath.Join(c.ResourcesDir, name)})
	}
	return out, nil
}
