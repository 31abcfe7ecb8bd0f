package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, data string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DirName)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.StateDir != cfg.Dir {
		t.Errorf("StateDir = %q, want the config dir %q", cfg.StateDir, cfg.Dir)
	}
	if cfg.Cache.Backend != "file" || cfg.Cache.Dir != filepath.Join(cfg.StateDir, "cache") {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Agent.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.Agent.PollInterval)
	}
}

func TestLoadFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, `
state_dir = "state"
resources_dir = "services"

[[resources]]
name = "shared"
path = "libs/shared"

[agent]
command = "analyzer --focus {focus} {path}"
version = "7"
poll_interval = "250ms"
default_timeout = "10m"

[agent.focus_commands]
security = "secscan {path}"

[cache]
backend = "memory"

[orchestrator]
max_parallel_spawns = 4
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.StateDir != filepath.Join(root, "state") {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
	if cfg.ResourcesDir != filepath.Join(root, "services") {
		t.Errorf("ResourcesDir = %q", cfg.ResourcesDir)
	}
	if len(cfg.Resources) != 1 || cfg.Resources[0].Path != filepath.Join(root, "libs", "shared") {
		t.Errorf("Resources = %+v", cfg.Resources)
	}
	if cfg.Agent.Version != "7" || cfg.Agent.PollInterval != 250*time.Millisecond || cfg.Agent.DefaultTimeout != 10*time.Minute {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	if cfg.Agent.FocusCommands["security"] != "secscan {path}" {
		t.Errorf("FocusCommands = %v", cfg.Agent.FocusCommands)
	}
	if cfg.Cache.Backend != "memory" || cfg.Orchestrator.MaxParallelSpawns != 4 {
		t.Errorf("Cache = %+v, Orchestrator = %+v", cfg.Cache, cfg.Orchestrator)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, "[agent]\ncommand = \"from-file\"\n")
	t.Setenv("STACKSCAN_AGENT_COMMAND", "from-env")
	t.Setenv("STACKSCAN_ORCHESTRATOR_MAX_PARALLEL_SPAWNS", "2")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Agent.Command != "from-env" {
		t.Errorf("Command = %q, want env override", cfg.Agent.Command)
	}
	if cfg.Orchestrator.MaxParallelSpawns != 2 {
		t.Errorf("MaxParallelSpawns = %d", cfg.Orchestrator.MaxParallelSpawns)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"backend", "[cache]\nbackend = \"etcd\"\n"},
		{"redis without url", "[cache]\nbackend = \"redis\"\n"},
		{"negative parallelism", "[orchestrator]\nmax_parallel_spawns = -1\n"},
		{"resource name", "[[resources]]\nname = \"../x\"\npath = \"x\"\n"},
		{"syntax", "[agent\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), DirName)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				t.Fatal(err)
			}
			writeConfig(t, dir, tt.data)
			if _, err := Load(dir); err == nil {
				t.Error("Load() succeeded, want error")
			}
		})
	}
}

func TestResourceList(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"api", "web", ".hidden", "state"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "README.md"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{
		ResourcesDir: root,
		StateDir:     filepath.Join(root, "state"),
		Resources:    []ResourceConfig{{Name: "api", Path: "/elsewhere/api"}},
	}
	got, err := cfg.ResourceList()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Path != "/elsewhere/api" || got[1].Name != "web" {
		t.Errorf("ResourceList() = %+v", got)
	}
}
