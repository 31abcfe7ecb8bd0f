// Package rust extracts crate identity and dependencies from Cargo.toml files.
package rust

import (
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stackscan/pkg/manifest"
)

// CargoToml parses Cargo.toml files. Dependencies come from the regular,
// dev, build and workspace tables. A renamed dependency
// (`alias = { package = "real" }`) is reported under its real crate name.
type CargoToml struct{}

func (CargoToml) Ecosystem() string         { return "cargo" }
func (CargoToml) Supports(name string) bool { return strings.EqualFold(name, "cargo.toml") }

func (CargoToml) Parse(path string) (*manifest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cargo cargoFile
	if err := toml.Unmarshal(data, &cargo); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var deps []string
	for _, table := range []map[string]any{
		cargo.Dependencies, cargo.DevDependencies, cargo.BuildDependencies, cargo.Workspace.Dependencies,
	} {
		for name, spec := range table {
			name = crateName(name, spec)
			if !seen[name] {
				seen[name] = true
				deps = append(deps, name)
			}
		}
	}
	slices.Sort(deps)

	return &manifest.Result{Identity: cargo.Package.Name, Dependencies: deps}, nil
}

func crateName(key string, spec any) string {
	if t, ok := spec.(map[string]any); ok {
		if pkg, ok := t["package"].(string); ok && pkg != "" {
			return pkg
		}
	}
	return key
}

type cargoFile struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
	Workspace         struct {
		Dependencies map[string]any `toml:"dependencies"`
	} `toml:"workspace"`
}
