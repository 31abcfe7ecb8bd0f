// Package dart extracts package identity and dependencies from pubspec.yaml.
package dart

import (
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/matzehuels/stackscan/pkg/manifest"
)

// Pubspec parses pubspec.yaml files. SDK dependencies
// (`flutter: {sdk: flutter}`) are part of the toolchain and are skipped.
type Pubspec struct{}

func (Pubspec) Ecosystem() string { return "dart" }

func (Pubspec) Supports(name string) bool {
	return name == "pubspec.yaml" || name == "pubspec.yml"
}

func (Pubspec) Parse(path string) (*manifest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var spec pubspecFile
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var deps []string
	for _, group := range []map[string]any{spec.Dependencies, spec.DevDependencies} {
		for name, v := range group {
			if isSDK(v) || seen[name] {
				continue
			}
			seen[name] = true
			deps = append(deps, name)
		}
	}
	slices.Sort(deps)

	return &manifest.Result{Identity: spec.Name, Dependencies: deps}, nil
}

func isSDK(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, sdk := m["sdk"]
	return sdk
}

type pubspecFile struct {
	Name            string         `yaml:"name"`
	Dependencies    map[string]any `yaml:"dependencies"`
	DevDependencies map[string]any `yaml:"dev_dependencies"`
}
