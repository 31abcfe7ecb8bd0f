// Package javascript extracts package identity and dependencies from
// package.json files.
package javascript

import (
	"encoding/json"
	"os"
	"slices"
	"strings"

	"github.com/matzehuels/stackscan/pkg/manifest"
)

// PackageJSON parses package.json files. It collects dependencies,
// devDependencies, peerDependencies and optionalDependencies.
type PackageJSON struct{}

func (PackageJSON) Ecosystem() string         { return "npm" }
func (PackageJSON) Supports(name string) bool { return strings.EqualFold(name, "package.json") }

func (PackageJSON) Parse(path string) (*manifest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pkg packageFile
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var deps []string
	for _, group := range []map[string]string{
		pkg.Dependencies, pkg.DevDependencies, pkg.PeerDependencies, pkg.OptionalDependencies,
	} {
		for name := range group {
			if !seen[name] {
				seen[name] = true
				deps = append(deps, name)
			}
		}
	}
	slices.Sort(deps)

	return &manifest.Result{Identity: pkg.Name, Dependencies: deps}, nil
}

type packageFile struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}
