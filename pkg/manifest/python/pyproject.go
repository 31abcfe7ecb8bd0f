package python

import (
	"os"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stackscan/pkg/manifest"
)

// Pyproject parses pyproject.toml files, both PEP 621 ([project]) and
// Poetry ([tool.poetry]) layouts. The Poetry "python" constraint is not a
// dependency and is skipped.
type Pyproject struct{}

func (Pyproject) Ecosystem() string         { return "python" }
func (Pyproject) Supports(name string) bool { return name == "pyproject.toml" }

func (Pyproject) Parse(path string) (*manifest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var py pyprojectFile
	if err := toml.Unmarshal(data, &py); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var deps []string
	for _, req := range py.Project.Dependencies {
		deps = appendUnique(deps, seen, requirementName(req))
	}
	for _, group := range py.Project.OptionalDependencies {
		for _, req := range group {
			deps = appendUnique(deps, seen, requirementName(req))
		}
	}

	poetry := py.Tool.Poetry
	tables := []map[string]any{poetry.Dependencies, poetry.DevDependencies}
	for _, g := range poetry.Group {
		tables = append(tables, g.Dependencies)
	}
	for _, table := range tables {
		for name := range table {
			if name == "python" {
				continue
			}
			deps = appendUnique(deps, seen, Normalize(name))
		}
	}
	slices.Sort(deps)

	identity := py.Project.Name
	if identity == "" {
		identity = poetry.Name
	}
	if identity != "" {
		identity = Normalize(identity)
	}
	return &manifest.Result{Identity: identity, Dependencies: deps}, nil
}

type pyprojectFile struct {
	Project struct {
		Name                 string              `toml:"name"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Name            string         `toml:"name"`
			Dependencies    map[string]any `toml:"dependencies"`
			DevDependencies map[string]any `toml:"dev-dependencies"`
			Group           map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}
