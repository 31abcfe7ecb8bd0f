// Package golang extracts module identity and requirements from go.mod files.
package golang

import (
	"bufio"
	"os"
	"strings"

	"github.com/matzehuels/stackscan/pkg/manifest"
)

// GoMod parses go.mod files. The module path is the identity; direct
// requirements are the dependencies. Requirements marked "// indirect" are
// skipped because they are not declared by the resource itself.
type GoMod struct{}

func (GoMod) Ecosystem() string         { return "go" }
func (GoMod) Supports(name string) bool { return name == "go.mod" }

func (GoMod) Parse(path string) (*manifest.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res := &manifest.Result{}
	seen := make(map[string]bool)
	inRequire := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		if strings.HasPrefix(line, "module ") {
			res.Identity = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "module ")), `"`)
			continue
		}

		if strings.HasPrefix(line, "require (") || line == "require(" {
			inRequire = true
			continue
		}
		if inRequire && line == ")" {
			inRequire = false
			continue
		}

		if strings.HasPrefix(line, "require ") && !strings.Contains(line, "(") {
			line = strings.TrimPrefix(line, "require ")
		} else if !inRequire {
			continue
		}

		if dep := requirePath(line); dep != "" && !seen[dep] {
			seen[dep] = true
			res.Dependencies = append(res.Dependencies, dep)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func requirePath(line string) string {
	if strings.Contains(line, "// indirect") {
		return ""
	}
	if idx := strings.Index(line, "//"); idx != -1 {
		line = line[:idx]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], `"`)
}
