package python

import (
	"bufio"
	"os"
	"strings"

	"github.com/matzehuels/stackscan/pkg/manifest"
)

// Requirements parses requirements.txt and requirements-*.txt files.
// They declare no identity.
type Requirements struct{}

func (Requirements) Ecosystem() string { return "python" }

func (Requirements) Supports(name string) bool {
	return strings.HasPrefix(name, "requirements") && strings.HasSuffix(name, ".txt")
}

func (Requirements) Parse(path string) (*manifest.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seen := make(map[string]bool)
	var deps []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, " #"); idx != -1 {
			line = line[:idx]
		}
		deps = appendUnique(deps, seen, requirementName(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &manifest.Result{Dependencies: deps}, nil
}
