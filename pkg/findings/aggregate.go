package findings

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Filter narrows an aggregation. The zero value matches everything.
type Filter struct {
	Resource    string   // Only this resource, if set
	MinSeverity Severity // Drop findings below this severity
}

// Skipped records a finding-set file that could not be parsed.
type Skipped struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Report is the merged, ordered view over all finding sets.
type Report struct {
	Findings    []Finding `json:"findings"`
	Resources   []string  `json:"resources"`
	Skipped     []Skipped `json:"skipped,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Summary counts findings per severity name. Every severity is present.
func (r *Report) Summary() map[string]int {
	out := make(map[string]int, len(severityNames))
	for _, name := range severityNames {
		out[name] = 0
	}
	for _, f := range r.Findings {
		out[f.Severity.String()]++
	}
	return out
}

// Aggregate reads every finding-set file in dir and merges them.
//
// Each file is parsed independently; a malformed one is logged, recorded in
// Report.Skipped and otherwise ignored. The result is ordered by resource
// name, then descending severity, then the order the analyzer emitted
// findings in. Findings are never de-duplicated across resources. A missing
// dir yields an empty report.
func Aggregate(dir string, filter Filter, logger *log.Logger) (*Report, error) {
	if logger == nil {
		logger = log.Default()
	}

	report := &Report{Findings: []Finding{}, Resources: []string{}, GeneratedAt: time.Now().UTC()}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, nil
		}
		return nil, fmt.Errorf("read findings dir: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		set, err := ReadFile(path)
		if err != nil {
			logger.Warn("skipping finding set", "path", path, "err", err)
			report.Skipped = append(report.Skipped, Skipped{Path: path, Error: err.Error()})
			continue
		}
		if filter.Resource != "" && set.Resource != filter.Resource {
			continue
		}
		report.Resources = append(report.Resources, set.Resource)
		for _, f := range set.Findings {
			if f.Severity >= filter.MinSeverity {
				report.Findings = append(report.Findings, f)
			}
		}
	}

	slices.Sort(report.Resources)
	report.Resources = slices.Compact(report.Resources)
	slices.SortStableFunc(report.Findings, func(a, b Finding) int {
		if c := cmp.Compare(a.Resource, b.Resource); c != 0 {
			return c
		}
		return cmp.Compare(b.Severity, a.Severity)
	})
	return report, nil
}
