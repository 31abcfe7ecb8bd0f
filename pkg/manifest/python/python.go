// Package python extracts project identity and dependencies from
// pyproject.toml and requirements*.txt files.
//
// All names are normalized per PEP 503 (lowercase, runs of "-", "_" and "."
// collapsed to "-") so "Shop_Core" and "shop-core" match.
package python

import (
	"regexp"
	"strings"
)

var (
	nameRE      = regexp.MustCompile(`^([A-Za-z0-9][-A-Za-z0-9._]*)`)
	separatorRE = regexp.MustCompile(`[-_.]+`)
)

// Normalize returns the PEP 503 normalized form of a distribution name.
func Normalize(name string) string {
	return separatorRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// requirementName returns the normalized distribution name of a PEP 508
// requirement string, or "" if it has none (URLs, options, VCS references).
func requirementName(req string) string {
	req = strings.TrimSpace(req)
	if req == "" || req[0] == '#' || req[0] == '-' {
		return ""
	}
	if strings.Contains(req, "://") || strings.HasPrefix(req, "git+") {
		return ""
	}
	if m := nameRE.FindStringSubmatch(req); len(m) > 1 {
		return Normalize(m[1])
	}
	return ""
}

func appendUnique(deps []string, seen map[string]bool, name string) []string {
	if name == "" || seen[name] {
		return deps
	}
	seen[name] = true
	return append(deps, name)
}
