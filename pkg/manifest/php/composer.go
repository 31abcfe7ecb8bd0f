// Package php extracts package identity and dependencies from composer.json.
package php

import (
	"encoding/json"
	"os"
	"slices"
	"strings"

	"github.com/matzehuels/stackscan/pkg/manifest"
)

// ComposerJSON parses composer.json files. Platform requirements (php,
// ext-*, lib-*, composer-*) are not packages and are skipped.
type ComposerJSON struct{}

func (ComposerJSON) Ecosystem() string         { return "composer" }
func (ComposerJSON) Supports(name string) bool { return name == "composer.json" }

func (ComposerJSON) Parse(path string) (*manifest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c composerFile
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var deps []string
	for _, group := range []map[string]string{c.Require, c.RequireDev} {
		for name := range group {
			name = strings.ToLower(name)
			if isPlatform(name) || seen[name] {
				continue
			}
			seen[name] = true
			deps = append(deps, name)
		}
	}
	slices.Sort(deps)

	return &manifest.Result{Identity: strings.ToLower(c.Name), Dependencies: deps}, nil
}

func isPlatform(name string) bool {
	if name == "php" || name == "hhvm" {
		return true
	}
	for _, prefix := range []string{"ext-", "lib-", "composer-", "php-"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

type composerFile struct {
	Name       string            `json:"name"`
	Require    map[string]string `json:"require"`
	RequireDev map[string]string `json:"require-dev"`
}
