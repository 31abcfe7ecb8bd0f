// Package java extracts Maven coordinates and dependencies from pom.xml files.
//
// Identities and dependencies are "groupId:artifactId" coordinates. A
// project without its own groupId inherits the parent's.
package java

import (
	"encoding/xml"
	"os"
	"strings"

	"github.com/matzehuels/stackscan/pkg/manifest"
)

type POM struct{}

func (POM) Ecosystem() string         { return "maven" }
func (POM) Supports(name string) bool { return name == "pom.xml" }

func (POM) Parse(path string) (*manifest.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pom pomProject
	if err := xml.Unmarshal(data, &pom); err != nil {
		return nil, err
	}

	groupID := pom.GroupID
	if groupID == "" && pom.Parent != nil {
		groupID = pom.Parent.GroupID
	}
	var identity string
	if groupID != "" && pom.ArtifactID != "" {
		identity = groupID + ":" + pom.ArtifactID
	}

	return &manifest.Result{Identity: identity, Dependencies: dependencies(&pom)}, nil
}

func dependencies(pom *pomProject) []string {
	var deps []string
	seen := make(map[string]bool)

	for _, dep := range pom.Dependencies {
		// Test and provided scopes are not runtime relations between resources.
		if dep.Scope == "test" || dep.Scope == "provided" || dep.Optional == "true" {
			continue
		}
		// Unresolved properties cannot be matched against anything.
		if strings.HasPrefix(dep.GroupID, "${") || strings.HasPrefix(dep.ArtifactID, "${") {
			continue
		}
		coord := dep.GroupID + ":" + dep.ArtifactID
		if !seen[coord] {
			seen[coord] = true
			deps = append(deps, coord)
		}
	}
	return deps
}

type pomProject struct {
	GroupID      string          `xml:"groupId"`
	ArtifactID   string          `xml:"artifactId"`
	Version      string          `xml:"version"`
	Dependencies []pomDependency `xml:"dependencies>dependency"`
	Parent       *pomParent      `xml:"parent"`
}

type pomParent struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
}

type pomDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Scope      string `xml:"scope"`
	Optional   string `xml:"optional"`
}
