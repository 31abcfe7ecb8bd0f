package graph

import (
	"fmt"
	"time"

	"github.com/matzehuels/stackscan/pkg/dag"
	stackio "github.com/matzehuels/stackscan/pkg/io"
)

// ArtifactFile is the artifact's file name inside the state directory.
const ArtifactFile = "graph.json"

// Artifact is the persisted, human-inspectable form of one scheduling run's
// graph: resources with their extracted manifests, resolved edges and the
// computed levels. It is written for inspection and never read back as
// input to a later run.
type Artifact struct {
	Resources  []ArtifactResource `json:"resources"`
	Edges      []ArtifactEdge     `json:"edges"`
	Levels     [][]string         `json:"levels,omitempty"`
	Cycle      []string           `json:"cycle,omitempty"`
	Collisions []Collision        `json:"collisions,omitempty"`
	Stats      ArtifactStats      `json:"stats"`
	BuiltAt    time.Time          `json:"built_at"`
}

// ArtifactStats summarizes the shape of the graph.
type ArtifactStats struct {
	Resources int `json:"resources"`
	Edges     int `json:"edges"`
	// Levels is 0 when scheduling failed.
	Levels int `json:"levels"`
	// Foundations depend on no other resource and run in the first level.
	Foundations []string `json:"foundations"`
	// Unused are resources no other resource depends on.
	Unused []string `json:"unused"`
	// MostDepended is the resource with the most dependents, empty when
	// there are no edges.
	MostDepended string `json:"most_depended,omitempty"`
}

// ArtifactResource is one resource in an [Artifact].
type ArtifactResource struct {
	Name         string   `json:"name"`
	Path         string   `json:"path"`
	Identity     string   `json:"identity,omitempty"`
	Identities   []string `json:"identities,omitempty"`
	Dependencies []string `json:"dependencies"`
	Ecosystems   []string `json:"ecosystems,omitempty"`
	DependsOn    []string `json:"depends_on"`
	Dependents   int      `json:"dependents"`
	Level        *int     `json:"level,omitempty"`
}

// ArtifactEdge is a resolved "depends on" relation.
type ArtifactEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Via  string `json:"via"`
}

// NewArtifact snapshots the graph and records levels on it. levels is nil
// when scheduling failed; in that case cycle names the offending resources.
func NewArtifact(dg *DependencyGraph, levels [][]string, cycle []string) *Artifact {
	if levels != nil {
		dg.SetLevels(levels)
	}
	a := &Artifact{
		Levels:     levels,
		Cycle:      cycle,
		Collisions: dg.Collisions(),
		BuiltAt:    time.Now().UTC(),
	}

	levelOf := make(map[string]int)
	for i, level := range levels {
		for _, name := range level {
			levelOf[name] = i
		}
	}

	for _, name := range dg.Names() {
		in := dg.inputs[name]
		r := ArtifactResource{
			Name:         name,
			Path:         in.Path,
			Identity:     in.Identity,
			Identities:   in.Identities,
			Dependencies: in.Dependencies,
			Ecosystems:   in.Ecosystems,
			DependsOn:    dg.DependsOn(name),
			Dependents:   dg.g.InDegree(name),
		}
		if r.Dependencies == nil {
			r.Dependencies = []string{}
		}
		if r.DependsOn == nil {
			r.DependsOn = []string{}
		}
		if lvl, ok := levelOf[name]; ok {
			r.Level = &lvl
		}
		a.Resources = append(a.Resources, r)
	}

	for _, e := range dg.g.Edges() {
		via, _ := e.Meta[MetaVia].(string)
		a.Edges = append(a.Edges, ArtifactEdge{From: e.From, To: e.To, Via: via})
	}
	if a.Edges == nil {
		a.Edges = []ArtifactEdge{}
	}
	a.Stats = stats(dg, levels)
	return a
}

func stats(dg *DependencyGraph, levels [][]string) ArtifactStats {
	s := ArtifactStats{
		Resources:   dg.g.NodeCount(),
		Edges:       dg.g.EdgeCount(),
		Foundations: dag.NodeIDs(dg.g.Sinks()),
		Unused:      dag.NodeIDs(dg.g.Sources()),
	}
	if levels != nil && s.Resources > 0 {
		s.Levels = dg.g.MaxRow() + 1
	}
	most := 0
	for _, name := range dg.Names() {
		if n := dg.g.InDegree(name); n > most {
			most, s.MostDepended = n, name
		}
	}
	return s
}

// WriteArtifact persists the artifact atomically.
func WriteArtifact(path string, a *Artifact) error {
	if err := stackio.WriteJSON(path, a); err != nil {
		return fmt.Errorf("write graph artifact: %w", err)
	}
	return nil
}

// ReadArtifact loads a persisted artifact. It returns (nil, nil) when no
// artifact has been written yet.
func ReadArtifact(path string) (*Artifact, error) {
	var a Artifact
	found, err := stackio.ReadJSON(path, &a)
	if err != nil {
		return nil, fmt.Errorf("read graph artifact: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &a, nil
}
