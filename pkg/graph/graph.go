package graph

import (
	"slices"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackscan/pkg/dag"
)

// Node metadata keys.
const (
	MetaPath       = "path"
	MetaIdentity   = "identity"
	MetaIdentities = "identities"
	MetaDeps       = "dependencies"
	MetaEcosystems = "ecosystems"

	// MetaVia is the edge metadata key holding the identity that produced it.
	MetaVia = "via"
)

// Input is one resource as seen by the builder: its name and path plus what
// the manifest parser extracted from it.
type Input struct {
	Name         string
	Path         string
	Identity     string   // Primary identity, may be empty
	Identities   []string // All declared identities, primary first
	Dependencies []string // Raw dependency identifiers
	Ecosystems   []string
}

// Collision records an identity claimed by more than one resource.
type Collision struct {
	Identity string `json:"identity"`
	Kept     string `json:"kept"`
	Dropped  string `json:"dropped"`
}

// DependencyGraph maps each resource to the set of resources it depends on.
// Every input resource is present, including isolated ones.
type DependencyGraph struct {
	g          *dag.DAG
	index      map[string]string
	inputs     map[string]Input
	collisions []Collision
}

// Build assembles the dependency graph.
//
// Declared identities are indexed first, in caller order, and the first
// registrant of an identity wins; later claims are logged and recorded as
// collisions. A resource that declares no identity is then registered
// under its name, unless a declared identity already uses that string, so
// it can still be depended upon by exact name. The name of a resource with
// a declared identity never matches. Dependency identifiers
// match index entries exactly. Self matches and external identifiers are
// dropped.
func Build(inputs []Input, logger *log.Logger) *DependencyGraph {
	if logger == nil {
		logger = log.Default()
	}

	dg := &DependencyGraph{
		g:      dag.New(nil),
		index:  make(map[string]string),
		inputs: make(map[string]Input, len(inputs)),
	}

	unique := make([]Input, 0, len(inputs))
	for _, in := range inputs {
		if _, dup := dg.inputs[in.Name]; dup {
			logger.Warn("duplicate resource name ignored", "resource", in.Name, "path", in.Path)
			continue
		}
		dg.inputs[in.Name] = in
		unique = append(unique, in)
		_ = dg.g.AddNode(dag.Node{ID: in.Name, Meta: dag.Metadata{
			MetaPath:       in.Path,
			MetaIdentity:   in.Identity,
			MetaIdentities: slices.Clone(in.Identities),
			MetaDeps:       slices.Clone(in.Dependencies),
			MetaEcosystems: slices.Clone(in.Ecosystems),
		}})
	}

	for _, in := range unique {
		for _, id := range in.Identities {
			owner, taken := dg.index[id]
			switch {
			case !taken:
				dg.index[id] = in.Name
			case owner != in.Name:
				dg.collisions = append(dg.collisions, Collision{Identity: id, Kept: owner, Dropped: in.Name})
				logger.Warn("identity collision, first registrant wins",
					"identity", id, "kept", owner, "dropped", in.Name)
			}
		}
	}

	for _, in := range unique {
		if len(in.Identities) > 0 {
			continue
		}
		if owner, taken := dg.index[in.Name]; !taken {
			dg.index[in.Name] = in.Name
		} else if owner != in.Name {
			logger.Debug("resource name shadowed by declared identity",
				"resource", in.Name, "owner", owner)
		}
	}

	for _, name := range dg.g.IDs() {
		for _, dep := range dg.inputs[name].Dependencies {
			target, ok := dg.index[dep]
			if !ok || target == name {
				continue
			}
			if dg.g.HasEdge(name, target) {
				continue
			}
			_ = dg.g.AddEdge(dag.Edge{From: name, To: target, Meta: dag.Metadata{MetaVia: dep}})
		}
	}

	return dg
}

// DAG returns the underlying graph. Edges point from dependent to dependency.
func (dg *DependencyGraph) DAG() *dag.DAG { return dg.g }

// Names returns every resource name, sorted.
func (dg *DependencyGraph) Names() []string { return dg.g.IDs() }

// Len returns the number of resources.
func (dg *DependencyGraph) Len() int { return dg.g.NodeCount() }

// Has reports whether name is a resource in the graph.
func (dg *DependencyGraph) Has(name string) bool {
	_, ok := dg.g.Node(name)
	return ok
}

// DependsOn returns the sorted names of the resources name depends on.
func (dg *DependencyGraph) DependsOn(name string) []string {
	return slices.Sorted(slices.Values(dg.g.Children(name)))
}

// Dependents returns the sorted names of the resources that depend on name.
func (dg *DependencyGraph) Dependents(name string) []string {
	return slices.Sorted(slices.Values(dg.g.Parents(name)))
}

// Map returns the graph as resource name -> sorted dependency names.
// Isolated resources map to an empty, non-nil slice.
func (dg *DependencyGraph) Map() map[string][]string {
	m := make(map[string][]string, dg.g.NodeCount())
	for _, name := range dg.g.IDs() {
		deps := dg.DependsOn(name)
		if deps == nil {
			deps = []string{}
		}
		m[name] = deps
	}
	return m
}

// Resolve returns the resource registered for an identity.
func (dg *DependencyGraph) Resolve(identity string) (string, bool) {
	name, ok := dg.index[identity]
	return name, ok
}

// Input returns the builder input recorded for a resource.
func (dg *DependencyGraph) Input(name string) (Input, bool) {
	in, ok := dg.inputs[name]
	return in, ok
}

// Collisions returns identity collisions found while indexing.
func (dg *DependencyGraph) Collisions() []Collision { return slices.Clone(dg.collisions) }

// SetLevels records scheduling levels as node rows.
func (dg *DependencyGraph) SetLevels(levels [][]string) {
	rows := make(map[string]int, dg.g.NodeCount())
	for i, level := range levels {
		for _, name := range level {
			rows[name] = i
		}
	}
	dg.g.SetRows(rows)
}
