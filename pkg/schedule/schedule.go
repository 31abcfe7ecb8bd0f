// Package schedule turns a dependency graph into parallel execution levels.
//
// Levels are computed by repeated extraction of the zero-in-degree frontier
// (Kahn's algorithm) over the "depends on" relation: level 0 holds every
// resource without dependencies, and level k holds the resources whose
// dependencies all sit in levels below k. Names within a level are sorted
// ascending; execution within a level is unordered.
//
// A graph with a cycle cannot be scheduled. [Levels] then returns a
// [*CircularDependencyError] naming one concrete cycle and every resource
// left unscheduled. The scheduler never drops an edge to break a cycle.
package schedule

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/stackscan/pkg/dag"
	"github.com/matzehuels/stackscan/pkg/errors"
)

// Level is a set of resource names that may run in parallel.
type Level []string

// Graph is the read-only view the scheduler needs. Both *dag.DAG and
// *graph.DependencyGraph (through its DAG method) provide it.
type Graph interface {
	IDs() []string
	Children(id string) []string
	Parents(id string) []string
}

var _ Graph = (*dag.DAG)(nil)

// CircularDependencyError reports a dependency cycle. It is fatal for the
// run that discovered it.
type CircularDependencyError struct {
	// Cycle lists the members of one cycle in dependency order: each element
	// depends on the next, and the last depends on the first.
	Cycle []string
	// Remaining lists every resource that could not be scheduled, sorted.
	// It includes the cycle members and anything depending on them.
	Remaining []string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Cycle) == 0 {
		return fmt.Sprintf("circular dependency among: %s", strings.Join(e.Remaining, ", "))
	}
	path := append(slices.Clone(e.Cycle), e.Cycle[0])
	return fmt.Sprintf("circular dependency: %s (unschedulable: %s)",
		strings.Join(path, " -> "), strings.Join(e.Remaining, ", "))
}

// Code returns CIRCULAR_DEPENDENCY.
func (e *CircularDependencyError) Code() errors.Code { return errors.ErrCodeCircularDependency }

// Levels computes the scheduling levels of g.
func Levels(g Graph) ([]Level, error) {
	ids := g.IDs()
	remaining := make(map[string]int, len(ids)) // id -> unscheduled dependency count
	for _, id := range ids {
		remaining[id] = len(g.Children(id))
	}

	var levels []Level
	for len(remaining) > 0 {
		var frontier Level
		for id, n := range remaining {
			if n == 0 {
				frontier = append(frontier, id)
			}
		}
		if len(frontier) == 0 {
			return nil, cycleError(g, remaining)
		}
		slices.Sort(frontier)

		for _, id := range frontier {
			delete(remaining, id)
		}
		for _, id := range frontier {
			for _, dependent := range g.Parents(id) {
				if _, ok := remaining[dependent]; ok {
					remaining[dependent]--
				}
			}
		}
		levels = append(levels, frontier)
	}
	return levels, nil
}

func cycleError(g Graph, remaining map[string]int) *CircularDependencyError {
	within := make(map[string]bool, len(remaining))
	names := make([]string, 0, len(remaining))
	for id := range remaining {
		within[id] = true
		names = append(names, id)
	}
	slices.Sort(names)

	err := &CircularDependencyError{Remaining: names}
	if d, ok := g.(*dag.DAG); ok {
		err.Cycle = d.FindCycle(within)
	} else {
		err.Cycle = findCycle(g, names, within)
	}
	return err
}

// findCycle is FindCycle for graphs that are not a *dag.DAG.
func findCycle(g Graph, ids []string, within map[string]bool) []string {
	d := dag.New(nil)
	for _, id := range ids {
		_ = d.AddNode(dag.Node{ID: id})
	}
	for _, id := range ids {
		for _, child := range g.Children(id) {
			if within[child] {
				_ = d.AddEdge(dag.Edge{From: id, To: child})
			}
		}
	}
	return d.FindCycle(nil)
}

// Flatten returns every name across levels in execution order.
func Flatten(levels []Level) []string {
	var out []string
	for _, l := range levels {
		out = append(out, l...)
	}
	return out
}

// LevelOf maps each name to its level index.
func LevelOf(levels []Level) map[string]int {
	m := make(map[string]int)
	for i, l := range levels {
		for _, name := range l {
			m[name] = i
		}
	}
	return m
}

// Strings converts levels to plain string slices for serialization.
func Strings(levels []Level) [][]string {
	out := make([][]string, len(levels))
	for i, l := range levels {
		out[i] = slices.Clone(l)
	}
	return out
}

// Single returns one level holding every name, sorted. It is the schedule
// used when dependency order is not respected; no cycle check is done.
func Single(names []string) []Level {
	if len(names) == 0 {
		return nil
	}
	l := slices.Clone(Level(names))
	slices.Sort(l)
	return []Level{l}
}
