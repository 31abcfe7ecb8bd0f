// Package dag provides the directed graph that backs stackscan's resource
// dependency graph.
//
// # Overview
//
// Each node is a resource and each edge is a "depends on" relation pointing
// from the dependent to its dependency. Once scheduling levels have been
// computed they are recorded as node rows, so the graph can be rendered and
// queried by level.
//
// # Basic Usage
//
// Create a new graph with [New], add nodes with [DAG.AddNode], and edges with
// [DAG.AddEdge]. Node IDs must be unique, edges must connect existing nodes,
// and self edges are rejected:
//
//	g := dag.New(nil)
//	g.AddNode(dag.Node{ID: "api"})
//	g.AddNode(dag.Node{ID: "shared"})
//	g.AddEdge(dag.Edge{From: "api", To: "shared"})
//
// Query the graph with [DAG.Children] (dependencies), [DAG.Parents]
// (dependents), [DAG.Sinks] and [DAG.Sources]. Iteration helpers return nodes
// sorted by ID so callers get deterministic output.
//
// # Cycles
//
// Insertion never rejects a cycle: manifests are user input and a cycle is a
// condition to report, not a programming error. [DAG.FindCycle] returns the
// members of one cycle in path order and [DAG.Validate] reports
// [ErrGraphHasCycle].
//
// # Concurrency
//
// DAG instances are not safe for concurrent use. Callers must synchronize
// access if multiple goroutines read or modify the same graph.
package dag
