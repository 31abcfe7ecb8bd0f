// Package graph builds the resource dependency graph from extracted
// manifests and persists it as an inspectable artifact.
//
// # Building
//
// [Build] takes one [Input] per resource. An edge A -> B exists when one of
// A's dependency identifiers equals an identity registered for B. There is no
// fuzzy matching: "shop-core" does not match "shop_core" unless an ecosystem
// parser normalized both sides. Identifiers that match no resource are
// external dependencies and are dropped.
//
//	dg := graph.Build([]graph.Input{
//	    {Name: "api", Identities: []string{"example.com/api"}, Dependencies: []string{"example.com/shared"}},
//	    {Name: "shared", Identities: []string{"example.com/shared"}},
//	}, logger)
//	dg.DependsOn("api") // [shared]
//
// # Artifact
//
// [NewArtifact] snapshots a graph with its computed levels (or the cycle that
// prevented them) plus summary [ArtifactStats]. Analysis runs write it to
// <state>/graph.json for inspection and can be rendered with [ToDOT] and [RenderSVG]. It is never
// treated as a cache of graph structure: manifests are re-parsed every run.
package graph
