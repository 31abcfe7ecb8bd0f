// Package orchestrator runs dependency-ordered analysis over a set of
// resources.
//
// A run extracts manifests from every resource, builds the dependency
// graph, computes scheduling levels and then walks the levels in order.
// Within a level every resource is first looked up in the result cache by
// content fingerprint; only misses spawn an agent. The next level starts
// once every agent of the current one is terminal, which is the only
// ordering guarantee agents get: an agent of level k may rely on level k-1
// having been fully analyzed or served from cache.
//
// Failures do not propagate. A dependent is analyzed even when the agent of
// one of its dependencies failed; the failed resource simply contributes no
// findings.
//
// State lives below a single directory:
//
//	<state>/graph.json            artifact of the last analysis run
//	<state>/agents/<id>/...       agent records (package agent)
//	<state>/findings/<name>.json  published finding sets
//	<state>/cache/...             file cache entries (package cache)
package orchestrator
