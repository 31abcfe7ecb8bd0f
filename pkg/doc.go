// Package pkg provides the core libraries for stackscan, a dependency-aware
// orchestrator that analyzes many resources with one worker process each.
//
// # Overview
//
// stackscan reads the manifests of a set of resources (directories with a
// go.mod, package.json, Cargo.toml and so on), works out which resources
// depend on which, and analyzes them in dependency order: a resource is
// analyzed only after everything it depends on has finished. The pkg
// directory is organized into three areas:
//
//  1. Planning - [manifest], [graph], [dag], [schedule]
//  2. Execution - [agent], [orchestrator], [cache], [fingerprint]
//  3. Results and surfaces - [findings], [api], [observability]
//
// # Architecture
//
// The typical data flow of a run:
//
//	Resource directories
//	         ↓
//	    [manifest] package (identities and declared dependencies)
//	         ↓
//	    [graph] package (resolve dependencies between resources)
//	         ↓
//	    [schedule] package (Kahn levels, cycle detection)
//	         ↓
//	    [orchestrator] package (cache lookup, one agent per resource, level by level)
//	         ↓
//	    [findings] package (per-resource sets, aggregated report)
//
// # Quick Start
//
// Plan and run every configured resource:
//
//	store, _ := agent.NewFileStore(orchestrator.AgentsDir(state), logger)
//	launcher, _ := agent.NewExecLauncher()
//	mgr := agent.NewManager(store, launcher, agent.Config{
//	    Commands: agent.Commands{Default: "analyzer --out {output} {path}"},
//	})
//	orch, _ := orchestrator.New(orchestrator.Config{
//	    StateDir:  state,
//	    Resources: resources,
//	}, mgr, nil, logger)
//
//	res, err := orch.AnalyzeAll(ctx, orchestrator.AnalyzeAllRequest{RespectDeps: true})
//
// # Packages
//
// [manifest] - Manifest discovery and parsing for Go, JavaScript, Rust,
// Python, Java, PHP and Dart, producing a resource identity and its
// declared dependency names.
//
// [graph] - Builds the resource dependency graph by matching declared
// dependencies against the identities of other resources, and exports it
// as JSON, DOT or SVG.
//
// [dag] - The directed graph used by [graph], with cycle search.
//
// [schedule] - Groups a graph into execution levels and reports cycles as
// a structured error.
//
// [agent] - Detached worker processes with on-disk records, lazy
// reconciliation, timeouts, cancellation and waiting.
//
// [orchestrator] - Ties planning, caching and agents together.
//
// [cache] and [fingerprint] - Content-addressed result cache with file,
// Redis, memory and tiered backends.
//
// [findings] - Finding sets, severity ordering, aggregation and MongoDB
// export.
//
// [api] - Read-only HTTP API over an orchestrator.
//
// [observability] - Hook interfaces with Prometheus implementations.
//
// [errors], [config], [buildinfo] and [io] hold shared infrastructure.
//
// [manifest]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/manifest
// [graph]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/graph
// [dag]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/dag
// [schedule]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/schedule
// [agent]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/agent
// [orchestrator]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/orchestrator
// [cache]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/cache
// [fingerprint]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/fingerprint
// [findings]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/findings
// [api]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/api
// [observability]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/observability
// [errors]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/errors
// [config]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/config
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/buildinfo
// [io]: https://pkg.go.dev/github.com/matzehuels/stackscan/pkg/io
package pkg
