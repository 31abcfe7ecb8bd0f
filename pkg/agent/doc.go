// Package agent spawns and supervises out-of-process analysis workers.
//
// An agent is one worker run for one resource and one [Focus]. The
// [Manager] never keeps agent state in memory between calls: everything
// lives in a [Store] (by default a [FileStore] under <state>/agents), and
// every read path reconciles the stored record against reality before
// returning it. That makes status correct across CLI invocations, where the
// process that spawned an agent is long gone by the time someone asks
// about it.
//
// # Process model
//
// Spawn does not run the worker directly. It starts a supervisor (the hidden
// "stackscan agent exec --dir <agentDir>" command) in its own process group.
// The supervisor reads spec.json, runs the worker with output redirected to
// stdout.log and stderr.log, enforces the deadline, and finally writes
// exit.json atomically. A later Reconcile classifies the agent from
// exit.json:
//
//	exit 0 and findings.json present  -> completed (publisher runs)
//	supervisor recorded a timeout     -> timed-out
//	anything else                     -> failed
//
// A supervisor that disappears without exit.json is failed. A record past
// its deadline is killed and marked timed-out.
//
// # Layout
//
//	<state>/agents/<id>/agent.json    record (this package's Record)
//	<state>/agents/<id>/spec.json     what the supervisor runs
//	<state>/agents/<id>/exit.json     written once by the supervisor
//	<state>/agents/<id>/stdout.log
//	<state>/agents/<id>/stderr.log
//	<state>/agents/<id>/findings.json staged worker output
//
// Every file is written via temp file and rename.
package agent
