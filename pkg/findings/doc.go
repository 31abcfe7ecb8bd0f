// Package findings defines finding sets and merges them into a queryable
// report.
//
// Every analyzed resource has at most one finding-set file,
// <state>/findings/<resource>.json. A set is published with [WriteSet],
// which replaces the previous one atomically, so re-analysis never appends.
// Whether a set came from a live agent or from the cache is recorded in
// [Set.Source] and is otherwise invisible to readers.
//
// [Aggregate] runs independently of any in-flight agents and only reads
// what is on disk:
//
//	report, err := findings.Aggregate(dir, findings.Filter{MinSeverity: findings.High}, logger)
//	for _, f := range report.Findings {
//	    fmt.Println(f.Resource, f.Severity, f.Description)
//	}
package findings
