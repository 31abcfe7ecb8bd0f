// Package io provides the atomic file primitives every stackscan store uses.
//
// # Overview
//
// Agent metadata, finding sets, cache entries and the graph artifact are all
// read concurrently by other processes (status queries, the aggregator, the
// HTTP API). None of them may ever observe a partially written file, so every
// write goes to a temporary file in the destination directory which is then
// renamed over the target. Rename within one directory is atomic on POSIX
// filesystems.
//
// # Usage
//
//	if err := io.WriteJSON(path, record); err != nil {
//	    return err
//	}
//
//	var rec Record
//	found, err := io.ReadJSON(path, &rec)
//
// [ReadJSON] reports a missing file as found=false with a nil error, so
// callers can tell "absent" from "unreadable".
package io
