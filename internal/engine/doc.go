// Package engine implements the inspection session state machine.
//
// The Engine owns the live inspection session, the remnant box and the defect
// merge box, and routes every scan through the current sub-state (prompt,
// overflow exclusion, retroactive replacement) or, when none is pending, the
// handler for the current mode. It is single-threaded: callers feed scans,
// commands and idle ticks from one goroutine.
//
// Every accepted mutation first persists the session snapshot and then
// enqueues its event, so a crash between the two is recovered from the
// snapshot and a crash after both leaves the log and snapshot in agreement.
// The engine reaches storage only through the narrow EventLog, ArtifactStore,
// SnapshotStore and TrayIndex interfaces.
package engine
