// Package station wires one inspection workstation together: the shared
// event log, artifact and snapshot stores, the local tray index and the item
// catalog, guarded by a single-instance lock on the local state directory.
//
// A Station is opened once per process. Login builds the inspection engine
// for an operator and settles any snapshot left behind by a previous run;
// Run then drives that engine from one goroutine, interleaving operator
// input with the periodic idle check. The read-only queries used by the CLI
// (summaries, tray listings, box listings, unprocessed defects) work without
// taking the lock.
package station
