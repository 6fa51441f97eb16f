// Package eventlog persists the station's business event log: append-only
// CSV files partitioned by {stream, worker, day} under the shared sync root.
//
// Appends are handed to a single writer goroutine so the scan path never
// blocks on the network share; failed writes are retried until they succeed
// and events are never dropped. Readers tolerate a torn final row. The only
// non-append mutation is Rewrite, used by retroactive master label
// replacement, which swaps the whole file via temp file and rename while
// holding the same per-file lock appends take.
//
// Event details are typed per kind (see payloads.go) and serialized into the
// details column as a JSON object, which keeps the files readable by the
// existing spreadsheet consumers.
package eventlog
