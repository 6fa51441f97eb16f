// Package logging assembles structured slog loggers and formatting helpers used
// across the station.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so engine code can tag log lines
// with the worker, mode, and master label in play. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
//
// These are diagnostic logs only. The business event log that operators and
// downstream consumers read lives in internal/eventlog.
package logging
