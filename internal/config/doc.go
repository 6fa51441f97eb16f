// Package config loads, normalizes, and validates qcstation configuration data.
//
// It supplies workstation defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// QCSTATION_ROOT. The Config type centralizes every knob the station loop and
// CLI need, so the shared sync root, the local state directory, and the
// inspection thresholds are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
