// Package preflight provides readiness checks for the filesystem paths and
// local stores a workstation depends on.
//
// `qcstation doctor` runs RunAll and prints one line per check. The shared
// sync root is a network folder that may drop out; the checks make that
// visible before an operator logs in rather than at the first failed write.
package preflight
