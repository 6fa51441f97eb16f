// Package main hosts the qcstation CLI entrypoint and command graph.
//
// `qcstation run` is the operator-facing workstation: it logs a worker in,
// settles any saved tray, and then reads scanner lines until quit. The other
// commands are read-only views over the shared logs and the local tray
// index (summary, trays, boxes, defects), environment checks (doctor), and
// configuration scaffolding.
package main
