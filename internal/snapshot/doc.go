// Package snapshot persists the live inspection session per machine so an
// interrupted tray can be resumed or taken over at the next login.
package snapshot
