package preflight

import (
	"qcstation/internal/config"
	"qcstation/internal/snapshot"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Sync root", cfg.Paths.Root),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckCatalog(cfg.Paths.CatalogPath),
	}

	// The snapshot lives on the sync root; skip it when the root is unusable.
	if results[0].Passed {
		results = append(results, CheckSnapshot(cfg.Paths.Root, snapshot.MachineID(cfg.Station.MachineID)))
	}
	if results[1].Passed {
		results = append(results,
			CheckTrayIndex(cfg.TrayIndexPath()),
			CheckStationLock(cfg.LockPath()),
		)
	}
	return results
}

// Failed reports whether any result did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}
