package preflight

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"

	"qcstation/internal/catalog"
	"qcstation/internal/snapshot"
	"qcstation/internal/trayindex"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := checkAccess(path); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCatalog verifies that the item catalog parses and is not empty.
func CheckCatalog(path string) Result {
	const name = "Item catalog"

	items, err := catalog.Load(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if items.Len() == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: no items)", path)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d items)", path, items.Len())}
}

// CheckSnapshot reports whether an unfinished tray is waiting for this
// machine. A corrupt snapshot fails the check.
func CheckSnapshot(root, machineID string) Result {
	const name = "Session snapshot"

	store := snapshot.NewStore(root, machineID, nil)
	snap, ok, err := store.Load()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", store.Path(), err)}
	}
	if !ok {
		return Result{Name: name, Passed: true, Detail: "none"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("tray %s by %s, %d/%d, saved %s",
		snap.Session.MasterLabelCode, snap.WorkerName,
		snap.Session.Filled(), snap.Session.Quantity,
		snap.SavedAt.Format(time.DateTime))}
}

// CheckTrayIndex verifies the local tray index opens and answers a query.
func CheckTrayIndex(path string) Result {
	const name = "Tray index"

	index, err := trayindex.Open(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer index.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	codes, err := index.CompletedOn(ctx, time.Now().Format(time.DateOnly))
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d trays today)", path, len(codes))}
}

// CheckStationLock reports whether a station process currently holds the
// lock. A held lock is not a failure.
func CheckStationLock(path string) Result {
	const name = "Station lock"

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if !ok {
		return Result{Name: name, Passed: true, Detail: "held by a running station"}
	}
	_ = lock.Unlock()
	return Result{Name: name, Passed: true, Detail: "free"}
}
