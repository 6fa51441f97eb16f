package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"qcstation/internal/session"
	"qcstation/internal/snapshot"
	"qcstation/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.csv")
	if result := CheckCatalog(path); result.Passed {
		t.Fatal("expected failure for missing catalog")
	}

	testsupport.WriteCatalog(t, path, testsupport.CatalogRow{Code: "ABC0000000001", Name: "Widget"})
	result := CheckCatalog(path)
	if !result.Passed || !strings.Contains(result.Detail, "1 items") {
		t.Fatalf("result = %+v", result)
	}
}

func TestCheckSnapshot(t *testing.T) {
	root := t.TempDir()
	if result := CheckSnapshot(root, "m1"); !result.Passed || result.Detail != "none" {
		t.Fatalf("result = %+v, want none", result)
	}

	store := snapshot.NewStore(root, "m1", nil)
	sess := &session.Inspection{
		SessionID:       "s1",
		MasterLabelCode: "ML-1",
		ItemCode:        "ABC0000000001",
		Quantity:        60,
		StartTime:       time.Now(),
	}
	if err := store.Save("kim", sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	result := CheckSnapshot(root, "m1")
	if !result.Passed || !strings.Contains(result.Detail, "tray ML-1 by kim, 0/60") {
		t.Fatalf("result = %+v", result)
	}

	testsupport.WriteFile(t, store.Path(), "{broken")
	if result := CheckSnapshot(root, "m1"); result.Passed {
		t.Fatal("expected failure for corrupt snapshot")
	}
}

func TestCheckTrayIndex(t *testing.T) {
	result := CheckTrayIndex(filepath.Join(t.TempDir(), "trays.db"))
	if !result.Passed {
		t.Fatalf("result = %+v", result)
	}
}

func TestCheckStationLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qcstation.lock")
	if result := CheckStationLock(path); result.Detail != "free" {
		t.Fatalf("result = %+v, want free", result)
	}

	held := flock.New(path)
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer held.Unlock()
	result := CheckStationLock(path)
	if !result.Passed || result.Detail != "held by a running station" {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithCatalog(testsupport.CatalogRow{Code: "ABC0000000001", Name: "Widget"}),
	)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	results := RunAll(cfg)
	if len(results) != 6 {
		t.Fatalf("got %d results, want 6: %+v", len(results), results)
	}
	if Failed(results) {
		t.Fatalf("unexpected failure: %+v", results)
	}
}

func TestRunAllSkipsSnapshotWithoutRoot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.Root = filepath.Join(testsupport.BaseDir(cfg), "offline")
	results := RunAll(cfg)
	if !Failed(results) {
		t.Fatal("expected failure for missing root")
	}
	for _, r := range results {
		if r.Name == "Session snapshot" {
			t.Fatal("snapshot check ran without a usable root")
		}
	}
}
