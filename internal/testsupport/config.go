package testsupport

import (
	"path/filepath"
	"testing"

	"qcstation/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The shared root and the local state directory are siblings under one temp
// directory and the machine identity is fixed so snapshot paths are stable.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.Root = filepath.Join(base, "sync")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "state", "logs")
	cfgVal.Paths.CatalogPath = filepath.Join(base, "sync", "items.csv")
	cfgVal.Paths.LabelsDir = filepath.Join(base, "sync", "labels")
	cfgVal.Station.MachineID = "test-station"
	cfgVal.EventLog.RetryIntervalMS = 10

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithTraySize overrides the tray capacity.
func WithTraySize(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Inspection.TraySize = n
	}
}

// WithDefectTarget overrides the defect box target.
func WithDefectTarget(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.DefectMerge.DefaultTarget = n
	}
}

// WithMachineID overrides the station identity used for the snapshot file.
func WithMachineID(id string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Station.MachineID = id
	}
}

// WithCatalog writes rows to the configured catalog path.
func WithCatalog(rows ...CatalogRow) ConfigOption {
	return func(b *configBuilder) {
		WriteCatalog(b.t, b.cfg.Paths.CatalogPath, rows...)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
