package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStation()
	c.normalizeInspection()
	c.normalizeEventLog()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("QCSTATION_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Paths.Root = strings.TrimSpace(value)
	}
	var err error
	if c.Paths.Root, err = expandPath(strings.TrimSpace(c.Paths.Root)); err != nil {
		return fmt.Errorf("paths.root: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, defaultLogDirName)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CatalogPath) == "" && c.Paths.Root != "" {
		c.Paths.CatalogPath = filepath.Join(c.Paths.Root, defaultCatalogName)
	}
	if c.Paths.CatalogPath, err = expandPath(c.Paths.CatalogPath); err != nil {
		return fmt.Errorf("paths.catalog_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.LabelsDir) == "" && c.Paths.Root != "" {
		c.Paths.LabelsDir = filepath.Join(c.Paths.Root, defaultLabelsDirName)
	}
	if c.Paths.LabelsDir, err = expandPath(c.Paths.LabelsDir); err != nil {
		return fmt.Errorf("paths.labels_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStation() {
	c.Station.MachineID = strings.TrimSpace(c.Station.MachineID)
}

func (c *Config) normalizeInspection() {
	if c.Inspection.TraySize == 0 {
		c.Inspection.TraySize = defaultTraySize
	}
	if c.Inspection.IdleThresholdSec == 0 {
		c.Inspection.IdleThresholdSec = defaultIdleThresholdSec
	}
	if c.Inspection.ItemCodeLength == 0 {
		c.Inspection.ItemCodeLength = defaultItemCodeLength
	}
	if c.DefectMerge.DefaultTarget == 0 {
		c.DefectMerge.DefaultTarget = defaultDefectMergeTarget
	}
	if c.Summary.MinSecondsPerUnit <= 0 {
		c.Summary.MinSecondsPerUnit = defaultMinSecondsPerUnit
	}
}

func (c *Config) normalizeEventLog() {
	if c.EventLog.QueueSize <= 0 {
		c.EventLog.QueueSize = defaultEventLogQueueSize
	}
	if c.EventLog.RetryIntervalMS <= 0 {
		c.EventLog.RetryIntervalMS = defaultEventLogRetryMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
