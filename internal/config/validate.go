package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateInspection(); err != nil {
		return err
	}
	if c.ScanDelaySec < 0 {
		return errors.New("scan_delay_sec must be >= 0")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.Root) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/qcstation/config.toml"
		}
		return fmt.Errorf("paths.root is required. Set QCSTATION_ROOT or edit %s (create with 'qcstation config init')", defaultPath)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateInspection() error {
	return ensurePositiveMap(map[string]int{
		"inspection.tray_size":          c.Inspection.TraySize,
		"inspection.idle_threshold_sec": c.Inspection.IdleThresholdSec,
		"inspection.item_code_length":   c.Inspection.ItemCodeLength,
		"defect_merge.default_target":   c.DefectMerge.DefaultTarget,
		"event_log.queue_size":          c.EventLog.QueueSize,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
