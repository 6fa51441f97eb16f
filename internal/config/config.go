package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	Root        string `toml:"root"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
	CatalogPath string `toml:"catalog_path"`
	LabelsDir   string `toml:"labels_dir"`
}

// Station identifies this workstation.
type Station struct {
	// MachineID overrides the derived machine identity used to key the
	// session snapshot. Leave empty to derive it from the network hardware.
	MachineID string `toml:"machine_id"`
}

// Inspection contains the per-tray inspection knobs.
type Inspection struct {
	TraySize         int `toml:"tray_size"`
	IdleThresholdSec int `toml:"idle_threshold_sec"`
	ItemCodeLength   int `toml:"item_code_length"`
}

// DefectMerge contains configuration for defect consolidation boxes.
type DefectMerge struct {
	DefaultTarget int `toml:"default_target"`
}

// EventLog contains configuration for the business event log writer.
type EventLog struct {
	QueueSize       int `toml:"queue_size"`
	RetryIntervalMS int `toml:"retry_interval_ms"`
}

// Summary contains configuration for the dashboard projector.
type Summary struct {
	MinSecondsPerUnit float64 `toml:"min_seconds_per_unit"`
}

// Logging contains configuration for diagnostic log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for qcstation.
//
// Configuration sections by subsystem:
//   - ScanDelaySec: scanner debounce window (top-level key)
//   - Paths: shared sync root and local state directories
//   - Station: machine identity override
//   - Inspection: tray size, idle threshold, item code length
//   - DefectMerge: defect box target quantity
//   - EventLog: writer queue sizing and retry pacing
//   - Summary: dashboard plausibility filter
//   - Logging: diagnostic log format, level, and retention
type Config struct {
	ScanDelaySec float64     `toml:"scan_delay_sec"`
	Paths        Paths       `toml:"paths"`
	Station      Station     `toml:"station"`
	Inspection   Inspection  `toml:"inspection"`
	DefectMerge  DefectMerge `toml:"defect_merge"`
	EventLog     EventLog    `toml:"event_log"`
	Summary      Summary     `toml:"summary"`
	Logging      Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/qcstation/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("qcstation.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for station operation.
// The shared root is created on a best-effort basis so the station can start
// while the network folder is briefly unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.Root) != "" {
		_ = os.MkdirAll(c.Paths.Root, 0o755)
	}
	return nil
}

// ScanDelay returns the scanner debounce window.
func (c *Config) ScanDelay() time.Duration {
	return time.Duration(c.ScanDelaySec * float64(time.Second))
}

// IdleThreshold returns the inactivity window after which a session is idle.
func (c *Config) IdleThreshold() time.Duration {
	return time.Duration(c.Inspection.IdleThresholdSec) * time.Second
}

// RetryInterval returns the back-off between failed event log writes.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.EventLog.RetryIntervalMS) * time.Millisecond
}

// TrayIndexPath returns the location of the local completed-tray index.
func (c *Config) TrayIndexPath() string {
	return filepath.Join(c.Paths.StateDir, "trays.db")
}

// LockPath returns the single-instance lock file for this station.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "qcstation.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
