package config

import "runtime"

const (
	defaultStateDir          = "~/.local/share/qcstation"
	defaultUnixRoot          = "~/Sync"
	defaultWindowsRoot       = `C:\Sync`
	defaultCatalogName       = "items.csv"
	defaultLabelsDirName     = "labels"
	defaultLogDirName        = "logs"
	defaultTraySize          = 60
	defaultIdleThresholdSec  = 420
	defaultItemCodeLength    = 13
	defaultDefectMergeTarget = 48
	defaultEventLogQueueSize = 1024
	defaultEventLogRetryMS   = 500
	defaultMinSecondsPerUnit = 2
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
)

// Default returns a Config populated with workstation defaults.
func Default() Config {
	return Config{
		ScanDelaySec: 0,
		Paths: Paths{
			Root:     defaultRoot(),
			StateDir: defaultStateDir,
		},
		Inspection: Inspection{
			TraySize:         defaultTraySize,
			IdleThresholdSec: defaultIdleThresholdSec,
			ItemCodeLength:   defaultItemCodeLength,
		},
		DefectMerge: DefectMerge{
			DefaultTarget: defaultDefectMergeTarget,
		},
		EventLog: EventLog{
			QueueSize:       defaultEventLogQueueSize,
			RetryIntervalMS: defaultEventLogRetryMS,
		},
		Summary: Summary{
			MinSecondsPerUnit: defaultMinSecondsPerUnit,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

func defaultRoot() string {
	if runtime.GOOS == "windows" {
		return defaultWindowsRoot
	}
	return defaultUnixRoot
}
