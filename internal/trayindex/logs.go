package trayindex

import (
	"time"

	"qcstation/internal/eventlog"
)

// FromEvent converts a TRAY_COMPLETE row of the file described by info.
func FromEvent(info eventlog.FileInfo, ev eventlog.Event) (Tray, bool) {
	if ev.Kind != eventlog.KindTrayComplete {
		return Tray{}, false
	}
	var payload eventlog.TrayComplete
	if err := ev.Decode(&payload); err != nil || payload.MasterLabelCode == "" {
		return Tray{}, false
	}
	good := len(payload.ScannedProductBarcodes)
	if good == 0 {
		good = payload.GoodCount
	}
	defective := len(payload.DefectiveProductBarcodes)
	if defective == 0 {
		defective = payload.DefectiveCount
	}
	return Tray{
		MasterLabelCode: payload.MasterLabelCode,
		SessionID:       payload.SessionID,
		Day:             info.Day.Format(time.DateOnly),
		Worker:          ev.Worker,
		LogPath:         info.Path,
		ItemCode:        payload.ItemCode,
		Capacity:        payload.TrayCapacity,
		Good:            good,
		Defective:       defective,
		Partial:         payload.IsPartialSubmission,
		EndTime:         ev.TimestampText(),
	}, true
}

// Scanner reads inspection logs.
type Scanner interface {
	Scan(stream eventlog.Stream, worker string, from, to time.Time, fn func(eventlog.FileInfo, eventlog.Event) bool) error
}

// Collect reads every TRAY_COMPLETE in the inspection stream. A TRAY_RESUMED
// later in the same file marks the earlier tray for that code as resumed.
func Collect(src Scanner) ([]Tray, error) {
	return CollectRange(src, time.Time{}, time.Time{})
}

// CollectRange is Collect restricted to log files dated within [from, to].
func CollectRange(src Scanner, from, to time.Time) ([]Tray, error) {
	var trays []Tray
	latest := make(map[string]int)
	err := src.Scan(eventlog.StreamInspection, "", from, to, func(info eventlog.FileInfo, ev eventlog.Event) bool {
		switch ev.Kind {
		case eventlog.KindTrayComplete:
			if t, ok := FromEvent(info, ev); ok {
				latest[info.Path+"|"+t.MasterLabelCode] = len(trays)
				trays = append(trays, t)
			}
		case eventlog.KindTrayResumed:
			var ref eventlog.SessionRef
			if ev.Decode(&ref) == nil {
				if idx, ok := latest[info.Path+"|"+ref.MasterLabelCode]; ok {
					trays[idx].Resumed = true
				}
			}
		}
		return true
	})
	return trays, err
}
