package summary

import (
	"time"

	"qcstation/internal/eventlog"
)

// Source reads the inspection stream.
type Source interface {
	Scan(stream eventlog.Stream, worker string, from, to time.Time, fn func(eventlog.FileInfo, eventlog.Event) bool) error
}

// Report is the full dashboard for one day.
type Report struct {
	Day    time.Time
	Worker string
	Daily  Daily
	Weekly Weekly
}

// Build reads day's and the surrounding week's inspection logs for worker
// ("" for every worker) and projects them.
func Build(src Source, worker string, day time.Time, minPerUnit float64) (Report, error) {
	report := Report{Day: day, Worker: worker}

	var today []eventlog.Event
	if err := src.Scan(eventlog.StreamInspection, worker, day, day, func(_ eventlog.FileInfo, ev eventlog.Event) bool {
		today = append(today, ev)
		return true
	}); err != nil {
		return report, err
	}
	report.Daily = Fold(today)

	start, end := WeekBounds(day)
	var week []eventlog.Event
	if err := src.Scan(eventlog.StreamInspection, worker, start, end, func(_ eventlog.FileInfo, ev eventlog.Event) bool {
		week = append(week, ev)
		return true
	}); err != nil {
		return report, err
	}
	report.Weekly = FoldWeek(week, minPerUnit)
	report.Weekly.WeekStart, report.Weekly.WeekEnd = start, end
	return report, nil
}
