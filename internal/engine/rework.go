package engine

import (
	"time"

	"qcstation/internal/barcode"
	"qcstation/internal/eventlog"
	"qcstation/internal/logging"
)

func (e *Engine) scanRework(scan barcode.Scan) (Result, error) {
	if scan.Kind != barcode.KindUnit {
		return e.fail(KindUnknown, scan, "rework accepts unit barcodes only")
	}
	now := e.now()
	done := e.reworkedToday(now)
	if _, dup := done[scan.Raw]; dup {
		return e.fail(KindReworkDuplicate, scan, "")
	}
	done[scan.Raw] = struct{}{}
	e.emit(eventlog.StreamRework, eventlog.KindReworkSuccess, eventlog.Rework{
		Barcode:    scan.Raw,
		ReworkTime: now.Format(eventlog.TimestampLayout),
	})
	e.logger.Info("unit reworked",
		logging.String(logging.FieldEventType, "rework_success"),
		logging.String("barcode", scan.Raw),
	)
	return Result{Outcome: OutcomeAccepted, Message: "rework recorded: " + scan.Raw}, nil
}

// reworkedToday returns the barcodes reworked by this worker today. The set
// is seeded from today's rework log once per day and kept current in memory.
func (e *Engine) reworkedToday(now time.Time) map[string]struct{} {
	day := e.day(now)
	if e.reworked != nil && e.reworkedDay == day {
		return e.reworked
	}
	e.reworked = make(map[string]struct{})
	e.reworkedDay = day
	if e.log == nil {
		return e.reworked
	}
	e.flushLog()
	events, err := e.log.ReadFile(e.log.Path(eventlog.StreamRework, e.opts.Worker, now))
	if err != nil {
		e.logger.Warn("rework log unreadable", logging.Error(err))
		return e.reworked
	}
	for _, ev := range events {
		if ev.Kind != eventlog.KindReworkSuccess {
			continue
		}
		var payload eventlog.Rework
		if err := ev.Decode(&payload); err == nil && payload.Barcode != "" {
			e.reworked[payload.Barcode] = struct{}{}
		}
	}
	return e.reworked
}
