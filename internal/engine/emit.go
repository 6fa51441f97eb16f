package engine

import (
	"time"

	"qcstation/internal/barcode"
	"qcstation/internal/eventlog"
	"qcstation/internal/logging"
)

// emit enqueues an event. Enqueue failures only happen after shutdown; they
// are logged because the engine cannot do anything useful about them.
func (e *Engine) emit(stream eventlog.Stream, kind eventlog.Kind, payload any) eventlog.Event {
	ev, err := eventlog.NewEvent(e.now(), e.opts.Worker, kind, payload)
	if err != nil {
		logging.ErrorWithContext(e.logger, "event encoding failed", "event_encode_failed",
			logging.String("event", string(kind)),
			logging.Error(err),
		)
		return ev
	}
	if e.log == nil {
		return ev
	}
	if err := e.log.Append(stream, ev); err != nil {
		logging.ErrorWithContext(e.logger, "event enqueue failed", "event_enqueue_failed",
			logging.String("event", string(kind)),
			logging.String("stream", string(stream)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "event is missing from the shared log"),
		)
	}
	return ev
}

// persist writes the snapshot of the live session. The snapshot is a
// recovery hint, so a failure is logged rather than returned.
func (e *Engine) persist() {
	if e.snapshots == nil || !e.session.Active() {
		return
	}
	e.checkpointStopwatch(e.now())
	if err := e.snapshots.Save(e.opts.Worker, e.session); err != nil {
		logging.WarnWithContext(e.logger, "snapshot save failed", "snapshot_save_failed",
			logging.String(logging.FieldMasterLabel, e.session.MasterLabelCode),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the sync folder"),
			logging.String(logging.FieldImpact, "a crash now would lose the tray's progress"),
		)
	}
}

func (e *Engine) dropSnapshot() {
	if e.snapshots == nil {
		return
	}
	if err := e.snapshots.Remove(); err != nil {
		e.logger.Warn("snapshot removal failed", logging.Error(err))
	}
}

// fail records a rejected scan: the live tray's error counters, a SCAN_FAIL
// diagnostic in the mode's stream, and the returned ScanError.
func (e *Engine) fail(kind ErrorKind, scan barcode.Scan, detail string) (Result, error) {
	err := scanErr(kind, scan.Raw, detail)
	expected := ""
	if e.mode == ModeStandard && e.session.Active() {
		e.session.RecordError()
		expected = e.session.ItemCode
		e.persist()
	}
	if kind == KindReworkDuplicate {
		e.emit(eventlog.StreamRework, eventlog.KindReworkFailDuplicate, eventlog.Rework{
			Barcode:    scan.Raw,
			ReworkTime: e.now().Format(eventlog.TimestampLayout),
		})
	} else if event := kindInfo[kind].event; event != "" {
		e.emit(e.stream(), event, eventlog.ScanFail{
			Barcode:  scan.Raw,
			Reason:   err.Error(),
			Expected: expected,
			Mode:     e.mode.String(),
		})
	}
	logging.WarnWithContext(e.logger, "scan rejected", "scan_rejected",
		logging.String("barcode", scan.Raw),
		logging.String("reason", kind.String()),
	)
	return Result{}, err
}

func (e *Engine) stream() eventlog.Stream {
	switch e.mode {
	case ModeRework:
		return eventlog.StreamRework
	case ModeDefective:
		return eventlog.StreamDefectMerge
	default:
		return eventlog.StreamInspection
	}
}

// markActivity ends an idle period. The whole gap since the last activity is
// accrued as idle time and the stopwatch resumes.
func (e *Engine) markActivity(now time.Time) {
	if e.idle {
		gap := now.Sub(e.idleSince).Seconds()
		if gap < 0 {
			gap = 0
		}
		e.idle = false
		if e.session.Active() {
			e.session.TotalIdleSeconds += gap
			e.segmentStart = now
			e.emit(eventlog.StreamInspection, eventlog.KindIdleEnd, eventlog.Idle{
				MasterLabelCode: e.session.MasterLabelCode,
				IdleSeconds:     gap,
			})
		}
	}
	e.lastActivity = now
}

// PedalActivity records that the pedal moved without a scan.
func (e *Engine) PedalActivity() {
	e.markActivity(e.now())
}

// Tick checks the idle threshold. The station calls it periodically from the
// goroutine that feeds scans.
func (e *Engine) Tick() {
	if e.idle || !e.session.Active() || e.lastActivity.IsZero() {
		return
	}
	now := e.now()
	if now.Sub(e.lastActivity) < e.opts.IdleThreshold {
		return
	}
	e.checkpointStopwatch(e.lastActivity)
	e.idle = true
	e.idleSince = e.lastActivity
	e.emit(eventlog.StreamInspection, eventlog.KindIdleStart, eventlog.Idle{
		MasterLabelCode: e.session.MasterLabelCode,
	})
	e.logger.Info("station idle",
		logging.String(logging.FieldEventType, "idle_start"),
		logging.String(logging.FieldMasterLabel, e.session.MasterLabelCode),
	)
}

// checkpointStopwatch folds the running segment into StopwatchSeconds.
func (e *Engine) checkpointStopwatch(until time.Time) {
	if !e.session.Active() || e.idle || e.segmentStart.IsZero() {
		return
	}
	if d := until.Sub(e.segmentStart).Seconds(); d > 0 {
		e.session.StopwatchSeconds += d
	}
	e.segmentStart = until
}

func (e *Engine) startStopwatch(now time.Time) {
	e.segmentStart = now
	e.lastActivity = now
	e.idle = false
}
