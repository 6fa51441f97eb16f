package engine

import (
	"time"

	"qcstation/internal/barcode"
	"qcstation/internal/eventlog"
	"qcstation/internal/logging"
	"qcstation/internal/session"
)

// resume reopens a tray completed earlier today from its TRAY_COMPLETE row.
func (e *Engine) resume(label *barcode.MasterLabel) (Result, error) {
	now := e.now()
	tray, found := e.findCompletedToday(label.Code, now)
	if !found {
		return e.fail(KindNoHistoricalRecord, barcode.Scan{Kind: barcode.KindMasterLabel, Raw: label.Code}, "not in today's log")
	}
	p := tray.payload

	s := &session.Inspection{
		SessionID:          p.SessionID,
		MasterLabelCode:    p.MasterLabelCode,
		MasterLabelForm:    string(label.Form),
		ItemCode:           p.ItemCode,
		ItemName:           p.ItemName,
		ItemSpec:           p.ItemSpec,
		Phase:              p.Phase,
		WorkOrder:          p.WorkOrderID,
		Supplier:           p.SupplierCode,
		FinishedBatch:      p.FinishedProductBatch,
		OutboundDate:       p.OutboundDate,
		ItemGroup:          p.ItemGroup,
		LabelFields:        copyFields(p.MasterLabelFields),
		Quantity:           tray.capacity(),
		StopwatchSeconds:   p.WorkTimeSec,
		TotalIdleSeconds:   p.IdleTimeSec,
		MismatchErrorCount: p.ErrorCount,
		HasErrorOrReset:    p.HasErrorOrReset,
		IsRestoredSession:  true,
		IsRemnantSession:   p.IsRemnantSession,
		StartTime:          now,
	}
	if s.SessionID == "" {
		s.SessionID = e.opts.NewID()
	}
	if s.Quantity <= 0 {
		s.Quantity = e.opts.TraySize
	}
	if start, err := eventlog.ParseTimestamp(p.StartTime); err == nil {
		s.StartTime = start
	}
	// Units get synthetic, strictly increasing timestamps in their original order.
	at := s.StartTime
	for _, code := range p.ScannedProductBarcodes {
		at = at.Add(time.Millisecond)
		_ = s.Add(code, session.StatusGood, at)
	}
	for _, code := range p.DefectiveProductBarcodes {
		at = at.Add(time.Millisecond)
		_ = s.Add(code, session.StatusDefective, at)
	}

	e.rollCompleted(now)
	delete(e.completed, label.Code)
	if e.index != nil {
		ctx, cancel := e.ctx()
		if err := e.index.MarkResumed(ctx, label.Code, e.day(now)); err != nil {
			e.logger.Warn("tray index resume mark failed", logging.Error(err))
		}
		cancel()
	}

	e.session = s
	e.startStopwatch(now)
	e.persist()
	e.projector.Apply(e.emit(eventlog.StreamInspection, eventlog.KindTrayResumed, sessionRef(s, "")))
	e.logger.Info("tray resumed",
		logging.String(logging.FieldEventType, "tray_resumed"),
		logging.String(logging.FieldMasterLabel, s.MasterLabelCode),
		logging.Int("filled", s.Filled()),
	)
	return Result{Outcome: OutcomeSessionStarted, Message: "resumed " + progress(s)}, nil
}

func (e *Engine) findCompletedToday(code string, now time.Time) (historicalTray, bool) {
	e.flushLog()
	if tray, ok := e.searchFile(e.log.Path(eventlog.StreamInspection, e.opts.Worker, now), code); ok {
		return tray, true
	}
	if e.index == nil {
		return historicalTray{}, false
	}
	ctx, cancel := e.ctx()
	defer cancel()
	located, ok, err := e.index.Locate(ctx, code)
	if err != nil || !ok || located.Day != e.day(now) {
		return historicalTray{}, false
	}
	return e.searchFile(located.LogPath, code)
}

// Restore hydrates a session recovered from the state snapshot. A
// previousWorker other than the engine's worker records a takeover.
func (e *Engine) Restore(s *session.Inspection, previousWorker string) (Result, error) {
	if e.session.Active() {
		return Result{}, scanErr(KindModeLocked, "", "tray "+e.session.MasterLabelCode+" is already live")
	}
	if !s.Active() {
		return Result{}, scanErr(KindUnknown, "", "snapshot holds no tray")
	}
	if err := s.Check(); err != nil {
		return Result{}, err
	}
	now := e.now()
	restored := s.Clone()
	restored.IsRestoredSession = true
	if restored.SessionID == "" {
		restored.SessionID = e.opts.NewID()
	}
	if restored.Quantity <= 0 {
		restored.Quantity = e.opts.TraySize
	}
	e.mode = ModeStandard
	e.scopeLogger()
	e.pending = nil
	e.session = restored
	e.startStopwatch(now)
	e.persist()

	kind, outcome := eventlog.KindTrayRestore, "restored"
	ref := sessionRef(restored, "")
	if previousWorker != "" && previousWorker != e.opts.Worker {
		kind, outcome = eventlog.KindTrayTakeover, "taken over"
		ref.PreviousWorker = previousWorker
	}
	e.emit(eventlog.StreamInspection, kind, ref)
	e.logger.Info("tray "+outcome,
		logging.String(logging.FieldEventType, string(kind)),
		logging.String(logging.FieldMasterLabel, restored.MasterLabelCode),
		logging.String("previous_worker", previousWorker),
		logging.Int("filled", restored.Filled()),
	)
	return Result{Outcome: OutcomeSessionStarted, Message: restored.MasterLabelCode + " " + outcome + ", " + progress(restored)}, nil
}
