package engine

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"qcstation/internal/barcode"
	"qcstation/internal/eventlog"
	"qcstation/internal/failure"
	"qcstation/internal/logging"
	"qcstation/internal/session"
	"qcstation/internal/trayindex"
)

func (e *Engine) scanStandard(scan barcode.Scan, defect bool) (Result, error) {
	if !e.session.Active() {
		switch scan.Kind {
		case barcode.KindMasterLabel:
			return e.acceptMasterLabel(scan.Master)
		case barcode.KindUnit:
			return e.fail(KindOutOfOrder, scan, "scan a master label first")
		case barcode.KindRemnantLabel:
			return e.fail(KindRemnantWithoutMaster, scan, "scan a master label before merging a remnant")
		default:
			return e.fail(KindUnknown, scan, "")
		}
	}

	switch scan.Kind {
	case barcode.KindMasterLabel:
		if scan.Master.Code == e.session.MasterLabelCode {
			return Result{Outcome: OutcomeNotice, Message: "master label already active"}, nil
		}
		// A new master label mid-tray submits the current tray as partial.
		e.session.IsPartialSubmission = true
		res, err := e.completeSession()
		if err != nil {
			return res, err
		}
		next, err := e.acceptMasterLabel(scan.Master)
		res.absorb(next)
		res.Outcome, res.Message, res.Prompt = next.Outcome, next.Message, next.Prompt
		return res, err
	case barcode.KindUnit:
		return e.recordUnit(scan, defect)
	case barcode.KindRemnantLabel:
		return e.scanRemnantLabel(scan)
	case barcode.KindUnknown:
		if len(scan.Raw) <= e.opts.ItemCodeLength {
			return e.fail(KindMalformedUnit, scan, "")
		}
		return e.fail(KindUnknown, scan, "")
	default:
		return e.fail(KindUnknown, scan, "defect boxes are merged in defective mode")
	}
}

// acceptMasterLabel starts a tray or, for a label completed earlier today,
// asks whether to resume it.
func (e *Engine) acceptMasterLabel(label *barcode.MasterLabel) (Result, error) {
	if e.isCompleted(label.Code) {
		e.pending = awaitingResume{label: label}
		return Result{Outcome: OutcomePrompt, Prompt: e.promptFor(e.pending)}, nil
	}
	item, ok := e.catalog.Lookup(label.ItemCode)
	if !ok {
		return e.fail(KindItemNotFound, barcode.Scan{Kind: barcode.KindMasterLabel, Raw: label.Code}, label.ItemCode)
	}

	now := e.now()
	quantity := label.Quantity
	if quantity <= 0 {
		quantity = e.opts.TraySize
	}
	e.session = &session.Inspection{
		SessionID:       e.opts.NewID(),
		MasterLabelCode: label.Code,
		MasterLabelForm: string(label.Form),
		ItemCode:        item.Code,
		ItemName:        item.Name,
		ItemSpec:        item.Spec,
		Phase:           label.Phase,
		WorkOrder:       label.WorkOrder,
		Supplier:        label.Supplier,
		FinishedBatch:   label.FinishedBatch,
		OutboundDate:    label.OutboundDate,
		ItemGroup:       label.ItemGroup,
		LabelFields:     copyFields(label.Fields),
		Quantity:        quantity,
		StartTime:       now,
	}
	e.startStopwatch(now)
	e.persist()
	e.emit(eventlog.StreamInspection, eventlog.KindMasterLabelScanned, eventlog.MasterLabelScanned{
		MasterLabelCode: label.Code,
		ItemCode:        item.Code,
		ItemName:        item.Name,
		ItemSpec:        item.Spec,
		Quantity:        quantity,
		Form:            string(label.Form),
		Fields:          copyFields(label.Fields),
		SessionID:       e.session.SessionID,
	})
	e.logger.Info("tray started",
		logging.String(logging.FieldEventType, "tray_started"),
		logging.String(logging.FieldMasterLabel, label.Code),
		logging.String(logging.FieldSessionID, e.session.SessionID),
		logging.String("item_code", item.Code),
		logging.Int("quantity", quantity),
	)
	return Result{Outcome: OutcomeSessionStarted, Message: item.Code + " " + item.Name}, nil
}

// validateUnit applies the unit rules in order: length, item code
// containment, then duplicate.
func (e *Engine) validateUnit(raw, itemCode string, seen func(string) bool) (ErrorKind, bool) {
	switch {
	case len(raw) <= e.opts.ItemCodeLength:
		return KindMalformedUnit, false
	case !strings.Contains(raw, itemCode):
		return KindItemMismatch, false
	case seen != nil && seen(raw):
		return KindDuplicate, false
	default:
		return 0, true
	}
}

func (e *Engine) recordUnit(scan barcode.Scan, defect bool) (Result, error) {
	if kind, ok := e.validateUnit(scan.Raw, e.session.ItemCode, e.session.Contains); !ok {
		return e.fail(kind, scan, "")
	}
	if e.session.Full() {
		return e.fail(KindAlreadyFull, scan, "")
	}

	now := e.now()
	status, kind := session.StatusGood, eventlog.KindInspectionGood
	if defect {
		status, kind = session.StatusDefective, eventlog.KindInspectionDefective
	}
	if err := e.session.Add(scan.Raw, status, now); err != nil {
		return e.fail(KindDuplicate, scan, "")
	}
	e.persist()
	e.emit(eventlog.StreamInspection, kind, eventlog.Inspection{
		Barcode:         scan.Raw,
		MasterLabelCode: e.session.MasterLabelCode,
		ItemCode:        e.session.ItemCode,
		ScanTime:        now.Format(eventlog.TimestampLayout),
	})

	res := Result{Outcome: OutcomeAccepted, Message: progress(e.session)}
	if e.session.Full() {
		done, err := e.completeSession()
		done.Outcome = OutcomeCompleted
		return done, err
	}
	return res, nil
}

// SubmitPartial closes the live tray before it is full.
func (e *Engine) SubmitPartial() (Result, error) {
	if !e.session.Active() {
		return Result{}, scanErr(KindOutOfOrder, "", "no tray in progress")
	}
	e.markActivity(e.now())
	e.session.IsPartialSubmission = true
	res, err := e.completeSession()
	if err == nil {
		res.Outcome = OutcomeCompleted
	}
	return res, err
}

// completeSession closes the tray: consumed remnants are deleted, the
// denormalized TRAY_COMPLETE is written, and the engine returns to idle.
func (e *Engine) completeSession() (Result, error) {
	now := e.now()
	e.checkpointStopwatch(now)
	s := e.session

	res := Result{}
	if len(s.PendingRemnantIDs) > 0 {
		res.Artifacts = append(res.Artifacts, e.settlePartialRemnants(s)...)
	}
	for _, id := range s.ConsumedRemnantIDs {
		if err := e.artifacts.Delete(id); err != nil {
			if errors.Is(err, failure.ErrNotFound) {
				continue
			}
			e.emit(eventlog.StreamInspection, eventlog.KindRemnantFileDeletionError, eventlog.RemnantDeletionError{
				RemnantID: id,
				Error:     err.Error(),
			})
			logging.WarnWithContext(e.logger, "consumed remnant not deleted", "remnant_delete_failed",
				logging.String("remnant_id", id),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "delete the remnant record and label by hand"),
				logging.String(logging.FieldImpact, "the remnant box could be merged twice"),
			)
		}
	}

	payload := trayPayload(s, now)
	ev := e.emit(eventlog.StreamInspection, eventlog.KindTrayComplete, payload)
	e.markCompleted(s.MasterLabelCode, now)
	e.projector.Apply(ev)
	if e.index != nil {
		ctx, cancel := e.ctx()
		info := eventlog.FileInfo{Path: e.log.Path(eventlog.StreamInspection, e.opts.Worker, now), Day: now}
		if tray, ok := trayindex.FromEvent(info, ev); ok {
			if err := e.index.Record(ctx, tray); err != nil {
				e.logger.Warn("tray index update failed", logging.Error(err))
			}
		}
		cancel()
	}

	e.session = nil
	e.segmentStart = time.Time{}
	e.idle = false
	e.dropSnapshot()

	e.logger.Info("tray completed",
		logging.String(logging.FieldEventType, "tray_completed"),
		logging.String(logging.FieldMasterLabel, s.MasterLabelCode),
		logging.String(logging.FieldSessionID, s.SessionID),
		logging.Int("good", len(s.GoodItems)),
		logging.Int("defective", len(s.DefectiveItems)),
		logging.Bool("partial", s.IsPartialSubmission),
		logging.Float64("work_time_sec", s.StopwatchSeconds),
	)
	res.Outcome = OutcomeCompleted
	res.Message = "tray " + s.MasterLabelCode + " complete"
	res.Completed = append(res.Completed, payload)
	return res, nil
}

// Reset discards the live tray without completing it.
func (e *Engine) Reset() (Result, error) {
	if !e.session.Active() {
		return Result{}, scanErr(KindOutOfOrder, "", "no tray in progress")
	}
	s := e.session
	e.emit(eventlog.StreamInspection, eventlog.KindTrayReset, sessionRef(s, ""))
	e.session = nil
	e.pending = nil
	e.idle = false
	e.dropSnapshot()
	e.logger.Info("tray reset",
		logging.String(logging.FieldEventType, "tray_reset"),
		logging.String(logging.FieldMasterLabel, s.MasterLabelCode),
	)
	return Result{Outcome: OutcomeNotice, Message: "tray " + s.MasterLabelCode + " reset"}, nil
}

func (e *Engine) undoInspection() (Result, error) {
	if !e.session.Active() {
		return Result{}, scanErr(KindOutOfOrder, "", "no tray in progress")
	}
	if len(e.session.ScannedBarcodes) == 0 {
		return Result{}, scanErr(KindUnknown, "", "nothing to undo")
	}
	if err := e.returnToRemnant(e.session.ScannedBarcodes[len(e.session.ScannedBarcodes)-1]); err != nil {
		return Result{}, err
	}
	item, _ := e.session.Undo()
	e.persist()
	e.emit(eventlog.StreamInspection, eventlog.KindInspectionUndo, eventlog.Undo{
		Barcode: item.Barcode,
		Status:  string(item.Status),
	})
	return Result{Outcome: OutcomeAccepted, Message: "undid " + item.Barcode}, nil
}

func (e *Engine) isCompleted(code string) bool {
	e.rollCompleted(e.now())
	_, ok := e.completed[code]
	return ok
}

func (e *Engine) markCompleted(code string, now time.Time) {
	e.rollCompleted(now)
	e.completed[code] = struct{}{}
}

// rollCompleted resets the per-day completed set and the live summary when
// the date changes, seeding the set from the tray index when available.
func (e *Engine) rollCompleted(now time.Time) {
	day := e.day(now)
	if e.completed != nil && e.completedDay == day {
		return
	}
	if e.completed != nil {
		e.projector.Reset()
	}
	e.completed = make(map[string]struct{})
	e.completedDay = day
	if e.index == nil {
		return
	}
	ctx, cancel := e.ctx()
	defer cancel()
	codes, err := e.index.CompletedOn(ctx, day)
	if err != nil {
		e.logger.Warn("completed tray lookup failed", logging.Error(err))
		return
	}
	for _, code := range codes {
		e.completed[code] = struct{}{}
	}
}

func trayPayload(s *session.Inspection, end time.Time) eventlog.TrayComplete {
	good := s.GoodBarcodes()
	defective := s.DefectiveBarcodes()
	return eventlog.TrayComplete{
		MasterLabelCode:          s.MasterLabelCode,
		SessionID:                s.SessionID,
		ItemCode:                 s.ItemCode,
		ItemName:                 s.ItemName,
		ItemSpec:                 s.ItemSpec,
		Phase:                    s.Phase,
		WorkOrderID:              s.WorkOrder,
		SupplierCode:             s.Supplier,
		FinishedProductBatch:     s.FinishedBatch,
		OutboundDate:             s.OutboundDate,
		ItemGroup:                s.ItemGroup,
		TrayCapacity:             s.Quantity,
		ScannedProductBarcodes:   good,
		DefectiveProductBarcodes: defective,
		ScanCount:                len(good) + len(defective),
		GoodCount:                len(good),
		DefectiveCount:           len(defective),
		WorkTimeSec:              s.StopwatchSeconds,
		IdleTimeSec:              s.TotalIdleSeconds,
		ErrorCount:               s.MismatchErrorCount,
		HasErrorOrReset:          s.HasErrorOrReset,
		IsPartialSubmission:      s.IsPartialSubmission,
		IsRestoredSession:        s.IsRestoredSession,
		IsRemnantSession:         s.IsRemnantSession,
		ConsumedRemnantIDs:       append([]string{}, s.ConsumedRemnantIDs...),
		StartTime:                s.StartTime.Format(eventlog.TimestampLayout),
		EndTime:                  end.Format(eventlog.TimestampLayout),
		MasterLabelFields:        copyFields(s.LabelFields),
	}
}

func sessionRef(s *session.Inspection, previousWorker string) eventlog.SessionRef {
	return eventlog.SessionRef{
		MasterLabelCode: s.MasterLabelCode,
		SessionID:       s.SessionID,
		ItemCode:        s.ItemCode,
		GoodCount:       len(s.GoodItems),
		DefectiveCount:  len(s.DefectiveItems),
		PreviousWorker:  previousWorker,
	}
}

func progress(s *session.Inspection) string {
	return s.ItemCode + " " + strconv.Itoa(s.Filled()) + "/" + strconv.Itoa(s.Quantity)
}

func copyFields(fields map[string]string) map[string]string {
	if fields == nil {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
