package engine

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"qcstation/internal/barcode"
	"qcstation/internal/eventlog"
	"qcstation/internal/logging"
)

// errTrayRowChanged reports that the completed tray row moved or was
// relabelled while the replacement was in progress.
var errTrayRowChanged = errors.New("completed tray row changed")

// BeginReplace starts the retroactive master label replacement.
func (e *Engine) BeginReplace() (Result, error) {
	e.markActivity(e.now())
	if e.mode != ModeStandard {
		return Result{}, scanErr(KindModeLocked, "", "replacement runs in standard mode")
	}
	if e.session.Active() {
		return Result{}, scanErr(KindModeLocked, "", "finish or reset tray "+e.session.MasterLabelCode+" first")
	}
	if e.pending != nil {
		return Result{}, scanErr(KindModeLocked, "", "cancel "+e.pending.name()+" first")
	}
	e.pending = awaitingOldLabel{}
	e.emit(eventlog.StreamInspection, eventlog.KindHistoricalReplaceStart, eventlog.Replace{})
	return Result{Outcome: OutcomeAwaiting, Message: "scan the master label to replace"}, nil
}

func (e *Engine) scanReplaceOld(scan barcode.Scan) (Result, error) {
	if scan.Kind != barcode.KindMasterLabel {
		return e.fail(KindUnknown, scan, "expected the old master label")
	}
	e.pending = awaitingNewLabel{old: scan.Master.Code}
	return Result{Outcome: OutcomeAwaiting, Message: "scan the replacement master label"}, nil
}

func (e *Engine) scanReplaceNew(p awaitingNewLabel, scan barcode.Scan) (Result, error) {
	if scan.Kind != barcode.KindMasterLabel {
		return e.fail(KindUnknown, scan, "expected the replacement master label")
	}
	label := scan.Master
	if label.Code == p.old {
		return e.fail(KindDuplicate, scan, "replacement matches the old label")
	}
	tray, found, err := e.findCompleted(p.old)
	if err != nil {
		return Result{}, err
	}
	if !found {
		e.pending = awaitingOldLabel{}
		return e.fail(KindNoHistoricalRecord, barcode.Scan{Kind: barcode.KindMasterLabel, Raw: p.old}, "")
	}
	if label.ItemCode != "" && label.ItemCode != tray.payload.ItemCode {
		return e.fail(KindItemMismatch, scan, "tray holds "+tray.payload.ItemCode)
	}

	old := &barcode.MasterLabel{Code: p.old}
	oldCap, newCap := tray.capacity(), label.Quantity
	if newCap <= 0 {
		newCap = e.opts.TraySize
	}
	switch {
	case newCap == oldCap:
		return e.finalizeReplace(old, label, tray, nil, nil)
	case newCap > oldCap:
		e.pending = &awaitingAdditional{old: old, new: label, tray: tray, need: newCap - oldCap}
		return Result{Outcome: OutcomeAwaiting, Message: "scan " + strconv.Itoa(newCap-oldCap) + " additional units"}, nil
	default:
		need := oldCap - newCap
		if need > len(tray.payload.ScannedProductBarcodes) {
			e.pending = awaitingOldLabel{}
			return e.fail(KindReplaceCountMismatch, scan, "tray has too few good units to remove "+strconv.Itoa(need))
		}
		e.pending = &awaitingRemoved{old: old, new: label, tray: tray, need: need}
		return Result{Outcome: OutcomeAwaiting, Message: "scan " + strconv.Itoa(need) + " units to remove"}, nil
	}
}

func (e *Engine) scanReplaceAdd(p *awaitingAdditional, scan barcode.Scan) (Result, error) {
	seen := func(raw string) bool {
		return slices.Contains(p.tray.payload.ScannedProductBarcodes, raw) ||
			slices.Contains(p.tray.payload.DefectiveProductBarcodes, raw) ||
			slices.Contains(p.added, raw)
	}
	if kind, ok := e.validateUnit(scan.Raw, p.tray.payload.ItemCode, seen); !ok {
		return e.fail(kind, scan, "")
	}
	p.added = append(p.added, scan.Raw)
	if len(p.added) < p.need {
		return Result{Outcome: OutcomeAwaiting, Message: "added " + strconv.Itoa(len(p.added)) + "/" + strconv.Itoa(p.need)}, nil
	}
	return e.finalizeReplace(p.old, p.new, p.tray, p.added, nil)
}

func (e *Engine) scanReplaceRemove(p *awaitingRemoved, scan barcode.Scan) (Result, error) {
	if !slices.Contains(p.tray.payload.ScannedProductBarcodes, scan.Raw) {
		return e.fail(KindNotInArtifact, scan, p.old.Code)
	}
	if slices.Contains(p.removed, scan.Raw) {
		return e.fail(KindDuplicate, scan, "already removed")
	}
	p.removed = append(p.removed, scan.Raw)
	if len(p.removed) < p.need {
		return Result{Outcome: OutcomeAwaiting, Message: "removed " + strconv.Itoa(len(p.removed)) + "/" + strconv.Itoa(p.need)}, nil
	}
	return e.finalizeReplace(p.old, p.new, p.tray, nil, p.removed)
}

// finalizeReplace rewrites the completed tray's log row under the new label.
// The row is located again inside the locked rewrite so rows appended during
// the replacement survive.
func (e *Engine) finalizeReplace(old, label *barcode.MasterLabel, tray historicalTray, added, removed []string) (Result, error) {
	oldCap := tray.capacity()
	newCap := label.Quantity
	if newCap <= 0 {
		newCap = e.opts.TraySize
	}
	if oldCap+len(added)-len(removed) != newCap {
		e.pending = awaitingOldLabel{}
		return e.fail(KindReplaceCountMismatch, barcode.Scan{Kind: barcode.KindMasterLabel, Raw: label.Code}, "")
	}

	stamp := tray.events[tray.index].TimestampText()
	good := make([]string, 0, len(tray.payload.ScannedProductBarcodes)+len(added))
	for _, code := range tray.payload.ScannedProductBarcodes {
		if !slices.Contains(removed, code) {
			good = append(good, code)
		}
	}
	good = append(good, added...)
	defective := len(tray.payload.DefectiveProductBarcodes)

	e.flushLog()
	err := e.log.Rewrite(tray.path, func(events []eventlog.Event) ([]eventlog.Event, error) {
		index := -1
		for i := len(events) - 1; i >= 0; i-- {
			if events[i].Kind == eventlog.KindTrayComplete && events[i].TimestampText() == stamp {
				if payload, ok := completedPayload(events[i]); ok && payload.MasterLabelCode == old.Code {
					index = i
					break
				}
			}
		}
		if index < 0 {
			return nil, errTrayRowChanged
		}
		mutated, err := events[index].WithDetails(func(fields map[string]any) {
			fields["master_label_code"] = label.Code
			if label.Phase != "" {
				fields["phs"] = label.Phase
			}
			if label.OutboundDate != "" {
				fields["outbound_date"] = label.OutboundDate
			}
			if len(label.Fields) > 0 {
				fields["master_label_fields"] = copyFields(label.Fields)
			}
			fields["tray_capacity"] = newCap
			fields["scanned_product_barcodes"] = good
			fields["good_count"] = len(good)
			fields["scan_count"] = len(good) + defective
		})
		if err != nil {
			return nil, err
		}
		events[index] = mutated
		return events, nil
	})
	switch {
	case errors.Is(err, errTrayRowChanged):
		e.pending = awaitingOldLabel{}
		return e.fail(KindNoHistoricalRecord, barcode.Scan{Kind: barcode.KindMasterLabel, Raw: old.Code}, "tray row changed during replacement")
	case err != nil:
		e.pending = nil
		logging.ErrorWithContext(e.logger, "historical tray rewrite failed", "replace_rewrite_failed",
			logging.String("path", tray.path),
			logging.String("old_master_label", old.Code),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the log folder and repeat the replacement"),
		)
		return Result{}, err
	}
	e.pending = nil

	if e.index != nil {
		ctx, cancel := e.ctx()
		if err := e.index.Relabel(ctx, tray.path, stamp, old.Code, label.Code, newCap, len(good)); err != nil {
			e.logger.Warn("tray index relabel failed", logging.Error(err))
		}
		cancel()
	}
	e.rollCompleted(e.now())
	if _, ok := e.completed[old.Code]; ok {
		delete(e.completed, old.Code)
		e.completed[label.Code] = struct{}{}
	}

	e.emit(eventlog.StreamInspection, eventlog.KindHistoricalReplaceSuccess, eventlog.Replace{
		OldMasterLabel: old.Code,
		NewMasterLabel: label.Code,
		LogFile:        tray.path,
		OldCapacity:    oldCap,
		NewCapacity:    newCap,
		Added:          slices.Clone(added),
		Removed:        slices.Clone(removed),
	})
	e.logger.Info("master label replaced",
		logging.String(logging.FieldEventType, "historical_replace"),
		logging.String("old_master_label", old.Code),
		logging.String("new_master_label", label.Code),
		logging.String("path", tray.path),
		logging.Int("added", len(added)),
		logging.Int("removed", len(removed)),
	)
	return Result{Outcome: OutcomeReplaced, Message: old.Code + " replaced by " + label.Code}, nil
}

// findCompleted locates the most recent TRAY_COMPLETE for code, asking the
// tray index first and then scanning every inspection log newest first.
func (e *Engine) findCompleted(code string) (historicalTray, bool, error) {
	e.flushLog()
	if e.index != nil {
		ctx, cancel := e.ctx()
		tray, ok, err := e.index.Locate(ctx, code)
		cancel()
		if err != nil {
			e.logger.Warn("tray index lookup failed", logging.Error(err))
		}
		if ok {
			if found, hit := e.searchFile(tray.LogPath, code); hit {
				return found, true, nil
			}
		}
	}
	files, err := e.log.Files(eventlog.StreamInspection, "")
	if err != nil {
		return historicalTray{}, false, fmt.Errorf("list inspection logs: %w", err)
	}
	for _, file := range files {
		if found, hit := e.searchFile(file.Path, code); hit {
			return found, true, nil
		}
	}
	return historicalTray{}, false, nil
}

func (e *Engine) searchFile(path, code string) (historicalTray, bool) {
	events, err := e.log.ReadFile(path)
	if err != nil {
		e.logger.Warn("inspection log unreadable", logging.String("path", path), logging.Error(err))
		return historicalTray{}, false
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind != eventlog.KindTrayComplete {
			continue
		}
		if payload, ok := completedPayload(events[i]); ok && payload.MasterLabelCode == code {
			return historicalTray{path: path, events: events, index: i, payload: payload}, true
		}
	}
	return historicalTray{}, false
}

func completedPayload(ev eventlog.Event) (eventlog.TrayComplete, bool) {
	var payload eventlog.TrayComplete
	if err := ev.Decode(&payload); err != nil {
		return payload, false
	}
	return payload, true
}

func (e *Engine) flushLog() {
	if e.log == nil {
		return
	}
	ctx, cancel := e.ctx()
	defer cancel()
	if err := e.log.Flush(ctx); err != nil {
		e.logger.Warn("event log flush failed", logging.Error(err))
	}
}
