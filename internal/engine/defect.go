package engine

import (
	"errors"
	"slices"
	"strconv"

	"qcstation/internal/artifacts"
	"qcstation/internal/barcode"
	"qcstation/internal/catalog"
	"qcstation/internal/eventlog"
	"qcstation/internal/failure"
	"qcstation/internal/logging"
	"qcstation/internal/session"
)

func (e *Engine) scanDefective(scan barcode.Scan) (Result, error) {
	if !e.merge.Active() {
		item, ok := e.defectItem(scan)
		if !ok {
			if scan.Kind == barcode.KindDefectLabel || scan.Kind == barcode.KindUnit || scan.Kind == barcode.KindMasterLabel {
				return e.fail(KindItemNotFound, scan, "no catalog item matches the scan")
			}
			return e.fail(KindUnknown, scan, "")
		}
		e.startMerge(item)
		if scan.Kind == barcode.KindMasterLabel {
			return Result{Outcome: OutcomeSessionStarted, Message: "defect box for " + item.Code}, nil
		}
	}

	switch scan.Kind {
	case barcode.KindMasterLabel:
		if scan.Master.ItemCode == e.merge.ItemCode {
			return Result{Outcome: OutcomeNotice, Message: "defect box already collecting " + e.merge.ItemCode}, nil
		}
		return e.fail(KindItemMismatch, scan, "defect box holds "+e.merge.ItemCode)
	case barcode.KindUnit:
		return e.addDefect(scan)
	case barcode.KindDefectLabel:
		return e.pourDefectBox(scan)
	default:
		return e.fail(KindUnknown, scan, "defective mode takes units and defect labels")
	}
}

// defectItem infers the merge item from the first scan.
func (e *Engine) defectItem(scan barcode.Scan) (catalog.Item, bool) {
	switch scan.Kind {
	case barcode.KindMasterLabel:
		return e.catalog.Lookup(scan.Master.ItemCode)
	case barcode.KindUnit:
		return e.catalog.FindInBarcode(scan.Raw)
	case barcode.KindDefectLabel:
		if scan.ItemCode != "" {
			if item, ok := e.catalog.Lookup(scan.ItemCode); ok {
				return item, true
			}
		}
		box, err := e.artifacts.Load(scan.ArtifactID)
		if err != nil {
			return catalog.Item{}, false
		}
		if item, ok := e.catalog.Lookup(box.ItemCode); ok {
			return item, true
		}
		return catalog.Item{Code: box.ItemCode, Name: box.ItemName, Spec: box.ItemSpec}, box.ItemCode != ""
	default:
		return catalog.Item{}, false
	}
}

func (e *Engine) startMerge(item catalog.Item) {
	e.merge = &session.DefectMerge{
		ItemCode:       item.Code,
		ItemName:       item.Name,
		ItemSpec:       item.Spec,
		TargetQuantity: e.defectTarget,
	}
	e.unprocessed = make(map[string]struct{})
	defects, err := e.Unprocessed(item.Code)
	if err != nil {
		e.logger.Warn("unprocessed defect discovery failed", logging.Error(err))
		return
	}
	for _, d := range defects {
		e.unprocessed[d.Barcode] = struct{}{}
	}
	e.logger.Info("defect box started",
		logging.String(logging.FieldEventType, "defect_merge_started"),
		logging.String("item_code", item.Code),
		logging.Int("target", e.defectTarget),
		logging.Int("unprocessed", len(e.unprocessed)),
	)
}

func (e *Engine) addDefect(scan barcode.Scan) (Result, error) {
	if kind, ok := e.validateUnit(scan.Raw, e.merge.ItemCode, e.merge.Contains); !ok {
		return e.fail(kind, scan, "")
	}
	if e.merge.Space() <= 0 {
		return e.fail(KindAlreadyFull, scan, "")
	}
	if _, known := e.unprocessed[scan.Raw]; !known {
		e.emit(eventlog.StreamInspection, eventlog.KindInspectionDefective, eventlog.Inspection{
			Barcode:    scan.Raw,
			DirectScan: true,
			ItemCode:   e.merge.ItemCode,
			ItemName:   e.merge.ItemName,
			ScanTime:   e.now().Format(eventlog.TimestampLayout),
		})
	}
	e.merge.ScannedDefects = append(e.merge.ScannedDefects, scan.Raw)
	if e.merge.Space() <= 0 {
		done, err := e.completeMerge(false)
		if err != nil {
			e.merge.ScannedDefects = e.merge.ScannedDefects[:len(e.merge.ScannedDefects)-1]
		}
		return done, err
	}
	return Result{Outcome: OutcomeAccepted, Message: mergeProgress(e.merge)}, nil
}

// pourDefectBox moves an existing defect box into the live one. Units past
// the target go into a new overflow box, written before anything else
// changes.
func (e *Engine) pourDefectBox(scan barcode.Scan) (Result, error) {
	box, kind, ok := e.loadBox(scan)
	if !ok {
		return e.fail(kind, scan, scan.ArtifactID)
	}
	if slices.Contains(e.merge.MergedBoxIDs, box.ID) {
		return e.fail(KindDuplicate, scan, "box already merged")
	}
	if box.ItemCode != e.merge.ItemCode {
		return e.fail(KindItemMismatch, scan, "box holds "+box.ItemCode)
	}
	for _, code := range box.Barcodes {
		if e.merge.Contains(code) {
			return e.fail(KindDuplicate, barcode.Scan{Kind: barcode.KindUnit, Raw: code}, "already in the defect box")
		}
	}
	space := e.merge.Space()
	if space <= 0 {
		return e.fail(KindAlreadyFull, scan, "")
	}

	res := Result{}
	take := box.Barcodes
	if len(take) > space {
		overflow, err := e.overflowDefectBox(box, space)
		if err != nil {
			return Result{}, err
		}
		res.Artifacts = append(res.Artifacts, overflow)
		take = box.Barcodes[:space]
	}
	scanned, merged := len(e.merge.ScannedDefects), len(e.merge.MergedBoxIDs)
	e.merge.ScannedDefects = append(e.merge.ScannedDefects, take...)
	e.merge.MergedBoxIDs = append(e.merge.MergedBoxIDs, box.ID)
	e.logger.Info("defect box poured",
		logging.String(logging.FieldEventType, "defect_box_merged"),
		logging.String("defect_box_id", box.ID),
		logging.Int("units", len(take)),
	)

	if e.merge.Space() <= 0 {
		done, err := e.completeMerge(false)
		if err != nil {
			// The split stays on disk; the source box now holds only the
			// units that fit, so rescanning its label retries the pour.
			e.merge.ScannedDefects = e.merge.ScannedDefects[:scanned]
			e.merge.MergedBoxIDs = e.merge.MergedBoxIDs[:merged]
			return Result{Artifacts: res.Artifacts}, err
		}
		done.Artifacts = append(res.Artifacts, done.Artifacts...)
		return done, err
	}
	res.Outcome = OutcomeAccepted
	res.Message = "merged " + box.ID + ", " + mergeProgress(e.merge)
	return res, nil
}

// overflowDefectBox moves the units of source past keep into a new box and
// rewrites source with the rest. Nothing changes if either write fails.
func (e *Engine) overflowDefectBox(source artifacts.Artifact, keep int) (artifacts.Artifact, error) {
	units := source.Barcodes[keep:]
	item := catalog.Item{Code: source.ItemCode, Name: source.ItemName, Spec: source.ItemSpec}
	if e.overflowItem != "" && e.overflowItem != source.ItemCode {
		if found, ok := e.catalog.Lookup(e.overflowItem); ok {
			item = found
		} else {
			item = catalog.Item{Code: e.overflowItem}
		}
	}
	overflow := &artifacts.Artifact{
		Kind:     artifacts.KindDefect,
		Worker:   e.opts.Worker,
		ItemCode: item.Code,
		ItemName: item.Name,
		ItemSpec: item.Spec,
		Barcodes: slices.Clone(units),
		SourceID: source.ID,
	}
	if err := e.artifacts.Create(overflow); err != nil {
		logging.WarnWithContext(e.logger, "overflow defect box not written", "overflow_defect_failed",
			logging.String("defect_box_id", source.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the artifact folder and rescan the box label"),
		)
		return artifacts.Artifact{}, err
	}
	rest := source
	rest.Barcodes = slices.Clone(source.Barcodes[:keep])
	rest.Quantity = keep
	if err := e.artifacts.Save(rest); err != nil {
		if derr := e.artifacts.Delete(overflow.ID); derr != nil {
			e.logger.Warn("overflow defect box not removed", logging.String("defect_box_id", overflow.ID), logging.Error(derr))
		}
		logging.WarnWithContext(e.logger, "split defect box not rewritten", "overflow_defect_failed",
			logging.String("defect_box_id", source.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the artifact folder and rescan the box label"),
		)
		return artifacts.Artifact{}, err
	}
	e.emit(eventlog.StreamDefectMerge, eventlog.KindDefectCreatedFromOverflow, artifactPayload(*overflow))
	return *overflow, nil
}

// completeMerge writes the defect box and deletes the boxes poured into it.
func (e *Engine) completeMerge(partial bool) (Result, error) {
	box := &artifacts.Artifact{
		Kind:     artifacts.KindDefect,
		Worker:   e.opts.Worker,
		ItemCode: e.merge.ItemCode,
		ItemName: e.merge.ItemName,
		ItemSpec: e.merge.ItemSpec,
		Barcodes: slices.Clone(e.merge.ScannedDefects),
		Partial:  partial,
	}
	if err := e.artifacts.Create(box); err != nil {
		logging.ErrorWithContext(e.logger, "defect box not written", "defect_box_failed",
			logging.String("item_code", e.merge.ItemCode),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the artifact folder and finish the box again"),
		)
		return Result{}, err
	}
	e.emit(eventlog.StreamDefectMerge, eventlog.KindDefectMergeComplete, artifactPayload(*box))
	for _, id := range e.merge.MergedBoxIDs {
		if err := e.artifacts.Delete(id); err != nil {
			logging.WarnWithContext(e.logger, "merged defect box not deleted", "defect_box_delete_failed",
				logging.String("defect_box_id", id),
				logging.Error(err),
				logging.String(logging.FieldImpact, "the source box still lists units now in "+box.ID),
			)
		}
	}
	res := Result{}
	for _, id := range e.merge.PartialBoxIDs {
		if updated, ok := e.settlePartialBox(id, box); ok {
			res.Artifacts = append(res.Artifacts, updated)
		}
	}
	for _, code := range box.Barcodes {
		delete(e.unprocessed, code)
	}
	e.logger.Info("defect box completed",
		logging.String(logging.FieldEventType, "defect_merge_complete"),
		logging.String("defect_box_id", box.ID),
		logging.Int("quantity", box.Quantity),
		logging.Bool("partial", partial),
	)
	e.merge = nil
	res.Outcome = OutcomeArtifactCreated
	res.Message = "defect box " + box.ID + " created"
	res.Artifacts = append([]artifacts.Artifact{*box}, res.Artifacts...)
	return res, nil
}

// settlePartialBox drops from box id the units now packed in done. A box
// left empty is deleted.
func (e *Engine) settlePartialBox(id string, done *artifacts.Artifact) (artifacts.Artifact, bool) {
	source, err := e.artifacts.Load(id)
	if err != nil {
		e.logger.Warn("partly poured defect box unreadable", logging.String("defect_box_id", id), logging.Error(err))
		return artifacts.Artifact{}, false
	}
	remaining := slices.DeleteFunc(slices.Clone(source.Barcodes), func(code string) bool {
		return slices.Contains(done.Barcodes, code)
	})
	if len(remaining) == 0 {
		if err := e.artifacts.Delete(id); err != nil {
			e.logger.Warn("emptied defect box not deleted", logging.String("defect_box_id", id), logging.Error(err))
		}
		return artifacts.Artifact{}, false
	}
	if len(remaining) == len(source.Barcodes) {
		return artifacts.Artifact{}, false
	}
	source.Barcodes = remaining
	source.Quantity = len(remaining)
	if err := e.artifacts.Save(source); err != nil {
		logging.WarnWithContext(e.logger, "partly poured defect box not updated", "defect_box_update_failed",
			logging.String("defect_box_id", id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the source box still lists units now in "+done.ID),
		)
		return artifacts.Artifact{}, false
	}
	return source, true
}

// undoDefect takes the last unit out of the live box. A unit poured from a
// stored box goes back to that box; a direct scan is retracted in the log.
func (e *Engine) undoDefect() (Result, error) {
	if e.merge == nil || len(e.merge.ScannedDefects) == 0 {
		return Result{}, scanErr(KindUnknown, "", "defect box is empty")
	}
	last := e.merge.ScannedDefects[len(e.merge.ScannedDefects)-1]
	id, poured, err := e.pouredFrom(last)
	if err != nil {
		return Result{}, err
	}
	switch {
	case poured:
		e.merge.MergedBoxIDs = slices.DeleteFunc(e.merge.MergedBoxIDs, func(v string) bool { return v == id })
		if !slices.Contains(e.merge.PartialBoxIDs, id) {
			e.merge.PartialBoxIDs = append(e.merge.PartialBoxIDs, id)
		}
	default:
		if _, known := e.unprocessed[last]; !known {
			e.emit(eventlog.StreamInspection, eventlog.KindInspectionUndo, eventlog.Undo{
				Barcode: last,
				Status:  string(session.StatusDefective),
			})
		}
	}
	e.merge.ScannedDefects = e.merge.ScannedDefects[:len(e.merge.ScannedDefects)-1]
	return Result{Outcome: OutcomeAccepted, Message: "removed " + last}, nil
}

// pouredFrom finds the stored box, fully or partly poured into the live one,
// that lists code.
func (e *Engine) pouredFrom(code string) (string, bool, error) {
	for _, id := range slices.Concat(e.merge.MergedBoxIDs, e.merge.PartialBoxIDs) {
		box, err := e.artifacts.Load(id)
		if errors.Is(err, failure.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", false, scanErr(KindArtifactReadError, id, err.Error())
		}
		if slices.Contains(box.Barcodes, code) {
			return id, true, nil
		}
	}
	return "", false, nil
}

// FinishDefect closes the live defect box before it reaches the target.
func (e *Engine) FinishDefect() (Result, error) {
	e.markActivity(e.now())
	if e.mode != ModeDefective || e.merge == nil || len(e.merge.ScannedDefects) == 0 {
		return Result{}, scanErr(KindUnknown, "", "defect box is empty")
	}
	return e.completeMerge(e.merge.Space() > 0)
}

// SetDefectTarget changes the defect box size. A live box already at the new
// target is completed.
func (e *Engine) SetDefectTarget(n int) (Result, error) {
	if n <= 0 {
		return Result{}, scanErr(KindUnknown, "", "target must be positive")
	}
	if e.merge != nil && len(e.merge.ScannedDefects) > n {
		return Result{}, scanErr(KindAlreadyFull, "", "box already holds "+strconv.Itoa(len(e.merge.ScannedDefects)))
	}
	e.defectTarget = n
	if e.merge == nil {
		return Result{Outcome: OutcomeNotice, Message: "defect target " + strconv.Itoa(n)}, nil
	}
	e.merge.TargetQuantity = n
	if e.merge.Space() == 0 {
		return e.completeMerge(false)
	}
	return Result{Outcome: OutcomeNotice, Message: mergeProgress(e.merge)}, nil
}

// SetOverflowItem sets the item code given to overflow defect boxes. An
// empty code keeps the source box's item.
func (e *Engine) SetOverflowItem(code string) error {
	if code != "" {
		if _, ok := e.catalog.Lookup(code); !ok {
			return scanErr(KindItemNotFound, code, "")
		}
	}
	e.overflowItem = code
	return nil
}

func mergeProgress(m *session.DefectMerge) string {
	return m.ItemCode + " defects " + strconv.Itoa(len(m.ScannedDefects)) + "/" + strconv.Itoa(m.TargetQuantity)
}
