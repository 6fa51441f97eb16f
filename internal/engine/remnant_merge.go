package engine

import (
	"errors"
	"slices"
	"strconv"

	"qcstation/internal/artifacts"
	"qcstation/internal/barcode"
	"qcstation/internal/eventlog"
	"qcstation/internal/failure"
	"qcstation/internal/logging"
	"qcstation/internal/session"
)

// loadBox reads the artifact a label points at, mapping store errors to the
// operator-facing kinds.
func (e *Engine) loadBox(scan barcode.Scan) (artifacts.Artifact, ErrorKind, bool) {
	box, err := e.artifacts.Load(scan.ArtifactID)
	switch {
	case err == nil:
		return box, 0, true
	case errors.Is(err, failure.ErrNotFound):
		return box, KindRemnantNotFound, false
	default:
		e.logger.Warn("box record unreadable",
			logging.String("artifact_id", scan.ArtifactID),
			logging.Error(err),
		)
		return box, KindArtifactReadError, false
	}
}

func (e *Engine) scanRemnantLabel(scan barcode.Scan) (Result, error) {
	box, kind, ok := e.loadBox(scan)
	if !ok {
		return e.fail(kind, scan, scan.ArtifactID)
	}
	if box.ItemCode != e.session.ItemCode {
		return e.fail(KindItemMismatch, scan, "remnant holds "+box.ItemCode)
	}
	if slices.Contains(e.session.ConsumedRemnantIDs, box.ID) || slices.Contains(e.session.PendingRemnantIDs, box.ID) {
		return e.fail(KindDuplicate, scan, "remnant already merged into this tray")
	}
	space := e.session.Space()
	if space <= 0 {
		return e.fail(KindAlreadyFull, scan, "")
	}
	if len(box.Barcodes) <= space {
		e.pending = awaitingRemnantConfirm{box: box}
	} else {
		e.pending = awaitingOverflowChoice{box: box, space: space}
	}
	return Result{Outcome: OutcomePrompt, Prompt: e.promptFor(e.pending)}, nil
}

// checkUnits validates a batch of remnant units against the live tray before
// any of them are recorded.
func (e *Engine) checkUnits(barcodes []string) (string, ErrorKind, bool) {
	seen := make(map[string]struct{}, len(barcodes))
	contains := func(raw string) bool {
		if _, dup := seen[raw]; dup {
			return true
		}
		return e.session.Contains(raw)
	}
	for _, raw := range barcodes {
		if kind, ok := e.validateUnit(raw, e.session.ItemCode, contains); !ok {
			return raw, kind, false
		}
		seen[raw] = struct{}{}
	}
	if len(barcodes) > e.session.Space() {
		return "", KindAlreadyFull, false
	}
	return "", 0, true
}

// mergeRemnant records barcodes from box as good units and marks the box
// consumed. The box file is deleted when the tray completes.
func (e *Engine) mergeRemnant(box artifacts.Artifact, barcodes, excluded []string) (Result, error) {
	if raw, kind, ok := e.checkUnits(barcodes); !ok {
		return e.fail(kind, barcode.Scan{Kind: barcode.KindUnit, Raw: raw}, "remnant "+box.ID)
	}
	now := e.now()
	for _, raw := range barcodes {
		if err := e.session.Add(raw, session.StatusGood, now); err != nil {
			return e.fail(KindDuplicate, barcode.Scan{Kind: barcode.KindUnit, Raw: raw}, "remnant "+box.ID)
		}
	}
	e.session.ConsumedRemnantIDs = append(e.session.ConsumedRemnantIDs, box.ID)
	e.session.IsRemnantSession = true
	e.persist()
	for _, raw := range barcodes {
		e.emit(eventlog.StreamInspection, eventlog.KindInspectionGood, eventlog.Inspection{
			Barcode:         raw,
			MasterLabelCode: e.session.MasterLabelCode,
			ItemCode:        e.session.ItemCode,
			ScanTime:        now.Format(eventlog.TimestampLayout),
			RemnantID:       box.ID,
		})
	}
	e.emit(eventlog.StreamInspection, eventlog.KindRemnantConsumed, eventlog.RemnantConsumed{
		RemnantID:       box.ID,
		MasterLabelCode: e.session.MasterLabelCode,
		Barcodes:        slices.Clone(barcodes),
		Quantity:        len(barcodes),
		Excluded:        slices.Clone(excluded),
	})
	e.logger.Info("remnant merged",
		logging.String(logging.FieldEventType, "remnant_consumed"),
		logging.String("remnant_id", box.ID),
		logging.String(logging.FieldMasterLabel, e.session.MasterLabelCode),
		logging.Int("units", len(barcodes)),
	)

	res := Result{Outcome: OutcomeAccepted, Message: "merged " + box.ID + ", " + progress(e.session)}
	if e.session.Full() {
		done, err := e.completeSession()
		return done, err
	}
	return res, nil
}

// fillFromRemnant marks box as partly drawn. The operator scans the units
// taken from it one by one; they leave the box when the tray completes.
func (e *Engine) fillFromRemnant(box artifacts.Artifact, space int) (Result, error) {
	e.session.PendingRemnantIDs = append(e.session.PendingRemnantIDs, box.ID)
	e.persist()
	return Result{
		Outcome: OutcomeAwaiting,
		Message: "scan the " + strconv.Itoa(space) + " units taken from " + box.ID,
	}, nil
}

func (e *Engine) scanExclusion(p *excludingOverflow, scan barcode.Scan) (Result, error) {
	raw := scan.Raw
	if !slices.Contains(p.box.Barcodes, raw) {
		return e.fail(KindNotInArtifact, scan, p.box.ID)
	}
	if slices.Contains(p.excluded, raw) {
		return e.fail(KindDuplicate, scan, "already excluded")
	}
	p.excluded = append(p.excluded, raw)
	if len(p.excluded) < p.need {
		return Result{
			Outcome: OutcomeAwaiting,
			Message: "excluded " + strconv.Itoa(len(p.excluded)) + "/" + strconv.Itoa(p.need),
		}, nil
	}

	included := make([]string, 0, len(p.box.Barcodes)-len(p.excluded))
	for _, code := range p.box.Barcodes {
		if !slices.Contains(p.excluded, code) {
			included = append(included, code)
		}
	}
	if raw, kind, ok := e.checkUnits(included); !ok {
		e.pending = nil
		return e.fail(kind, barcode.Scan{Kind: barcode.KindUnit, Raw: raw}, "remnant "+p.box.ID)
	}

	overflow := &artifacts.Artifact{
		Kind:     artifacts.KindRemnant,
		Worker:   e.opts.Worker,
		ItemCode: p.box.ItemCode,
		ItemName: p.box.ItemName,
		ItemSpec: p.box.ItemSpec,
		Barcodes: slices.Clone(p.excluded),
		SourceID: p.box.ID,
	}
	if err := e.artifacts.Create(overflow); err != nil {
		p.excluded = p.excluded[:len(p.excluded)-1]
		logging.WarnWithContext(e.logger, "overflow remnant not written", "overflow_remnant_failed",
			logging.String("remnant_id", p.box.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the artifact folder and rescan the last unit"),
		)
		return Result{}, err
	}
	e.emit(eventlog.StreamInspection, eventlog.KindRemnantCreatedFromOverflow, artifactPayload(*overflow))
	e.pending = nil

	res, err := e.mergeRemnant(p.box, included, p.excluded)
	res.Artifacts = append([]artifacts.Artifact{*overflow}, res.Artifacts...)
	return res, err
}

// settlePartialRemnants removes units drawn by fill-needed merges from their
// boxes. A box left empty is deleted.
func (e *Engine) settlePartialRemnants(s *session.Inspection) []artifacts.Artifact {
	var updated []artifacts.Artifact
	for _, id := range s.PendingRemnantIDs {
		box, err := e.artifacts.Load(id)
		if err != nil {
			e.logger.Warn("partly drawn remnant unreadable", logging.String("remnant_id", id), logging.Error(err))
			continue
		}
		var drawn, remaining []string
		for _, code := range box.Barcodes {
			if s.Contains(code) {
				drawn = append(drawn, code)
			} else {
				remaining = append(remaining, code)
			}
		}
		if len(drawn) == 0 {
			continue
		}
		s.IsRemnantSession = true
		if len(remaining) == 0 {
			s.ConsumedRemnantIDs = append(s.ConsumedRemnantIDs, id)
		} else {
			box.Barcodes = remaining
			box.Quantity = len(remaining)
			if err := e.artifacts.Save(box); err != nil {
				logging.WarnWithContext(e.logger, "partly drawn remnant not updated", "remnant_update_failed",
					logging.String("remnant_id", id),
					logging.Error(err),
					logging.String(logging.FieldImpact, "the remnant record still lists drawn units"),
				)
			} else {
				updated = append(updated, box)
			}
		}
		e.emit(eventlog.StreamInspection, eventlog.KindRemnantConsumed, eventlog.RemnantConsumed{
			RemnantID:       id,
			MasterLabelCode: s.MasterLabelCode,
			Barcodes:        drawn,
			Quantity:        len(drawn),
		})
	}
	s.PendingRemnantIDs = nil
	return updated
}

func artifactPayload(a artifacts.Artifact) eventlog.Artifact {
	return eventlog.Artifact{
		ID:           a.ID,
		SourceID:     a.SourceID,
		CreationDate: a.CreationDate.Format(artifacts.CreationLayout),
		ItemCode:     a.ItemCode,
		ItemName:     a.ItemName,
		ItemSpec:     a.ItemSpec,
		Barcodes:     slices.Clone(a.Barcodes),
		Quantity:     a.Quantity,
		Partial:      a.Partial,
	}
}

// returnToRemnant moves the consumed remnant that lists code back to the
// partly drawn set, so the box keeps code when the tray completes.
func (e *Engine) returnToRemnant(code string) error {
	for _, id := range e.session.ConsumedRemnantIDs {
		box, err := e.artifacts.Load(id)
		if errors.Is(err, failure.ErrNotFound) {
			continue
		}
		if err != nil {
			return scanErr(KindArtifactReadError, id, err.Error())
		}
		if !slices.Contains(box.Barcodes, code) {
			continue
		}
		e.session.ConsumedRemnantIDs = slices.DeleteFunc(e.session.ConsumedRemnantIDs, func(v string) bool { return v == id })
		e.session.PendingRemnantIDs = append(e.session.PendingRemnantIDs, id)
		return nil
	}
	return nil
}
