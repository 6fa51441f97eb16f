package engine

import (
	"strconv"

	"qcstation/internal/artifacts"
	"qcstation/internal/barcode"
	"qcstation/internal/catalog"
	"qcstation/internal/eventlog"
	"qcstation/internal/logging"
	"qcstation/internal/session"
)

func (e *Engine) scanRemnantMode(scan barcode.Scan) (Result, error) {
	switch scan.Kind {
	case barcode.KindMasterLabel:
		item, ok := e.catalog.Lookup(scan.Master.ItemCode)
		if !ok {
			return e.fail(KindItemNotFound, scan, scan.Master.ItemCode)
		}
		if e.remnant.Active() {
			if e.remnant.ItemCode == item.Code {
				return Result{Outcome: OutcomeNotice, Message: "remnant box already packing " + item.Code}, nil
			}
			if len(e.remnant.ScannedBarcodes) > 0 {
				return e.fail(KindItemMismatch, scan, "remnant box holds "+e.remnant.ItemCode)
			}
		}
		e.startRemnant(item)
		return Result{Outcome: OutcomeSessionStarted, Message: "packing remnant of " + item.Code}, nil
	case barcode.KindUnit:
		if !e.remnant.Active() {
			item, ok := e.catalog.FindInBarcode(scan.Raw)
			if !ok {
				return e.fail(KindItemNotFound, scan, "no catalog item matches the unit")
			}
			e.startRemnant(item)
		}
		if kind, ok := e.validateUnit(scan.Raw, e.remnant.ItemCode, e.remnant.Contains); !ok {
			return e.fail(kind, scan, "")
		}
		e.remnant.ScannedBarcodes = append(e.remnant.ScannedBarcodes, scan.Raw)
		return Result{
			Outcome: OutcomeAccepted,
			Message: e.remnant.ItemCode + " remnant " + strconv.Itoa(len(e.remnant.ScannedBarcodes)),
		}, nil
	default:
		return e.fail(KindUnknown, scan, "remnant mode takes a master label and units")
	}
}

func (e *Engine) startRemnant(item catalog.Item) {
	e.remnant = &session.Remnant{ItemCode: item.Code, ItemName: item.Name, ItemSpec: item.Spec}
}

// FinishRemnant writes the packed remnant box and its label.
func (e *Engine) FinishRemnant() (Result, error) {
	e.markActivity(e.now())
	if e.mode != ModeRemnant || e.remnant == nil || len(e.remnant.ScannedBarcodes) == 0 {
		return Result{}, scanErr(KindUnknown, "", "remnant box is empty")
	}
	box := &artifacts.Artifact{
		Kind:     artifacts.KindRemnant,
		Worker:   e.opts.Worker,
		ItemCode: e.remnant.ItemCode,
		ItemName: e.remnant.ItemName,
		ItemSpec: e.remnant.ItemSpec,
		Barcodes: append([]string(nil), e.remnant.ScannedBarcodes...),
	}
	if err := e.artifacts.Create(box); err != nil {
		return Result{}, err
	}
	e.emit(eventlog.StreamInspection, eventlog.KindRemnantCreated, artifactPayload(*box))
	e.logger.Info("remnant box created",
		logging.String(logging.FieldEventType, "remnant_created"),
		logging.String("remnant_id", box.ID),
		logging.Int("quantity", box.Quantity),
	)
	e.remnant = nil
	return Result{
		Outcome:   OutcomeArtifactCreated,
		Message:   "remnant " + box.ID + " created",
		Artifacts: []artifacts.Artifact{*box},
	}, nil
}
