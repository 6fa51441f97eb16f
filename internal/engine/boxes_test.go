package engine_test

import (
	"errors"
	"slices"
	"strconv"
	"testing"

	"qcstation/internal/artifacts"
	"qcstation/internal/engine"
	"qcstation/internal/eventlog"
)

const remnantID = "SPARE-20261014-080000000001"

func remnantLabel(id string, qty int) string {
	return `{"id":"` + id + `","code":"` + itemCode + `","qty":` + strconv.Itoa(qty) + `}`
}

func TestRemnantMergeFitsExactly(t *testing.T) {
	h := newHarness(t)
	h.artifacts.put(artifacts.KindRemnant, remnantID, unit(3))
	h.mustScan(master(3))
	h.mustScan(unit(1))
	h.mustScan(unit(2))

	res := h.mustScan(remnantLabel(remnantID, 1))
	if res.Outcome != engine.OutcomePrompt || !slices.Equal(res.Prompt.Choices, []engine.Choice{engine.ChoiceYes, engine.ChoiceNo}) {
		t.Fatalf("result = %+v, want confirm prompt", res)
	}
	res, err := h.engine.Answer(engine.ChoiceYes)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if res.Outcome != engine.OutcomeCompleted || len(res.Completed) != 1 {
		t.Fatalf("result = %+v", res)
	}
	tray := res.Completed[0]
	if !slices.Equal(tray.ConsumedRemnantIDs, []string{remnantID}) || !tray.IsRemnantSession {
		t.Fatalf("consumed = %v, remnant session = %v", tray.ConsumedRemnantIDs, tray.IsRemnantSession)
	}
	if _, ok := h.artifacts.boxes[remnantID]; ok {
		t.Fatal("consumed remnant not deleted")
	}
	kinds := h.log.kinds(eventlog.StreamInspection, today())
	if !slices.Contains(kinds, eventlog.KindRemnantConsumed) {
		t.Fatalf("events = %v", kinds)
	}
}

func TestRemnantLabelChecks(t *testing.T) {
	h := newHarness(t)
	h.artifacts.boxes["SPARE-20261014-080000000002"] = artifacts.Artifact{
		Kind:     artifacts.KindRemnant,
		ID:       "SPARE-20261014-080000000002",
		ItemCode: "XYZ0000000002",
		Barcodes: []string{"X-XYZ0000000002-001"},
		Quantity: 1,
	}
	h.mustScan(master(3))
	if _, err := h.scan("SPARE-20261014-089999999999"); !errors.Is(err, engine.ErrRemnantNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	if _, err := h.scan("SPARE-20261014-080000000002"); !errors.Is(err, engine.ErrItemMismatch) {
		t.Fatalf("mismatch err = %v", err)
	}
}

func TestRemnantMergeDeclined(t *testing.T) {
	h := newHarness(t)
	h.artifacts.put(artifacts.KindRemnant, remnantID, unit(3))
	h.mustScan(master(3))
	h.mustScan(remnantLabel(remnantID, 1))
	res, err := h.engine.Answer(engine.ChoiceNo)
	if err != nil || res.Outcome != engine.OutcomeNotice {
		t.Fatalf("result = %+v, %v", res, err)
	}
	if h.engine.State().Session.Filled() != 0 {
		t.Fatal("declined merge recorded units")
	}
}

func TestRemnantOverflowExclude(t *testing.T) {
	h := newHarness(t)
	h.artifacts.put(artifacts.KindRemnant, remnantID, unit(11), unit(12), unit(13), unit(14))
	h.mustScan(master(4))
	h.mustScan(unit(1))
	h.mustScan(unit(2))

	res := h.mustScan(remnantLabel(remnantID, 4))
	if res.Outcome != engine.OutcomePrompt || len(res.Prompt.Choices) != 3 {
		t.Fatalf("result = %+v, want overflow prompt", res)
	}
	if res, err := h.engine.Answer(engine.ChoiceExclude); err != nil || res.Outcome != engine.OutcomeAwaiting {
		t.Fatalf("answer = %+v, %v", res, err)
	}
	if view := h.engine.State(); view.Pending != "excluding_overflow" || view.Needed != 2 {
		t.Fatalf("view = %+v", view)
	}
	if _, err := h.scan(unit(99)); !errors.Is(err, engine.ErrNotInArtifact) {
		t.Fatalf("foreign unit err = %v", err)
	}
	h.mustScan(unit(11))
	if _, err := h.scan(unit(11)); !errors.Is(err, engine.ErrDuplicate) {
		t.Fatalf("repeat exclusion err = %v", err)
	}
	res = h.mustScan(unit(12))
	if res.Outcome != engine.OutcomeCompleted || len(res.Completed) != 1 {
		t.Fatalf("result = %+v", res)
	}
	want := []string{unit(1), unit(2), unit(13), unit(14)}
	if got := res.Completed[0].ScannedProductBarcodes; !slices.Equal(got, want) {
		t.Fatalf("goods = %v, want %v", got, want)
	}
	if len(res.Artifacts) == 0 {
		t.Fatal("overflow box not returned")
	}
	overflow := res.Artifacts[0]
	if !slices.Equal(overflow.Barcodes, []string{unit(11), unit(12)}) || overflow.SourceID != remnantID {
		t.Fatalf("overflow = %+v", overflow)
	}
	if _, ok := h.artifacts.boxes[remnantID]; ok {
		t.Fatal("original remnant not deleted")
	}
	if len(h.artifacts.boxes) != 1 {
		t.Fatalf("boxes = %d, want only the overflow", len(h.artifacts.boxes))
	}
	kinds := h.log.kinds(eventlog.StreamInspection, today())
	if !slices.Contains(kinds, eventlog.KindRemnantCreatedFromOverflow) {
		t.Fatalf("events = %v", kinds)
	}
}

func TestRemnantOverflowFillNeeded(t *testing.T) {
	h := newHarness(t)
	h.artifacts.put(artifacts.KindRemnant, remnantID, unit(21), unit(22), unit(23))
	h.mustScan(master(3))
	h.mustScan(unit(1))
	h.mustScan(remnantLabel(remnantID, 3))
	if res, err := h.engine.Answer(engine.ChoiceFill); err != nil || res.Outcome != engine.OutcomeAwaiting {
		t.Fatalf("answer = %+v, %v", res, err)
	}
	h.mustScan(unit(21))
	res := h.mustScan(unit(22))
	if res.Outcome != engine.OutcomeCompleted {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	box, ok := h.artifacts.boxes[remnantID]
	if !ok {
		t.Fatal("partly drawn remnant deleted")
	}
	if !slices.Equal(box.Barcodes, []string{unit(23)}) || box.Quantity != 1 {
		t.Fatalf("remaining box = %+v", box)
	}
	var consumed eventlog.RemnantConsumed
	h.log.last(t, eventlog.StreamInspection, today(), eventlog.KindRemnantConsumed, &consumed)
	if !slices.Equal(consumed.Barcodes, []string{unit(21), unit(22)}) {
		t.Fatalf("consumed = %+v", consumed)
	}
}

func TestExclusionCancelled(t *testing.T) {
	h := newHarness(t)
	h.artifacts.put(artifacts.KindRemnant, remnantID, unit(11), unit(12), unit(13), unit(14))
	h.mustScan(master(2))
	h.mustScan(remnantLabel(remnantID, 4))
	if _, err := h.engine.Answer(engine.ChoiceExclude); err != nil {
		t.Fatal(err)
	}
	h.mustScan(unit(11))
	before := len(h.log.kinds(eventlog.StreamInspection, today()))
	if _, err := h.engine.Cancel(); err != nil {
		t.Fatal(err)
	}
	if len(h.log.kinds(eventlog.StreamInspection, today())) != before {
		t.Fatal("exclusion cancel wrote an event")
	}
	if view := h.engine.State(); view.Pending != "" || view.Session.Filled() != 0 {
		t.Fatalf("view after cancel = %+v", view)
	}
	if _, ok := h.artifacts.boxes[remnantID]; !ok {
		t.Fatal("remnant touched by cancelled exclusion")
	}
}

func TestDefectiveAutoStartAndComplete(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.SetMode(engine.ModeDefective); err != nil {
		t.Fatal(err)
	}
	first := h.mustScan(unit(900))
	if first.Outcome != engine.OutcomeAccepted {
		t.Fatalf("first outcome = %v", first.Outcome)
	}
	merge := h.engine.State().Merge
	if merge == nil || merge.ItemCode != itemCode || merge.TargetQuantity != 48 {
		t.Fatalf("merge = %+v", merge)
	}
	var last engine.Result
	for i := 1; i < 48; i++ {
		last = h.mustScan(unit(i))
	}
	if last.Outcome != engine.OutcomeArtifactCreated || len(last.Artifacts) != 1 {
		t.Fatalf("last result = %+v", last)
	}
	box := last.Artifacts[0]
	if box.Kind != artifacts.KindDefect || box.Quantity != 48 || box.Partial {
		t.Fatalf("box = %+v", box)
	}
	if h.engine.State().Merge != nil {
		t.Fatal("merge session not cleared")
	}
	kinds := h.log.kinds(eventlog.StreamDefectMerge, today())
	if !slices.Equal(kinds, []eventlog.Kind{eventlog.KindDefectMergeComplete}) {
		t.Fatalf("defect events = %v", kinds)
	}
	var direct eventlog.Inspection
	h.log.last(t, eventlog.StreamInspection, today(), eventlog.KindInspectionDefective, &direct)
	if !direct.DirectScan {
		t.Fatal("direct scan flag missing")
	}
}

func TestDefectiveKnownUnitIsNotReRecorded(t *testing.T) {
	h := newHarness(t)
	h.mustScan(master(1))
	if _, err := h.defect(unit(1)); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.SetMode(engine.ModeDefective); err != nil {
		t.Fatal(err)
	}
	before := len(h.log.kinds(eventlog.StreamInspection, today()))
	h.mustScan(unit(1))
	if got := len(h.log.kinds(eventlog.StreamInspection, today())); got != before {
		t.Fatalf("known defect re-recorded: %d events, want %d", got, before)
	}
}

func TestDefectBoxOverflowSplits(t *testing.T) {
	h := newHarness(t)
	const source = "DEFECT-20261014-080000000001"
	h.artifacts.put(artifacts.KindDefect, source, unit(31), unit(32), unit(33), unit(34))
	if err := h.engine.SetMode(engine.ModeDefective); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.SetDefectTarget(3); err != nil {
		t.Fatal(err)
	}
	h.mustScan(unit(1))
	res := h.mustScan(source)
	if res.Outcome != engine.OutcomeArtifactCreated || len(res.Artifacts) != 2 {
		t.Fatalf("result = %+v", res)
	}
	overflow, main := res.Artifacts[0], res.Artifacts[1]
	if overflow.Quantity != 2 || overflow.SourceID != source {
		t.Fatalf("overflow = %+v", overflow)
	}
	if main.Quantity != 3 || !slices.Equal(main.Barcodes, []string{unit(1), unit(31), unit(32)}) {
		t.Fatalf("main = %+v", main)
	}
	if _, ok := h.artifacts.boxes[source]; ok {
		t.Fatal("merged source box not deleted")
	}
	want := []eventlog.Kind{eventlog.KindDefectCreatedFromOverflow, eventlog.KindDefectMergeComplete}
	if got := h.log.kinds(eventlog.StreamDefectMerge, today()); !slices.Equal(got, want) {
		t.Fatalf("defect events = %v, want %v", got, want)
	}
}

func TestDefectOverflowUsesChosenItem(t *testing.T) {
	h := newHarness(t)
	const source = "DEFECT-20261014-080000000001"
	h.artifacts.put(artifacts.KindDefect, source, unit(31), unit(32), unit(33))
	if err := h.engine.SetMode(engine.ModeDefective); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.SetOverflowItem("QQQ0000000009"); !errors.Is(err, engine.ErrItemNotFound) {
		t.Fatalf("unknown overflow item err = %v", err)
	}
	if err := h.engine.SetOverflowItem("XYZ0000000002"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.SetDefectTarget(2); err != nil {
		t.Fatal(err)
	}
	res := h.mustScan(source)
	if len(res.Artifacts) != 2 || res.Artifacts[0].ItemCode != "XYZ0000000002" {
		t.Fatalf("artifacts = %+v", res.Artifacts)
	}
}

func TestFinishDefectWritesPartialBox(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.SetMode(engine.ModeDefective); err != nil {
		t.Fatal(err)
	}
	h.mustScan(unit(1))
	h.mustScan(unit(2))
	if _, err := h.scan(unit(2)); !errors.Is(err, engine.ErrDuplicate) {
		t.Fatalf("duplicate err = %v", err)
	}
	res, err := h.engine.FinishDefect()
	if err != nil {
		t.Fatal(err)
	}
	if box := res.Artifacts[0]; !box.Partial || box.Quantity != 2 {
		t.Fatalf("box = %+v", box)
	}
}

func TestUnprocessedDefects(t *testing.T) {
	h := newHarness(t)
	h.mustScan(master(10))
	for i := 1; i <= 4; i++ {
		if _, err := h.defect(unit(i)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := h.engine.Undo(); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Reset(); err != nil {
		t.Fatal(err)
	}
	h.artifacts.put(artifacts.KindDefect, "DEFECT-20261014-080000000001", unit(3))
	if err := h.engine.SetMode(engine.ModeRework); err != nil {
		t.Fatal(err)
	}
	h.mustScan(unit(2))

	defects, err := engine.Unprocessed(h.log, h.artifacts, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(defects) != 1 || defects[0].Barcode != unit(1) {
		t.Fatalf("defects = %+v, want only %s", defects, unit(1))
	}
	filtered, err := engine.Unprocessed(h.log, h.artifacts, "XYZ")
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 0 {
		t.Fatalf("filtered = %+v", filtered)
	}
}

func TestUndoReturnsUnitToRemnant(t *testing.T) {
	h := newHarness(t)
	h.artifacts.put(artifacts.KindRemnant, remnantID, unit(11), unit(12))
	h.mustScan(master(4))
	h.mustScan(unit(1))
	h.mustScan(remnantLabel(remnantID, 2))
	if _, err := h.engine.Answer(engine.ChoiceYes); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	s := h.engine.State().Session
	if len(s.ConsumedRemnantIDs) != 0 || !slices.Equal(s.PendingRemnantIDs, []string{remnantID}) {
		t.Fatalf("consumed = %v, pending = %v", s.ConsumedRemnantIDs, s.PendingRemnantIDs)
	}
	h.mustScan(unit(2))
	res := h.mustScan(unit(3))
	if res.Outcome != engine.OutcomeCompleted || len(res.Completed) != 1 {
		t.Fatalf("result = %+v", res)
	}
	want := []string{unit(1), unit(11), unit(2), unit(3)}
	if got := res.Completed[0].ScannedProductBarcodes; !slices.Equal(got, want) {
		t.Fatalf("goods = %v, want %v", got, want)
	}
	box, ok := h.artifacts.boxes[remnantID]
	if !ok {
		t.Fatal("remnant holding the undone unit was deleted")
	}
	if !slices.Equal(box.Barcodes, []string{unit(12)}) || box.Quantity != 1 {
		t.Fatalf("remnant = %+v", box)
	}
}

func TestUndoReturnsUnitToDefectBox(t *testing.T) {
	h := newHarness(t)
	const source = "DEFECT-20261014-080000000001"
	h.artifacts.put(artifacts.KindDefect, source, unit(31), unit(32))
	if err := h.engine.SetMode(engine.ModeDefective); err != nil {
		t.Fatal(err)
	}
	h.mustScan(source)
	if _, err := h.engine.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	res, err := h.engine.FinishDefect()
	if err != nil {
		t.Fatal(err)
	}
	if box := res.Artifacts[0]; !slices.Equal(box.Barcodes, []string{unit(31)}) {
		t.Fatalf("new box = %+v", box)
	}
	left, ok := h.artifacts.boxes[source]
	if !ok {
		t.Fatal("source box holding the undone unit was deleted")
	}
	if !slices.Equal(left.Barcodes, []string{unit(32)}) || left.Quantity != 1 {
		t.Fatalf("source = %+v", left)
	}
}

func TestUndoDirectDefectIsRetracted(t *testing.T) {
	h := newHarness(t)
	if err := h.engine.SetMode(engine.ModeDefective); err != nil {
		t.Fatal(err)
	}
	h.mustScan(unit(5))
	h.mustScan(unit(6))
	if _, err := h.engine.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	var undo eventlog.Undo
	h.log.last(t, eventlog.StreamInspection, today(), eventlog.KindInspectionUndo, &undo)
	if undo.Barcode != unit(6) || undo.Status != "defective" {
		t.Fatalf("undo payload = %+v", undo)
	}
	defects, err := h.engine.Unprocessed(itemCode)
	if err != nil {
		t.Fatal(err)
	}
	if len(defects) != 1 || defects[0].Barcode != unit(5) {
		t.Fatalf("defects = %+v, want only %s", defects, unit(5))
	}
}

func TestPourRollsBackWhenBoxWriteFails(t *testing.T) {
	h := newHarness(t)
	const source = "DEFECT-20261014-080000000001"
	h.artifacts.put(artifacts.KindDefect, source, unit(31), unit(32), unit(33), unit(34))
	if err := h.engine.SetMode(engine.ModeDefective); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.SetDefectTarget(3); err != nil {
		t.Fatal(err)
	}
	h.mustScan(unit(1))

	diskFull := errors.New("disk full")
	h.artifacts.failCreate = func(a *artifacts.Artifact) error {
		if a.SourceID == "" {
			return diskFull
		}
		return nil
	}
	if _, err := h.scan(source); !errors.Is(err, diskFull) {
		t.Fatalf("pour err = %v, want %v", err, diskFull)
	}
	merge := h.engine.State().Merge
	if !slices.Equal(merge.ScannedDefects, []string{unit(1)}) || len(merge.MergedBoxIDs) != 0 {
		t.Fatalf("merge after failed pour = %+v", merge)
	}
	if got := h.artifacts.boxes[source].Barcodes; !slices.Equal(got, []string{unit(31), unit(32)}) {
		t.Fatalf("source after split = %v", got)
	}

	h.artifacts.failCreate = nil
	res := h.mustScan(source)
	if res.Outcome != engine.OutcomeArtifactCreated {
		t.Fatalf("retry = %+v", res)
	}
	if box := res.Artifacts[0]; !slices.Equal(box.Barcodes, []string{unit(1), unit(31), unit(32)}) {
		t.Fatalf("box = %+v", box)
	}
	if _, ok := h.artifacts.boxes[source]; ok {
		t.Fatal("poured source box not deleted")
	}
}
