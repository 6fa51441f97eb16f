package summary

import (
	"testing"
	"time"

	"qcstation/internal/eventlog"
)

func trayEvent(t *testing.T, tray eventlog.TrayComplete) eventlog.Event {
	t.Helper()
	ev, err := eventlog.NewEvent(time.Now(), "kim", eventlog.KindTrayComplete, tray)
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	return ev
}

func tray(code string, capacity, good, defective int, seconds float64) eventlog.TrayComplete {
	out := eventlog.TrayComplete{ItemCode: code, ItemName: "Widget", TrayCapacity: capacity, WorkTimeSec: seconds}
	for i := 0; i < good; i++ {
		out.ScannedProductBarcodes = append(out.ScannedProductBarcodes, code+"-g"+string(rune('a'+i)))
	}
	for i := 0; i < defective; i++ {
		out.DefectiveProductBarcodes = append(out.DefectiveProductBarcodes, code+"-d"+string(rune('a'+i)))
	}
	return out
}

func TestFoldCountsPerItem(t *testing.T) {
	partial := tray("B", 10, 4, 1, 30)
	partial.IsPartialSubmission = true

	events := []eventlog.Event{
		trayEvent(t, tray("A", 3, 2, 1, 60)),
		trayEvent(t, tray("A", 3, 3, 0, 90)),
		trayEvent(t, partial),
	}
	other, _ := eventlog.NewEvent(time.Now(), "kim", eventlog.KindInspectionGood, eventlog.Inspection{Barcode: "A-1"})
	events = append(events, other)

	got := Fold(events)
	if got.TotalTrays != 2 {
		t.Fatalf("TotalTrays = %d, want 2", got.TotalTrays)
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Items))
	}
	a, b := got.Items[0], got.Items[1]
	if a.Code != "A" || a.PalletCount != 2 || a.DefectiveEACount != 1 {
		t.Fatalf("unexpected A stats %+v", a)
	}
	if b.Code != "B" || b.PalletCount != 0 || b.DefectiveEACount != 1 {
		t.Fatalf("unexpected B stats %+v", b)
	}
	if len(got.CompletionTimes) != 2 || got.P50 != 60 || got.P90 != 90 {
		t.Fatalf("times=%v p50=%v p90=%v", got.CompletionTimes, got.P50, got.P90)
	}
}

func TestLiveProjectorMatchesReplay(t *testing.T) {
	events := []eventlog.Event{
		trayEvent(t, tray("A", 2, 2, 0, 10)),
		trayEvent(t, tray("C", 2, 1, 1, 20)),
		trayEvent(t, tray("A", 2, 2, 0, 15)),
	}
	live := NewProjector()
	for _, ev := range events {
		live.Apply(ev)
	}
	replayed := Fold(events)
	gotLive := live.Snapshot()
	if gotLive.TotalTrays != replayed.TotalTrays || gotLive.P50 != replayed.P50 || gotLive.P90 != replayed.P90 {
		t.Fatalf("live %+v != replay %+v", gotLive, replayed)
	}
	for i := range gotLive.Items {
		if gotLive.Items[i] != replayed.Items[i] {
			t.Fatalf("item %d: live %+v != replay %+v", i, gotLive.Items[i], replayed.Items[i])
		}
	}
}

func TestResumedTrayCountsOnce(t *testing.T) {
	first := tray("A", 2, 1, 1, 40)
	first.MasterLabelCode = "M-1"
	again := tray("A", 2, 2, 0, 55)
	again.MasterLabelCode = "M-1"
	again.IsRestoredSession = true
	resumed, err := eventlog.NewEvent(time.Now(), "kim", eventlog.KindTrayResumed, eventlog.SessionRef{MasterLabelCode: "M-1"})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	events := []eventlog.Event{trayEvent(t, first), resumed, trayEvent(t, again)}

	got := Fold(events)
	if got.TotalTrays != 1 || len(got.CompletionTimes) != 1 || got.CompletionTimes[0] != 55 {
		t.Fatalf("trays=%d times=%v", got.TotalTrays, got.CompletionTimes)
	}
	if a := got.Items[0]; a.PalletCount != 1 || a.DefectiveEACount != 0 {
		t.Fatalf("unexpected A stats %+v", a)
	}

	week := FoldWeek([]eventlog.Event{trayEvent(t, first), resumed}, 0)
	if week.CleanTrays != 0 {
		t.Fatalf("reopened tray counted as clean: %+v", week)
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{50, 10, 40, 20, 30}
	if got := Percentile(values, 50); got != 30 {
		t.Fatalf("P50 = %v", got)
	}
	if got := Percentile(values, 90); got != 50 {
		t.Fatalf("P90 = %v", got)
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Fatalf("empty P50 = %v", got)
	}
	if values[0] != 50 {
		t.Fatal("Percentile reordered its input")
	}
}

func TestFoldWeekFiltersUncleanAndImplausible(t *testing.T) {
	errored := tray("A", 2, 2, 0, 40)
	errored.HasErrorOrReset = true
	restored := tray("A", 2, 2, 0, 40)
	restored.IsRestoredSession = true
	short := tray("A", 2, 1, 0, 40)
	tooFast := tray("A", 2, 2, 0, 3)

	events := []eventlog.Event{
		trayEvent(t, tray("A", 2, 2, 0, 40)),
		trayEvent(t, tray("A", 2, 1, 1, 20)),
		trayEvent(t, errored),
		trayEvent(t, restored),
		trayEvent(t, short),
		trayEvent(t, tooFast),
	}
	got := FoldWeek(events, 2)
	if got.CleanTrays != 2 {
		t.Fatalf("CleanTrays = %d, want 2", got.CleanTrays)
	}
	if got.AverageSec != 30 || got.BestSec != 20 {
		t.Fatalf("average=%v best=%v", got.AverageSec, got.BestSec)
	}
	if got.Implausible != 1 {
		t.Fatalf("Implausible = %d, want 1", got.Implausible)
	}
}

func TestWeekBounds(t *testing.T) {
	wed := time.Date(2026, 3, 4, 15, 0, 0, 0, time.Local)
	start, end := WeekBounds(wed)
	if start.Weekday() != time.Monday || start.Day() != 2 {
		t.Fatalf("start = %v", start)
	}
	if end.Weekday() != time.Sunday || end.Day() != 8 {
		t.Fatalf("end = %v", end)
	}
	sunday := time.Date(2026, 3, 8, 1, 0, 0, 0, time.Local)
	if s, _ := WeekBounds(sunday); !s.Equal(start) {
		t.Fatalf("sunday start = %v, want %v", s, start)
	}
}
