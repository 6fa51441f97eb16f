package eventlog

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"qcstation/internal/csvio"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), Options{RetryInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func flush(t *testing.T, store *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func mustEvent(t *testing.T, at time.Time, worker string, kind Kind, payload any) Event {
	t.Helper()
	ev, err := NewEvent(at, worker, kind, payload)
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	return ev
}

func TestAppendCreatesFileWithHeader(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, 3, 4, 9, 30, 0, 0, time.Local)

	ev := mustEvent(t, at, "kim", KindInspectionGood, Inspection{Barcode: "ABC0000000001-1"})
	if err := store.Append(StreamInspection, ev); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	flush(t, store)

	path := store.Path(StreamInspection, "kim", at)
	if !strings.HasSuffix(path, "검사작업이벤트로그_kim_20260304.csv") {
		t.Fatalf("unexpected path %q", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.HasPrefix(string(raw), csvio.BOM+"timestamp,worker,event,details\n") {
		t.Fatalf("missing BOM or header: %q", string(raw[:40]))
	}

	events, err := store.Day(StreamInspection, "kim", at)
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != KindLogFileCreated {
		t.Fatalf("first event = %s, want %s", events[0].Kind, KindLogFileCreated)
	}
	var got Inspection
	if err := events[1].Decode(&got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Barcode != "ABC0000000001-1" {
		t.Fatalf("barcode = %q", got.Barcode)
	}
	if !events[1].Timestamp.Equal(at) {
		t.Fatalf("timestamp = %v, want %v", events[1].Timestamp, at)
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, 3, 4, 9, 0, 0, 0, time.Local)
	for i := 0; i < 50; i++ {
		ev := mustEvent(t, at.Add(time.Duration(i)*time.Second), "lee", KindInspectionGood,
			Inspection{Barcode: "B" + string(rune('A'+i%26))})
		if err := store.Append(StreamInspection, ev); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	flush(t, store)

	events, err := store.Day(StreamInspection, "lee", at)
	if err != nil {
		t.Fatalf("Day failed: %v", err)
	}
	if len(events) != 51 {
		t.Fatalf("expected 51 events, got %d", len(events))
	}
	for i := 2; i < len(events); i++ {
		if events[i].Timestamp.Before(events[i-1].Timestamp) {
			t.Fatalf("event %d out of order", i)
		}
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	store, err := Open(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	ev := mustEvent(t, time.Now(), "kim", KindWorkEnd, nil)
	if err := store.Append(StreamInspection, ev); err != ErrClosed {
		t.Fatalf("Append after close = %v, want ErrClosed", err)
	}
}

func TestReadFileSkipsTornRow(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local)
	ev := mustEvent(t, at, "kim", KindInspectionGood, Inspection{Barcode: "X1"})
	if err := store.Append(StreamInspection, ev); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	flush(t, store)

	path := store.Path(StreamInspection, "kim", at)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := file.WriteString(`2026-03-04T10:00:01.000000+09:00,kim,INSPECTION_GOOD,"{""barc`); err != nil {
		t.Fatalf("write torn row: %v", err)
	}
	file.Close()

	events, err := store.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 intact events, got %d", len(events))
	}

	next := mustEvent(t, at.Add(2*time.Second), "kim", KindInspectionGood, Inspection{Barcode: "X2"})
	if err := store.Append(StreamInspection, next); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	flush(t, store)
	events, err = store.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var last Inspection
	if err := events[len(events)-1].Decode(&last); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if last.Barcode != "X2" {
		t.Fatalf("append after torn row lost: last barcode %q", last.Barcode)
	}
}

func TestReadFileMissing(t *testing.T) {
	store := openStore(t)
	events, err := store.ReadFile(store.Path(StreamRework, "nobody", time.Now()))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestRewriteKeepsUntouchedRows(t *testing.T) {
	store := openStore(t)
	at := time.Date(2026, 3, 5, 8, 0, 0, 0, time.Local)
	good := mustEvent(t, at, "park", KindInspectionGood, Inspection{Barcode: "G1"})
	complete := mustEvent(t, at.Add(time.Minute), "park", KindTrayComplete, map[string]any{
		"master_label_code": "OLD",
		"tray_capacity":     60,
		"vendor_extension":  "keep-me",
	})
	for _, ev := range []Event{good, complete} {
		if err := store.Append(StreamInspection, ev); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	flush(t, store)

	path := store.Path(StreamInspection, "park", at)
	var originalStamp string
	err := store.Rewrite(path, func(events []Event) ([]Event, error) {
		originalStamp = events[1].TimestampText()
		updated, err := events[2].WithDetails(func(fields map[string]any) {
			fields["master_label_code"] = "NEW"
			fields["tray_capacity"] = 40
		})
		if err != nil {
			return nil, err
		}
		events[2] = updated
		return events, nil
	})
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}

	reread, err := store.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(reread) != 3 {
		t.Fatalf("expected 3 events, got %d", len(reread))
	}
	if reread[1].TimestampText() != originalStamp {
		t.Fatalf("timestamp text changed: %q -> %q", originalStamp, reread[1].TimestampText())
	}
	var fields map[string]any
	if err := json.Unmarshal(reread[2].Details, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["master_label_code"] != "NEW" || fields["vendor_extension"] != "keep-me" {
		t.Fatalf("unexpected details %v", fields)
	}
	if fields["tray_capacity"].(float64) != 40 {
		t.Fatalf("tray_capacity = %v", fields["tray_capacity"])
	}
	files, err := store.Files(StreamInspection, "")
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(files) != 1 || files[0].Path != path {
		t.Fatalf("files = %+v, want only the log", files)
	}
}

func TestRewriteKeepsRowsAppendedByOtherStation(t *testing.T) {
	root := t.TempDir()
	openAt := func() *Store {
		store, err := Open(root, Options{RetryInterval: 10 * time.Millisecond})
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	}
	editor, other := openAt(), openAt()

	at := time.Date(2026, 3, 6, 8, 0, 0, 0, time.Local)
	if err := other.Append(StreamInspection, mustEvent(t, at, "lee", KindTrayComplete, map[string]any{"master_label_code": "OLD"})); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	flush(t, other)

	path := other.Path(StreamInspection, "lee", at)
	err := editor.Rewrite(path, func(events []Event) ([]Event, error) {
		late := mustEvent(t, at.Add(time.Minute), "lee", KindInspectionGood, Inspection{Barcode: "LATE"})
		if err := other.Append(StreamInspection, late); err != nil {
			return nil, err
		}
		// Give the other writer time to reach the file.
		time.Sleep(100 * time.Millisecond)
		updated, err := events[len(events)-1].WithDetails(func(fields map[string]any) {
			fields["master_label_code"] = "NEW"
		})
		if err != nil {
			return nil, err
		}
		events[len(events)-1] = updated
		return events, nil
	})
	if err != nil {
		t.Fatalf("Rewrite failed: %v", err)
	}
	flush(t, other)

	events, err := other.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var kinds []Kind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	want := []Kind{KindLogFileCreated, KindTrayComplete, KindInspectionGood}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
	var fields map[string]any
	if err := json.Unmarshal(events[1].Details, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["master_label_code"] != "NEW" {
		t.Fatalf("rewritten row lost: %v", fields)
	}
}

func TestScanFiltersByDay(t *testing.T) {
	store := openStore(t)
	days := []time.Time{
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.Local),
		time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local),
		time.Date(2026, 3, 3, 9, 0, 0, 0, time.Local),
	}
	for _, day := range days {
		for _, worker := range []string{"kim", "lee"} {
			ev := mustEvent(t, day, worker, KindTrayComplete, TrayComplete{MasterLabelCode: worker})
			if err := store.Append(StreamInspection, ev); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
	}
	flush(t, store)

	var seen []time.Time
	err := store.Scan(StreamInspection, "", days[1], days[2], func(info FileInfo, ev Event) bool {
		if ev.Kind == KindTrayComplete {
			seen = append(seen, info.Day)
		}
		return true
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 tray events, got %d", len(seen))
	}
	if seen[0].Day() != 2 || seen[len(seen)-1].Day() != 3 {
		t.Fatalf("scan not oldest-first: %v", seen)
	}
}
