package station_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"qcstation/internal/artifacts"
	"qcstation/internal/config"
	"qcstation/internal/engine"
	"qcstation/internal/eventlog"
	"qcstation/internal/station"
	"qcstation/internal/testsupport"
)

const itemCode = "ABC0000000001"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newConfig(t *testing.T, opts ...testsupport.ConfigOption) *config.Config {
	t.Helper()
	opts = append([]testsupport.ConfigOption{
		testsupport.WithTraySize(2),
		testsupport.WithCatalog(testsupport.CatalogRow{Code: itemCode, Name: "Widget", Spec: "10x10"}),
	}, opts...)
	return testsupport.NewConfig(t, opts...)
}

func openStation(t *testing.T, cfg *config.Config) *station.Station {
	t.Helper()
	c := &clock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.Local)}
	st, err := station.Open(cfg, nil,
		station.WithClock(c.Now),
		station.WithRenderer(artifacts.NopRenderer{}),
		station.WithTickInterval(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("station.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func day() time.Time {
	return time.Date(2026, 10, 15, 0, 0, 0, 0, time.Local)
}

func master(qty int) string {
	return fmt.Sprintf(`{"CLC":"%s","QT":%d}`, itemCode, qty)
}

func unit(n int) string {
	return fmt.Sprintf("X-%s-%03d", itemCode, n)
}

func mustScan(t *testing.T, eng *engine.Engine, raw string) engine.Result {
	t.Helper()
	res, err := eng.Scan(engine.ScanEvent{Barcode: raw})
	if err != nil {
		t.Fatalf("scan %q: %v", raw, err)
	}
	return res
}

func kinds(t *testing.T, st *station.Station, worker string) []eventlog.Kind {
	t.Helper()
	events, err := st.Log().Day(eventlog.StreamInspection, worker, day())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := make([]eventlog.Kind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func containsInOrder(got []eventlog.Kind, want ...eventlog.Kind) bool {
	i := 0
	for _, k := range got {
		if i < len(want) && k == want[i] {
			i++
		}
	}
	return i == len(want)
}

func TestOpenRequiresCatalog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := station.Open(cfg, nil); err == nil {
		t.Fatal("expected error without a catalog")
	}
}

func TestLoginTrayLogout(t *testing.T) {
	cfg := newConfig(t)
	st := openStation(t, cfg)

	eng, res, err := st.Login("kim", station.DecisionNone)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Outcome != engine.OutcomeNone {
		t.Fatalf("outcome = %v, want none", res.Outcome)
	}
	mustScan(t, eng, master(2))
	mustScan(t, eng, unit(1))
	if res := mustScan(t, eng, unit(2)); res.Outcome != engine.OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", res.Outcome)
	}
	if err := st.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	got := kinds(t, st, "kim")
	if len(got) == 0 || got[0] != eventlog.KindLogFileCreated {
		t.Fatalf("first event = %v, want LOG_FILE_CREATED", got)
	}
	if !containsInOrder(got,
		eventlog.KindWorkStart,
		eventlog.KindMasterLabelScanned,
		eventlog.KindTrayComplete,
		eventlog.KindWorkEnd,
	) {
		t.Fatalf("events = %v", got)
	}

	trays, err := st.Trays(context.Background(), day(), day())
	if err != nil {
		t.Fatalf("Trays: %v", err)
	}
	if len(trays) != 1 || trays[0].Good != 2 || trays[0].Worker != "kim" {
		t.Fatalf("trays = %+v", trays)
	}
	if offer, err := st.PendingRestore("kim"); err != nil || offer != nil {
		t.Fatalf("PendingRestore = %+v, %v; want none", offer, err)
	}
}

func TestSecondStationIsLockedOut(t *testing.T) {
	cfg := newConfig(t)
	first := openStation(t, cfg)
	if _, _, err := first.Login("kim", station.DecisionNone); err != nil {
		t.Fatalf("first Login: %v", err)
	}

	second := openStation(t, cfg)
	if _, _, err := second.Login("lee", station.DecisionNone); !errors.Is(err, station.ErrStationBusy) {
		t.Fatalf("second Login err = %v, want ErrStationBusy", err)
	}
}

func TestLoginTwiceFails(t *testing.T) {
	st := openStation(t, newConfig(t))
	if _, _, err := st.Login("kim", station.DecisionNone); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, _, err := st.Login("lee", station.DecisionNone); err == nil {
		t.Fatal("expected error for a second login")
	}
}

// leaveTray logs kim in, starts a tray with one unit and closes the station
// without finishing it.
func leaveTray(t *testing.T, cfg *config.Config) {
	t.Helper()
	st := openStation(t, cfg)
	eng, _, err := st.Login("kim", station.DecisionNone)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	mustScan(t, eng, master(2))
	mustScan(t, eng, unit(1))
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestTakeoverFlow(t *testing.T) {
	cfg := newConfig(t)
	leaveTray(t, cfg)

	st := openStation(t, cfg)
	offer, err := st.PendingRestore("lee")
	if err != nil {
		t.Fatalf("PendingRestore: %v", err)
	}
	if offer == nil || !offer.Takeover || offer.PreviousWorker != "kim" || offer.Filled != 1 {
		t.Fatalf("offer = %+v", offer)
	}
	if len(offer.Choices()) != 3 {
		t.Fatalf("choices = %v, want resume/discard/abort", offer.Choices())
	}

	if _, _, err := st.Login("lee", station.DecisionNone); !errors.Is(err, station.ErrRestorePending) {
		t.Fatalf("Login err = %v, want ErrRestorePending", err)
	}
	if _, _, err := st.Login("lee", station.DecisionAbort); !errors.Is(err, station.ErrLoginAborted) {
		t.Fatalf("Login err = %v, want ErrLoginAborted", err)
	}
	if st.Engine() != nil {
		t.Fatal("aborted login left an engine behind")
	}

	eng, res, err := st.Login("lee", station.DecisionResume)
	if err != nil {
		t.Fatalf("Login resume: %v", err)
	}
	if res.Outcome != engine.OutcomeSessionStarted {
		t.Fatalf("outcome = %v, want session started", res.Outcome)
	}
	view := eng.State()
	if view.Session == nil || view.Session.Filled() != 1 || !view.Session.IsRestoredSession {
		t.Fatalf("session = %+v", view.Session)
	}
	if res := mustScan(t, eng, unit(2)); res.Outcome != engine.OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", res.Outcome)
	}
	if err := st.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !containsInOrder(kinds(t, st, "lee"), eventlog.KindWorkStart, eventlog.KindTrayTakeover, eventlog.KindTrayComplete) {
		t.Fatalf("events = %v", kinds(t, st, "lee"))
	}
}

func TestSameWorkerResumeOffer(t *testing.T) {
	cfg := newConfig(t)
	leaveTray(t, cfg)

	st := openStation(t, cfg)
	offer, err := st.PendingRestore("kim")
	if err != nil || offer == nil {
		t.Fatalf("PendingRestore = %+v, %v", offer, err)
	}
	if offer.Takeover || len(offer.Choices()) != 2 {
		t.Fatalf("offer = %+v", offer)
	}
	if _, _, err := st.Login("kim", station.DecisionResume); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := st.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !containsInOrder(kinds(t, st, "kim"), eventlog.KindWorkStart, eventlog.KindTrayRestore) {
		t.Fatalf("events = %v", kinds(t, st, "kim"))
	}
}

func TestDiscardRemovesSnapshot(t *testing.T) {
	cfg := newConfig(t)
	leaveTray(t, cfg)

	st := openStation(t, cfg)
	eng, res, err := st.Login("kim", station.DecisionDiscard)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Outcome != engine.OutcomeNotice {
		t.Fatalf("outcome = %v, want notice", res.Outcome)
	}
	if eng.State().Session != nil {
		t.Fatalf("session = %+v, want none", eng.State().Session)
	}
	if offer, err := st.PendingRestore("kim"); err != nil || offer != nil {
		t.Fatalf("PendingRestore = %+v, %v; want none", offer, err)
	}
}

func TestCorruptSnapshotNeedsDiscard(t *testing.T) {
	cfg := newConfig(t)
	st := openStation(t, cfg)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.Root, "_current_inspection_state_test-station.json"), "{not json")

	if _, err := st.PendingRestore("kim"); err == nil {
		t.Fatal("expected error for a corrupt snapshot")
	}
	if _, _, err := st.Login("kim", station.DecisionResume); err == nil {
		t.Fatal("expected resume of a corrupt snapshot to fail")
	}
	if _, _, err := st.Login("kim", station.DecisionDiscard); err != nil {
		t.Fatalf("Login discard: %v", err)
	}
}

func TestSummarySurvivesRelogin(t *testing.T) {
	cfg := newConfig(t)
	st := openStation(t, cfg)
	eng, _, err := st.Login("kim", station.DecisionNone)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	mustScan(t, eng, master(2))
	mustScan(t, eng, unit(1))
	mustScan(t, eng, unit(2))
	if err := st.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	eng, _, err = st.Login("kim", station.DecisionNone)
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	daily := eng.Summary()
	if daily.TotalTrays != 1 || len(daily.Items) != 1 || daily.Items[0].Name != "Widget" {
		t.Fatalf("summary = %+v", daily)
	}

	report, err := st.Summary("kim", day())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if report.Daily.TotalTrays != 1 {
		t.Fatalf("report trays = %d, want 1", report.Daily.TotalTrays)
	}

	// Completing the same label again today offers a resume.
	if res := mustScan(t, eng, master(2)); res.Outcome != engine.OutcomePrompt {
		t.Fatalf("outcome = %v, want prompt", res.Outcome)
	}
}

func TestRebuildIndex(t *testing.T) {
	cfg := newConfig(t)
	st := openStation(t, cfg)
	eng, _, err := st.Login("kim", station.DecisionNone)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	mustScan(t, eng, master(2))
	mustScan(t, eng, unit(1))
	mustScan(t, eng, unit(2))
	if err := st.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	n, err := st.RebuildIndex(context.Background())
	if err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if n != 1 {
		t.Fatalf("rebuilt %d trays, want 1", n)
	}
}

func TestRunAppliesInputsInOrder(t *testing.T) {
	st := openStation(t, newConfig(t))
	if err := st.Run(context.Background(), nil); !errors.Is(err, station.ErrNotLoggedIn) {
		t.Fatalf("Run err = %v, want ErrNotLoggedIn", err)
	}
	if _, _, err := st.Login("kim", station.DecisionNone); err != nil {
		t.Fatalf("Login: %v", err)
	}

	var outcomes []engine.Outcome
	inputs := make(chan station.Input, 3)
	for _, raw := range []string{master(2), unit(1), unit(2)} {
		inputs <- func(eng *engine.Engine) {
			res, err := eng.Scan(engine.ScanEvent{Barcode: raw})
			if err != nil {
				t.Errorf("scan %q: %v", raw, err)
			}
			outcomes = append(outcomes, res.Outcome)
		}
	}
	close(inputs)

	if err := st.Run(context.Background(), inputs); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []engine.Outcome{engine.OutcomeSessionStarted, engine.OutcomeAccepted, engine.OutcomeCompleted}
	if fmt.Sprint(outcomes) != fmt.Sprint(want) {
		t.Fatalf("outcomes = %v, want %v", outcomes, want)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	st := openStation(t, newConfig(t))
	if _, _, err := st.Login("kim", station.DecisionNone); err != nil {
		t.Fatalf("Login: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := st.Run(ctx, make(chan station.Input)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in   string
		want station.Decision
		ok   bool
	}{
		{"resume", station.DecisionResume, true},
		{"Takeover", station.DecisionResume, true},
		{"discard", station.DecisionDiscard, true},
		{" abort ", station.DecisionAbort, true},
		{"later", station.DecisionNone, false},
	}
	for _, tt := range tests {
		got, ok := station.ParseDecision(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseDecision(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
