package engine_test

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"qcstation/internal/artifacts"
	"qcstation/internal/catalog"
	"qcstation/internal/engine"
	"qcstation/internal/eventlog"
	"qcstation/internal/failure"
	"qcstation/internal/session"
)

const (
	itemCode = "ABC0000000001"
	worker   = "kim"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.Local)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memLog struct {
	files map[string][]eventlog.Event
}

func newMemLog() *memLog {
	return &memLog{files: make(map[string][]eventlog.Event)}
}

func (l *memLog) Append(stream eventlog.Stream, ev eventlog.Event) error {
	path := l.Path(stream, ev.Worker, ev.Timestamp)
	l.files[path] = append(l.files[path], ev)
	return nil
}

func (l *memLog) Flush(context.Context) error { return nil }

func (l *memLog) Files(stream eventlog.Stream, worker string) ([]eventlog.FileInfo, error) {
	var out []eventlog.FileInfo
	for path := range l.files {
		info, ok := eventlog.ParseFileName(path)
		if !ok || info.Stream != stream || (worker != "" && info.Worker != worker) {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.After(out[j].Day)
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

func (l *memLog) ReadFile(path string) ([]eventlog.Event, error) {
	return slices.Clone(l.files[path]), nil
}

func (l *memLog) Rewrite(path string, edit func([]eventlog.Event) ([]eventlog.Event, error)) error {
	events, err := edit(slices.Clone(l.files[path]))
	if err != nil {
		return err
	}
	l.files[path] = events
	return nil
}

func (l *memLog) Path(stream eventlog.Stream, worker string, day time.Time) string {
	return filepath.Join("/mem", eventlog.FileName(stream, worker, day))
}

// kinds returns the event kinds written to stream for day, in order.
func (l *memLog) kinds(stream eventlog.Stream, day time.Time) []eventlog.Kind {
	var out []eventlog.Kind
	for _, ev := range l.files[l.Path(stream, worker, day)] {
		out = append(out, ev.Kind)
	}
	return out
}

func (l *memLog) last(t *testing.T, stream eventlog.Stream, day time.Time, kind eventlog.Kind, v any) {
	t.Helper()
	events := l.files[l.Path(stream, worker, day)]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == kind {
			if err := events[i].Decode(v); err != nil {
				t.Fatalf("decode %s: %v", kind, err)
			}
			return
		}
	}
	t.Fatalf("no %s event in %s", kind, stream)
}

type memArtifacts struct {
	boxes map[string]artifacts.Artifact
	seq   int

	// failCreate, when set, rejects boxes it returns an error for.
	failCreate func(a *artifacts.Artifact) error
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{boxes: make(map[string]artifacts.Artifact)}
}

func (m *memArtifacts) Create(a *artifacts.Artifact) error {
	if len(a.Barcodes) == 0 {
		return failure.Wrap(failure.ErrValidation, "artifacts", "create", "box has no units", nil)
	}
	if m.failCreate != nil {
		if err := m.failCreate(a); err != nil {
			return err
		}
	}
	m.seq++
	if a.ID == "" {
		a.ID = fmt.Sprintf("%s20261015-0900000000%02d", a.Kind.Prefix(), m.seq)
	}
	a.Quantity = len(a.Barcodes)
	return m.Save(*a)
}

func (m *memArtifacts) Save(a artifacts.Artifact) error {
	a.Barcodes = slices.Clone(a.Barcodes)
	m.boxes[a.ID] = a
	return nil
}

func (m *memArtifacts) Load(id string) (artifacts.Artifact, error) {
	a, ok := m.boxes[id]
	if !ok {
		return artifacts.Artifact{}, failure.Wrap(failure.ErrNotFound, "artifacts", "load", id, nil)
	}
	a.Barcodes = slices.Clone(a.Barcodes)
	return a, nil
}

func (m *memArtifacts) Delete(id string) error {
	if _, ok := m.boxes[id]; !ok {
		return failure.Wrap(failure.ErrNotFound, "artifacts", "delete", id, nil)
	}
	delete(m.boxes, id)
	return nil
}

func (m *memArtifacts) List(kind artifacts.Kind) ([]artifacts.Artifact, error) {
	var out []artifacts.Artifact
	for _, a := range m.boxes {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memArtifacts) put(kind artifacts.Kind, id string, barcodes ...string) {
	m.boxes[id] = artifacts.Artifact{
		Kind:     kind,
		ID:       id,
		ItemCode: itemCode,
		Barcodes: barcodes,
		Quantity: len(barcodes),
	}
}

type memSnapshots struct {
	saved   *session.Inspection
	worker  string
	saves   int
	removed int
}

func (m *memSnapshots) Save(worker string, s *session.Inspection) error {
	m.saved = s.Clone()
	m.worker = worker
	m.saves++
	return nil
}

func (m *memSnapshots) Remove() error {
	m.saved = nil
	m.removed++
	return nil
}

type harness struct {
	t         *testing.T
	clock     *clock
	log       *memLog
	artifacts *memArtifacts
	snapshots *memSnapshots
	engine    *engine.Engine
}

func newHarness(t *testing.T, mutate ...func(*engine.Options)) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		clock:     newClock(),
		log:       newMemLog(),
		artifacts: newMemArtifacts(),
		snapshots: &memSnapshots{},
	}
	opts := engine.Options{
		Worker: worker,
		Clock:  h.clock.Now,
		NewID:  func() string { return "session-1" },
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	h.engine = engine.New(opts, engine.Deps{
		Log:       h.log,
		Artifacts: h.artifacts,
		Snapshots: h.snapshots,
		Catalog: catalog.New(
			catalog.Item{Code: itemCode, Name: "Widget", Spec: "10mm"},
			catalog.Item{Code: "XYZ0000000002", Name: "Gadget", Spec: "20mm"},
		),
	})
	return h
}

// scan feeds raw with a one second gap so debounce never interferes.
func (h *harness) scan(raw string) (engine.Result, error) {
	h.clock.Advance(time.Second)
	return h.engine.Scan(engine.ScanEvent{Barcode: raw})
}

func (h *harness) defect(raw string) (engine.Result, error) {
	h.clock.Advance(time.Second)
	return h.engine.Scan(engine.ScanEvent{Barcode: raw, Defect: true})
}

func (h *harness) mustScan(raw string) engine.Result {
	h.t.Helper()
	res, err := h.scan(raw)
	if err != nil {
		h.t.Fatalf("scan %q: %v", raw, err)
	}
	return res
}

func master(qty int) string {
	return fmt.Sprintf(`{"CLC":"%s","QT":%d,"WID":"W-1","PHS":"1"}`, itemCode, qty)
}

func unit(n int) string {
	return fmt.Sprintf("X-%s-%03d", itemCode, n)
}

func today() time.Time {
	return newClock().Now()
}
