package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"qcstation/internal/artifacts"
	"qcstation/internal/barcode"
	"qcstation/internal/catalog"
	"qcstation/internal/eventlog"
	"qcstation/internal/logging"
	"qcstation/internal/session"
	"qcstation/internal/summary"
	"qcstation/internal/trayindex"
)

// EventLog is the event log capability the engine needs.
type EventLog interface {
	Append(stream eventlog.Stream, ev eventlog.Event) error
	Flush(ctx context.Context) error
	Files(stream eventlog.Stream, worker string) ([]eventlog.FileInfo, error)
	ReadFile(path string) ([]eventlog.Event, error)
	Rewrite(path string, edit func([]eventlog.Event) ([]eventlog.Event, error)) error
	Path(stream eventlog.Stream, worker string, day time.Time) string
}

// ArtifactStore is the box storage capability.
type ArtifactStore interface {
	Create(a *artifacts.Artifact) error
	Save(a artifacts.Artifact) error
	Load(id string) (artifacts.Artifact, error)
	Delete(id string) error
	List(kind artifacts.Kind) ([]artifacts.Artifact, error)
}

// SnapshotStore persists the live inspection session.
type SnapshotStore interface {
	Save(worker string, s *session.Inspection) error
	Remove() error
}

// TrayIndex mirrors completed trays. It is optional.
type TrayIndex interface {
	Record(ctx context.Context, t trayindex.Tray) error
	CompletedOn(ctx context.Context, day string) ([]string, error)
	MarkResumed(ctx context.Context, code, day string) error
	Relabel(ctx context.Context, logPath, endTime, oldCode, newCode string, capacity, good int) error
	Locate(ctx context.Context, code string) (trayindex.Tray, bool, error)
}

// Catalog is the item lookup.
type Catalog interface {
	Lookup(code string) (catalog.Item, bool)
	FindInBarcode(raw string) (catalog.Item, bool)
}

// Options configures an Engine.
type Options struct {
	Worker         string
	TraySize       int
	ItemCodeLength int
	DefectTarget   int
	ScanDelay      time.Duration
	IdleThreshold  time.Duration
	Clock          func() time.Time
	NewID          func() string
	Logger         *slog.Logger
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Log        EventLog
	Artifacts  ArtifactStore
	Snapshots  SnapshotStore
	Index      TrayIndex
	Catalog    Catalog
	Classifier *barcode.Classifier
	Projector  *summary.Projector
}

// Engine is the inspection session state machine.
type Engine struct {
	opts       Options
	log        EventLog
	artifacts  ArtifactStore
	snapshots  SnapshotStore
	index      TrayIndex
	catalog    Catalog
	classifier *barcode.Classifier
	projector  *summary.Projector
	base       *slog.Logger
	logger     *slog.Logger

	mode    Mode
	pending pending

	session *session.Inspection
	remnant *session.Remnant
	merge   *session.DefectMerge

	// completed holds master labels finished on completedDay.
	completed    map[string]struct{}
	completedDay string

	reworked    map[string]struct{}
	reworkedDay string

	// unprocessed caches known unprocessed defect barcodes for the merge item.
	unprocessed map[string]struct{}

	overflowItem string
	defectTarget int

	lastScan     time.Time
	lastActivity time.Time
	segmentStart time.Time
	idle         bool
	idleSince    time.Time
}

// New builds an engine in Standard mode with no live session.
func New(opts Options, deps Deps) *Engine {
	if opts.TraySize <= 0 {
		opts.TraySize = 60
	}
	if opts.ItemCodeLength <= 0 {
		opts.ItemCodeLength = 13
	}
	if opts.DefectTarget <= 0 {
		opts.DefectTarget = 48
	}
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = 420 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	classifier := deps.Classifier
	if classifier == nil {
		var lookup barcode.Catalog
		if c, ok := deps.Catalog.(barcode.Catalog); ok {
			lookup = c
		}
		classifier = barcode.NewClassifier(lookup, barcode.Options{
			ItemCodeLength:  opts.ItemCodeLength,
			DefaultQuantity: opts.TraySize,
		})
	}
	projector := deps.Projector
	if projector == nil {
		projector = summary.NewProjector()
	}
	e := &Engine{
		opts:         opts,
		log:          deps.Log,
		artifacts:    deps.Artifacts,
		snapshots:    deps.Snapshots,
		index:        deps.Index,
		catalog:      deps.Catalog,
		classifier:   classifier,
		projector:    projector,
		base:         logging.NewComponentLogger(opts.Logger, "engine"),
		defectTarget: opts.DefectTarget,
	}
	e.scopeLogger()
	return e
}

// scopeLogger tags engine log lines with the operator and the current mode.
func (e *Engine) scopeLogger() {
	ctx := logging.WithMode(logging.WithWorker(context.Background(), e.opts.Worker), e.mode.String())
	e.logger = logging.WithContext(ctx, e.base)
}

// Worker returns the operator the engine logs as.
func (e *Engine) Worker() string {
	return e.opts.Worker
}

// Mode returns the current mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Summary returns the live daily projection.
func (e *Engine) Summary() summary.Daily {
	return e.projector.Snapshot()
}

// State returns a copy of the engine state for display.
func (e *Engine) State() View {
	v := View{
		Mode:    e.mode,
		Worker:  e.opts.Worker,
		Session: e.session.Clone(),
		Idle:    e.idle,
	}
	if e.remnant != nil {
		cp := *e.remnant
		cp.ScannedBarcodes = append([]string(nil), e.remnant.ScannedBarcodes...)
		v.Remnant = &cp
	}
	if e.merge != nil {
		cp := *e.merge
		cp.ScannedDefects = append([]string(nil), e.merge.ScannedDefects...)
		cp.MergedBoxIDs = append([]string(nil), e.merge.MergedBoxIDs...)
		v.Merge = &cp
	}
	if e.session != nil {
		v.CanUndo = len(e.session.ScannedBarcodes) > 0
	}
	if e.pending != nil {
		v.Pending = e.pending.name()
		v.Prompt = e.promptFor(e.pending)
		switch p := e.pending.(type) {
		case *excludingOverflow:
			v.Excluded = append([]string(nil), p.excluded...)
			v.Needed = p.need - len(p.excluded)
		case *awaitingAdditional:
			v.Needed = p.need - len(p.added)
		case *awaitingRemoved:
			v.Needed = p.need - len(p.removed)
		}
	}
	return v
}

// Scan routes one scanner read.
func (e *Engine) Scan(ev ScanEvent) (Result, error) {
	now := e.now()
	if e.opts.ScanDelay > 0 && !e.lastScan.IsZero() && now.Sub(e.lastScan) < e.opts.ScanDelay {
		e.logger.Debug("scan debounced", logging.String("barcode", ev.Barcode))
		return Result{Outcome: OutcomeDebounced}, nil
	}
	e.lastScan = now
	e.markActivity(now)

	scan := e.classifier.Classify(ev.Barcode)
	e.logger.Debug("scan classified",
		logging.String("barcode", scan.Raw),
		logging.String("kind", scan.Kind.String()),
		logging.Bool("defect_pedal", ev.Defect),
	)

	if e.pending != nil {
		return e.scanPending(scan, ev.Defect)
	}
	switch e.mode {
	case ModeRework:
		return e.scanRework(scan)
	case ModeRemnant:
		return e.scanRemnantMode(scan)
	case ModeDefective:
		return e.scanDefective(scan)
	default:
		return e.scanStandard(scan, ev.Defect)
	}
}

func (e *Engine) scanPending(scan barcode.Scan, defect bool) (Result, error) {
	switch p := e.pending.(type) {
	case awaitingResume, awaitingRemnantConfirm, awaitingOverflowChoice:
		return Result{Outcome: OutcomePrompt, Prompt: e.promptFor(p), Message: "answer the prompt first"}, nil
	case *excludingOverflow:
		return e.scanExclusion(p, scan)
	case awaitingOldLabel:
		return e.scanReplaceOld(scan)
	case awaitingNewLabel:
		return e.scanReplaceNew(p, scan)
	case *awaitingAdditional:
		return e.scanReplaceAdd(p, scan)
	case *awaitingRemoved:
		return e.scanReplaceRemove(p, scan)
	default:
		e.pending = nil
		return e.scanStandard(scan, defect)
	}
}

// Answer resolves the pending prompt.
func (e *Engine) Answer(choice Choice) (Result, error) {
	e.markActivity(e.now())
	switch p := e.pending.(type) {
	case awaitingResume:
		e.pending = nil
		if choice != ChoiceYes {
			return Result{Outcome: OutcomeNotice, Message: "resume declined"}, nil
		}
		return e.resume(p.label)
	case awaitingRemnantConfirm:
		e.pending = nil
		if choice != ChoiceYes {
			return Result{Outcome: OutcomeNotice, Message: "remnant merge cancelled"}, nil
		}
		return e.mergeRemnant(p.box, p.box.Barcodes, nil)
	case awaitingOverflowChoice:
		switch choice {
		case ChoiceFill:
			e.pending = nil
			return e.fillFromRemnant(p.box, p.space)
		case ChoiceExclude:
			need := len(p.box.Barcodes) - p.space
			e.pending = &excludingOverflow{box: p.box, need: need}
			return Result{
				Outcome: OutcomeAwaiting,
				Message: "scan the units to leave in the remnant box",
			}, nil
		default:
			e.pending = nil
			return Result{Outcome: OutcomeNotice, Message: "remnant merge cancelled"}, nil
		}
	default:
		return Result{}, scanErr(KindUnknown, "", "no question is pending")
	}
}

// Cancel abandons the pending sub-state. Partial progress is discarded.
func (e *Engine) Cancel() (Result, error) {
	if e.pending == nil {
		return Result{Outcome: OutcomeNone}, nil
	}
	name := e.pending.name()
	if isReplace(e.pending) {
		payload := eventlog.Replace{}
		switch p := e.pending.(type) {
		case awaitingNewLabel:
			payload.OldMasterLabel = p.old
		case *awaitingAdditional:
			payload.OldMasterLabel, payload.NewMasterLabel = p.old.Code, p.new.Code
		case *awaitingRemoved:
			payload.OldMasterLabel, payload.NewMasterLabel = p.old.Code, p.new.Code
		}
		e.emit(eventlog.StreamInspection, eventlog.KindHistoricalReplaceCancel, payload)
	}
	e.pending = nil
	e.logger.Info("pending step cancelled", logging.String("step", name))
	return Result{Outcome: OutcomeNotice, Message: name + " cancelled"}, nil
}

// SetMode switches the top-level mode. It fails while any box or tray holds
// units or a sub-state is pending.
func (e *Engine) SetMode(mode Mode) error {
	if mode == e.mode {
		return nil
	}
	if e.session.Active() {
		return scanErr(KindModeLocked, "", "finish or reset tray "+e.session.MasterLabelCode+" first")
	}
	if e.remnant != nil && len(e.remnant.ScannedBarcodes) > 0 {
		return scanErr(KindModeLocked, "", "finish the remnant box first")
	}
	if e.merge != nil && len(e.merge.ScannedDefects) > 0 {
		return scanErr(KindModeLocked, "", "finish the defect box first")
	}
	if e.pending != nil {
		return scanErr(KindModeLocked, "", "cancel "+e.pending.name()+" first")
	}
	from := e.mode
	e.mode = mode
	e.scopeLogger()
	e.remnant = nil
	e.merge = nil
	e.unprocessed = nil
	e.emit(eventlog.StreamInspection, eventlog.KindModeChange, eventlog.ModeChange{From: from.String(), To: mode.String()})
	e.logger.Info("mode changed",
		logging.String(logging.FieldEventType, "mode_changed"),
		logging.String("from", from.String()),
		logging.String("to", mode.String()),
	)
	return nil
}

// Undo removes the most recent unit from the live tray or box.
func (e *Engine) Undo() (Result, error) {
	e.markActivity(e.now())
	switch e.mode {
	case ModeRemnant:
		if e.remnant == nil || len(e.remnant.ScannedBarcodes) == 0 {
			return Result{}, scanErr(KindUnknown, "", "remnant box is empty")
		}
		last := e.remnant.ScannedBarcodes[len(e.remnant.ScannedBarcodes)-1]
		e.remnant.ScannedBarcodes = e.remnant.ScannedBarcodes[:len(e.remnant.ScannedBarcodes)-1]
		return Result{Outcome: OutcomeAccepted, Message: "removed " + last}, nil
	case ModeDefective:
		return e.undoDefect()
	}
	return e.undoInspection()
}

func (e *Engine) now() time.Time {
	return e.opts.Clock()
}

func (e *Engine) day(t time.Time) string {
	return t.Format(time.DateOnly)
}

func (e *Engine) promptFor(p pending) *Prompt {
	switch p := p.(type) {
	case awaitingResume:
		return &Prompt{
			Message: "master label " + p.label.Code + " was already completed today; resume it?",
			Choices: []Choice{ChoiceYes, ChoiceNo},
		}
	case awaitingRemnantConfirm:
		return &Prompt{
			Message: "merge remnant " + p.box.ID + " into the tray?",
			Choices: []Choice{ChoiceYes, ChoiceNo},
		}
	case awaitingOverflowChoice:
		return &Prompt{
			Message: "remnant " + p.box.ID + " holds more units than the tray needs; fill the needed units or exclude the overflow?",
			Choices: []Choice{ChoiceFill, ChoiceExclude, ChoiceNo},
		}
	default:
		return nil
	}
}

func (e *Engine) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// BeginWork records the operator's login on machineID.
func (e *Engine) BeginWork(machineID string) {
	now := e.now()
	e.rollCompleted(now)
	e.emit(eventlog.StreamInspection, eventlog.KindWorkStart, eventlog.WorkSession{MachineID: machineID})
	e.logger.Info("work session started",
		logging.String(logging.FieldEventType, "work_start"),
		logging.String("machine_id", machineID),
	)
}

// EndWork checkpoints the live tray into the snapshot and records the
// operator's logout. The tray itself stays open for the next login.
func (e *Engine) EndWork(machineID string) {
	e.persist()
	e.emit(eventlog.StreamInspection, eventlog.KindWorkEnd, eventlog.WorkSession{MachineID: machineID})
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "work_end"),
		logging.String("machine_id", machineID),
	}
	if e.session.Active() {
		attrs = append(attrs, logging.String(logging.FieldMasterLabel, e.session.MasterLabelCode))
	}
	e.logger.Info("work session ended", logging.Args(attrs...)...)
}
