package station

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qcstation/internal/engine"
	"qcstation/internal/eventlog"
	"qcstation/internal/logging"
	"qcstation/internal/session"
	"qcstation/internal/summary"
)

var (
	// ErrRestorePending is returned by Login when a snapshot exists and no
	// decision was given for it.
	ErrRestorePending = errors.New("an unfinished tray is waiting for a restore decision")
	// ErrLoginAborted is returned when the operator backs out of a takeover.
	ErrLoginAborted = errors.New("login aborted")
	// ErrNotLoggedIn is returned by operations that need an operator.
	ErrNotLoggedIn = errors.New("no operator is logged in")
)

// Decision settles a snapshot found at login.
type Decision int

const (
	// DecisionNone means no decision was made. Login fails with
	// ErrRestorePending when a snapshot exists.
	DecisionNone Decision = iota
	// DecisionResume continues the saved tray. For a different operator this
	// is a takeover.
	DecisionResume
	// DecisionDiscard deletes the snapshot and starts clean.
	DecisionDiscard
	// DecisionAbort returns to the login prompt without side effects.
	DecisionAbort
)

// ParseDecision maps operator answers to a Decision.
func ParseDecision(value string) (Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "resume", "takeover", "yes", "y":
		return DecisionResume, true
	case "discard", "no", "n":
		return DecisionDiscard, true
	case "abort", "cancel":
		return DecisionAbort, true
	default:
		return DecisionNone, false
	}
}

// RestoreOffer describes a snapshot waiting at login.
type RestoreOffer struct {
	PreviousWorker  string
	MasterLabelCode string
	ItemCode        string
	Filled          int
	Quantity        int
	SavedAt         time.Time
	// Takeover is true when the snapshot belongs to another operator.
	Takeover bool
}

// Choices lists the decisions the operator may pick.
func (o RestoreOffer) Choices() []Decision {
	if o.Takeover {
		return []Decision{DecisionResume, DecisionDiscard, DecisionAbort}
	}
	return []Decision{DecisionResume, DecisionDiscard}
}

// PendingRestore reports the snapshot worker would be offered at login. A
// corrupt snapshot is returned as an error; it can be cleared with
// DecisionDiscard.
func (s *Station) PendingRestore(worker string) (*RestoreOffer, error) {
	snap, ok, err := s.snapshots.Load()
	if err != nil || !ok {
		return nil, err
	}
	sess := snap.Session
	return &RestoreOffer{
		PreviousWorker:  snap.WorkerName,
		MasterLabelCode: sess.MasterLabelCode,
		ItemCode:        sess.ItemCode,
		Filled:          sess.Filled(),
		Quantity:        sess.Quantity,
		SavedAt:         snap.SavedAt,
		Takeover:        snap.WorkerName != strings.TrimSpace(worker),
	}, nil
}

// Login takes the station lock, builds the engine for worker and settles any
// snapshot according to decision.
func (s *Station) Login(worker string, decision Decision) (*engine.Engine, engine.Result, error) {
	worker = strings.TrimSpace(worker)
	if worker == "" {
		return nil, engine.Result{}, errors.New("worker name is required")
	}
	if s.engine != nil {
		return nil, engine.Result{}, fmt.Errorf("%s is already logged in", s.engine.Worker())
	}
	if err := s.acquire(); err != nil {
		return nil, engine.Result{}, err
	}

	snap, found, loadErr := s.snapshots.Load()
	if loadErr != nil && decision != DecisionDiscard {
		return nil, engine.Result{}, loadErr
	}
	if (found || loadErr != nil) && decision == DecisionNone {
		return nil, engine.Result{}, ErrRestorePending
	}
	if decision == DecisionAbort {
		s.logger.Info("login aborted", logging.String(logging.FieldWorker, worker))
		return nil, engine.Result{}, ErrLoginAborted
	}

	now := s.clock()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.syncIndex(ctx, now)

	eng := engine.New(engine.Options{
		Worker:         worker,
		TraySize:       s.cfg.Inspection.TraySize,
		ItemCodeLength: s.cfg.Inspection.ItemCodeLength,
		DefectTarget:   s.cfg.DefectMerge.DefaultTarget,
		ScanDelay:      s.cfg.ScanDelay(),
		IdleThreshold:  s.cfg.IdleThreshold(),
		Clock:          s.clock,
		Logger:         s.logger,
	}, engine.Deps{
		Log:       s.log,
		Artifacts: s.artifacts,
		Snapshots: s.snapshots,
		Index:     s.trayIndex(),
		Catalog:   s.catalog,
		Projector: s.seedProjector(worker, now),
	})
	eng.BeginWork(s.machineID)

	var result engine.Result
	switch {
	case decision == DecisionResume && found:
		res, err := eng.Restore(snap.Session, snap.WorkerName)
		if err != nil {
			logging.WarnWithContext(s.logger, "snapshot restore failed", "snapshot_restore_failed",
				logging.String(logging.FieldWorker, worker),
				logging.String(logging.FieldMasterLabel, snapshotCode(snap.Session)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "discard the snapshot and rescan the tray"),
			)
			eng.EndWork(s.machineID)
			return nil, engine.Result{}, fmt.Errorf("restore snapshot: %w", err)
		}
		result = res
	case decision == DecisionDiscard && (found || loadErr != nil):
		if err := s.snapshots.Remove(); err != nil {
			eng.EndWork(s.machineID)
			return nil, engine.Result{}, err
		}
		s.logger.Info("snapshot discarded",
			logging.String(logging.FieldEventType, "snapshot_discarded"),
			logging.String(logging.FieldWorker, worker),
		)
		result = engine.Result{Outcome: engine.OutcomeNotice, Message: "saved tray discarded"}
	}

	s.engine = eng
	return eng, result, nil
}

// Logout records the end of the operator's work session. A live tray stays
// in the snapshot for the next login.
func (s *Station) Logout() error {
	if s.engine == nil {
		return ErrNotLoggedIn
	}
	s.engine.EndWork(s.machineID)
	s.engine = nil
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.log.Flush(ctx); err != nil {
		return fmt.Errorf("flush event log: %w", err)
	}
	return nil
}

// seedProjector folds the operator's earlier trays of the day so the live
// summary survives a restart.
func (s *Station) seedProjector(worker string, day time.Time) *summary.Projector {
	projector := summary.NewProjector()
	events, err := s.log.Day(eventlog.StreamInspection, worker, day)
	if err != nil {
		s.logger.Warn("summary seed failed", logging.String(logging.FieldWorker, worker), logging.Error(err))
		return projector
	}
	for _, ev := range events {
		projector.Apply(ev)
	}
	return projector
}

// trayIndex hides a nil *Index behind a nil interface.
func (s *Station) trayIndex() engine.TrayIndex {
	if s.index == nil {
		return nil
	}
	return s.index
}

func snapshotCode(sess *session.Inspection) string {
	if sess == nil {
		return ""
	}
	return sess.MasterLabelCode
}
