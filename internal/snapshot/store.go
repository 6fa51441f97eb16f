package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"qcstation/internal/fileutil"
	"qcstation/internal/logging"
	"qcstation/internal/session"
)

const filePrefix = "_current_inspection_state_"

// Snapshot is the persisted form of a live inspection session.
type Snapshot struct {
	WorkerName string              `json:"worker_name"`
	MachineID  string              `json:"machine_id"`
	SavedAt    time.Time           `json:"saved_at"`
	Session    *session.Inspection `json:"session"`
}

// Store keeps the single snapshot file for one machine.
type Store struct {
	path      string
	machineID string
	logger    *slog.Logger
}

// NewStore returns a store writing `_current_inspection_state_<machineID>.json`
// under root.
func NewStore(root, machineID string, logger *slog.Logger) *Store {
	return &Store{
		path:      filepath.Join(root, filePrefix+machineID+".json"),
		machineID: machineID,
		logger:    logging.NewComponentLogger(logger, "snapshot"),
	}
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Save atomically replaces the snapshot with sess.
func (s *Store) Save(worker string, sess *session.Inspection) error {
	if sess == nil || !sess.Active() {
		return errors.New("snapshot requires an active session")
	}
	snap := Snapshot{
		WorkerName: worker,
		MachineID:  s.machineID,
		SavedAt:    time.Now(),
		Session:    sess,
	}
	if err := fileutil.WriteJSONAtomic(s.path, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or ok=false when none exists. A corrupt
// snapshot is reported as an error and left in place for inspection.
func (s *Store) Load() (*Snapshot, bool, error) {
	var snap Snapshot
	found, err := fileutil.ReadJSON(s.path, &snap)
	if err != nil {
		return nil, found, fmt.Errorf("load snapshot: %w", err)
	}
	if !found || snap.Session == nil || !snap.Session.Active() {
		return nil, false, nil
	}
	return &snap, true, nil
}

// Remove deletes the snapshot. A missing file is not an error.
func (s *Store) Remove() error {
	if err := fileutil.RemoveIfExists(s.path); err != nil {
		logging.WarnWithContext(s.logger, "snapshot removal failed", "snapshot_remove_failed",
			logging.String("path", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the file manually if it reappears at login"),
			logging.String(logging.FieldImpact, "the finished tray may be offered for restore"),
		)
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}
